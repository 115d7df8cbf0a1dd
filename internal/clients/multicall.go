package clients

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3 ABI, aggregate3 only
const multicall3ABI = `[
	{
		"inputs": [
			{
				"components": [
					{"internalType": "address", "name": "target", "type": "address"},
					{"internalType": "bool", "name": "allowFailure", "type": "bool"},
					{"internalType": "bytes", "name": "callData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Call3[]",
				"name": "calls",
				"type": "tuple[]"
			}
		],
		"name": "aggregate3",
		"outputs": [
			{
				"components": [
					{"internalType": "bool", "name": "success", "type": "bool"},
					{"internalType": "bytes", "name": "returnData", "type": "bytes"}
				],
				"internalType": "struct Multicall3.Result[]",
				"name": "returnData",
				"type": "tuple[]"
			}
		],
		"stateMutability": "payable",
		"type": "function"
	}
]`

// Call3 one sub-call of aggregate3
type Call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// Call3Result outcome of one sub-call
type Call3Result struct {
	Success    bool
	ReturnData []byte
}

var multicallABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(multicall3ABI))
	if err != nil {
		panic(fmt.Sprintf("invalid multicall3 ABI: %v", err))
	}
	multicallABI = parsed
}

// PackAggregate3 encodes an aggregate3 call
func PackAggregate3(calls []Call3) ([]byte, error) {
	return multicallABI.Pack("aggregate3", calls)
}

// UnpackAggregate3 decodes aggregate3 return data
func UnpackAggregate3(data []byte) ([]Call3Result, error) {
	out, err := multicallABI.Unpack("aggregate3", data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack aggregate3: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("aggregate3 returned %d values", len(out))
	}
	results := *abi.ConvertType(out[0], new([]Call3Result)).(*[]Call3Result)
	return results, nil
}
