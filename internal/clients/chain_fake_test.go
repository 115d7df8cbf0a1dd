package clients

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	testAirdropContract = common.HexToAddress("0x00000000000000000000000000000000000a1d20")
	testToken           = common.HexToAddress("0x00000000000000000000000000000000000070c3")
)

// availabilityFunc answers amountAvailableToClaim; ok=false makes the slot revert
type availabilityFunc func(recipient common.Address, allocated *big.Int) (amount *big.Int, ok bool)

// fakeChain answers eth_call the way Multicall3 and the airdrop contract would
type fakeChain struct {
	mu sync.Mutex

	availability availabilityFunc
	airdrop      *OnChainAirdrop
	headerTime   uint64
	callErr      error
	headerErr    error

	calls      int
	batchSizes []int
}

func (f *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.callErr != nil {
		return nil, f.callErr
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("bad call")
	}

	switch *msg.To {
	case utils.DefaultMulticall3Address:
		return f.aggregate3(msg.Data)
	case testAirdropContract:
		method, err := parsedAirdropABI.MethodById(msg.Data[:4])
		if err != nil || method.Name != "airdrops" || f.airdrop == nil {
			return nil, errors.New("execution reverted")
		}
		a := f.airdrop
		return method.Outputs.Pack(a.Admin, a.MerkleRoot, a.TotalSupply, a.TotalClaimed, a.LockupEndTime, a.VestingEndTime)
	default:
		return nil, errors.New("no code at address")
	}
}

func (f *fakeChain) aggregate3(data []byte) ([]byte, error) {
	method := multicallABI.Methods["aggregate3"]
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(args[0], new([]Call3)).(*[]Call3)
	f.batchSizes = append(f.batchSizes, len(calls))

	available := parsedAirdropABI.Methods["amountAvailableToClaim"]
	results := make([]Call3Result, len(calls))
	for i, call := range calls {
		in, err := available.Inputs.Unpack(call.CallData[4:])
		if err != nil {
			return nil, err
		}
		amount, ok := f.availability(in[1].(common.Address), in[2].(*big.Int))
		if !ok {
			if !call.AllowFailure {
				return nil, errors.New("execution reverted: Multicall3: call failed")
			}
			results[i] = Call3Result{Success: false}
			continue
		}
		out, err := available.Outputs.Pack(amount)
		if err != nil {
			return nil, err
		}
		results[i] = Call3Result{Success: true, ReturnData: out}
	}
	return method.Outputs.Pack(results)
}

func (f *fakeChain) HeaderByNumber(ctx context.Context, _ *big.Int) (*ethtypes.Header, error) {
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return &ethtypes.Header{Time: f.headerTime, Number: big.NewInt(1)}, nil
}

// fakeChains serves one fakeChain for chain 1 and nothing else
type fakeChains struct {
	chain *fakeChain
	info  *utils.ChainInfo
}

func newFakeChains(t *testing.T, chain *fakeChain) *fakeChains {
	t.Helper()
	return &fakeChains{
		chain: chain,
		info: &utils.ChainInfo{
			ChainID:           1,
			Name:              "testnet",
			AirdropContract:   testAirdropContract,
			MulticallContract: utils.DefaultMulticall3Address,
		},
	}
}

func (f *fakeChains) Caller(_ context.Context, chainID int64) (ChainCaller, *utils.ChainInfo, error) {
	if chainID != f.info.ChainID {
		return nil, nil, errors.New("chain not configured")
	}
	return f.chain, f.info, nil
}
