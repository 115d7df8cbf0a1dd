package clients

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/metrics"
	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// Airdrop extension ABI: the per-recipient availability view and the airdrop record
const airdropABI = `[
	{
		"inputs": [
			{"name": "token", "type": "address"},
			{"name": "recipient", "type": "address"},
			{"name": "allocatedAmount", "type": "uint256"}
		],
		"name": "amountAvailableToClaim",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "token", "type": "address"}],
		"name": "airdrops",
		"outputs": [
			{"name": "admin", "type": "address"},
			{"name": "merkleRoot", "type": "bytes32"},
			{"name": "totalSupply", "type": "uint256"},
			{"name": "totalClaimed", "type": "uint256"},
			{"name": "lockupEndTime", "type": "uint256"},
			{"name": "vestingEndTime", "type": "uint256"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

var (
	ErrAirdropContractNotConfigured = errors.New("airdrop contract not configured for chain")
	ErrSlotReverted                 = errors.New("availability call reverted")
	ErrAirdropNotDeployed           = errors.New("no airdrop recorded on-chain for token")
)

var parsedAirdropABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(airdropABI))
	if err != nil {
		panic(fmt.Sprintf("invalid airdrop ABI: %v", err))
	}
	parsedAirdropABI = parsed
}

// OnChainAirdrop the airdrops(token) record
type OnChainAirdrop struct {
	Admin          common.Address
	MerkleRoot     common.Hash
	TotalSupply    *big.Int
	TotalClaimed   *big.Int
	LockupEndTime  *big.Int // seconds
	VestingEndTime *big.Int // seconds
}

// AirdropContractClient reads claim availability and airdrop records from chain
type AirdropContractClient struct {
	chains      ChainClients
	callTimeout time.Duration
	logger      *logrus.Logger
}

// NewAirdropContractClient creates a new airdrop contract client
func NewAirdropContractClient(chains ChainClients, callTimeout time.Duration, logger *logrus.Logger) *AirdropContractClient {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &AirdropContractClient{
		chains:      chains,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// BatchAvailability asks the airdrop contract how much each recipient may claim now.
// All recipients go out in a single aggregate3 eth_call with allowFailure set, so one
// reverting recipient only fails its own slot. A failed round trip fails every slot.
func (c *AirdropContractClient) BatchAvailability(ctx context.Context, chainID int64, token common.Address, recipients []merkle.Leaf) []types.Result[*big.Int] {
	start := time.Now()
	results := c.batchAvailability(ctx, chainID, token, recipients)

	status := types.StatusOK
	for _, r := range results {
		if !r.IsOK() {
			status = types.StatusTransientError
			break
		}
	}
	observe(AdapterAvailability, start, status)
	return results
}

func (c *AirdropContractClient) batchAvailability(ctx context.Context, chainID int64, token common.Address, recipients []merkle.Leaf) []types.Result[*big.Int] {
	results := make([]types.Result[*big.Int], len(recipients))
	if len(recipients) == 0 {
		return results
	}
	failAll := func(err error) []types.Result[*big.Int] {
		for i := range results {
			results[i] = types.TransientError[*big.Int](err)
		}
		c.logger.WithFields(logrus.Fields{
			"chain_id":   chainID,
			"token":      token.Hex(),
			"recipients": len(recipients),
			"error":      err.Error(),
		}).Warn("⚠️ Availability batch failed, every slot degrades to zero")
		return results
	}

	caller, info, err := c.chains.Caller(ctx, chainID)
	if err != nil {
		return failAll(err)
	}
	if info.AirdropContract == (common.Address{}) {
		return failAll(fmt.Errorf("%w %d", ErrAirdropContractNotConfigured, chainID))
	}

	calls := make([]Call3, len(recipients))
	for i, r := range recipients {
		data, err := parsedAirdropABI.Pack("amountAvailableToClaim", token, r.Address, r.Amount)
		if err != nil {
			return failAll(fmt.Errorf("failed to pack availability call for %s: %w", r.Address.Hex(), err))
		}
		calls[i] = Call3{Target: info.AirdropContract, AllowFailure: true, CallData: data}
	}
	input, err := PackAggregate3(calls)
	if err != nil {
		return failAll(fmt.Errorf("failed to pack aggregate3: %w", err))
	}
	metrics.MulticallBatchSize.Observe(float64(len(calls)))

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	multicall := info.MulticallContract
	output, err := caller.CallContract(callCtx, ethereum.CallMsg{To: &multicall, Data: input}, nil)
	if err != nil {
		return failAll(fmt.Errorf("aggregate3 call failed: %w", err))
	}

	slots, err := UnpackAggregate3(output)
	if err != nil {
		return failAll(err)
	}
	if len(slots) != len(recipients) {
		return failAll(fmt.Errorf("aggregate3 returned %d results for %d calls", len(slots), len(recipients)))
	}

	failed := 0
	for i, slot := range slots {
		if !slot.Success {
			results[i] = types.TransientError[*big.Int](fmt.Errorf("%w for %s", ErrSlotReverted, recipients[i].Address.Hex()))
			failed++
			continue
		}
		amount, err := unpackUint256(parsedAirdropABI, "amountAvailableToClaim", slot.ReturnData)
		if err != nil {
			results[i] = types.TransientError[*big.Int](fmt.Errorf("decode availability for %s: %w", recipients[i].Address.Hex(), err))
			failed++
			continue
		}
		results[i] = types.Ok(amount)
	}

	if failed > 0 {
		metrics.MulticallSlotFailures.Add(float64(failed))
		c.logger.WithFields(logrus.Fields{
			"chain_id": chainID,
			"token":    token.Hex(),
			"failed":   failed,
			"total":    len(recipients),
		}).Warn("⚠️ Some availability slots failed")
	}
	return results
}

// BlockTimestamp latest block timestamp in seconds
func (c *AirdropContractClient) BlockTimestamp(ctx context.Context, chainID int64) types.Result[int64] {
	start := time.Now()
	res := c.blockTimestamp(ctx, chainID)
	observe(AdapterBlockTime, start, res.Status)
	return res
}

func (c *AirdropContractClient) blockTimestamp(ctx context.Context, chainID int64) types.Result[int64] {
	caller, _, err := c.chains.Caller(ctx, chainID)
	if err != nil {
		return types.TransientError[int64](err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	header, err := caller.HeaderByNumber(callCtx, nil)
	if err != nil {
		return types.TransientError[int64](fmt.Errorf("failed to read latest header: %w", err))
	}
	return types.Ok(int64(header.Time))
}

// ReadAirdrop single airdrops(token) read
func (c *AirdropContractClient) ReadAirdrop(ctx context.Context, chainID int64, token common.Address) types.Result[*OnChainAirdrop] {
	start := time.Now()
	res := c.readAirdrop(ctx, chainID, token)
	observe(AdapterLockupRead, start, res.Status)
	return res
}

// LockupEndTime on-chain lockup end in seconds, used when the commitment carries no metadata
func (c *AirdropContractClient) LockupEndTime(ctx context.Context, chainID int64, token common.Address) types.Result[int64] {
	res := c.ReadAirdrop(ctx, chainID, token)
	if !res.IsOK() {
		return types.Result[int64]{Status: res.Status, Err: res.Err}
	}
	if res.Value.LockupEndTime == nil || !res.Value.LockupEndTime.IsInt64() {
		return types.TransientError[int64](fmt.Errorf("lockupEndTime out of range for %s", token.Hex()))
	}
	return types.Ok(res.Value.LockupEndTime.Int64())
}

func (c *AirdropContractClient) readAirdrop(ctx context.Context, chainID int64, token common.Address) types.Result[*OnChainAirdrop] {
	caller, info, err := c.chains.Caller(ctx, chainID)
	if err != nil {
		return types.TransientError[*OnChainAirdrop](err)
	}
	if info.AirdropContract == (common.Address{}) {
		return types.NotFound[*OnChainAirdrop](fmt.Errorf("%w %d", ErrAirdropContractNotConfigured, chainID))
	}

	data, err := parsedAirdropABI.Pack("airdrops", token)
	if err != nil {
		return types.TransientError[*OnChainAirdrop](err)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	target := info.AirdropContract
	output, err := caller.CallContract(callCtx, ethereum.CallMsg{To: &target, Data: data}, nil)
	if err != nil {
		return types.TransientError[*OnChainAirdrop](fmt.Errorf("airdrops(%s) call failed: %w", token.Hex(), err))
	}

	var record OnChainAirdrop
	if err := parsedAirdropABI.UnpackIntoInterface(&record, "airdrops", output); err != nil {
		return types.TransientError[*OnChainAirdrop](fmt.Errorf("failed to unpack airdrops(%s): %w", token.Hex(), err))
	}
	if record.MerkleRoot == (common.Hash{}) {
		return types.NotFound[*OnChainAirdrop](fmt.Errorf("%w %s", ErrAirdropNotDeployed, token.Hex()))
	}
	return types.Ok(&record)
}

func unpackUint256(parsed abi.ABI, method string, data []byte) (*big.Int, error) {
	out, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result from contract")
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T for %s", out[0], method)
	}
	return v, nil
}
