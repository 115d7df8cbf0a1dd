package services

import (
	"context"
	"fmt"

	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultLockupDuration lockup convention for airdrops whose commitment carries no metadata (seconds)
const DefaultLockupDuration int64 = 86400

// TimingSourceKind labels where lockup timing came from
type TimingSourceKind string

const (
	TimingFromMetadata TimingSourceKind = "metadata"
	TimingFromOnChain  TimingSourceKind = "on_chain"
)

// Timing lockup window. LockupEndTime and DeploymentTimestamp are ms, LockupDuration is seconds.
type Timing struct {
	LockupEndTime       int64
	LockupDuration      int64
	DeploymentTimestamp int64
	Source              TimingSourceKind
}

// LockupReader single on-chain read of the lockup end, in seconds
type LockupReader interface {
	LockupEndTime(ctx context.Context, chainID int64, token common.Address) types.Result[int64]
}

// TimingSource resolves lockup timing for one airdrop
type TimingSource interface {
	Resolve(ctx context.Context) types.Result[Timing]
}

// MetadataTiming uses the metadata stored next to the tree verbatim
type MetadataTiming struct {
	Metadata types.CommitmentMetadata
}

func (m MetadataTiming) Resolve(context.Context) types.Result[Timing] {
	return types.Ok(Timing{
		LockupEndTime:       m.Metadata.LockupEndTime,
		LockupDuration:      m.Metadata.LockupDuration,
		DeploymentTimestamp: m.Metadata.DeploymentTimestamp(),
		Source:              TimingFromMetadata,
	})
}

// OnChainTiming reads the lockup end from the airdrop contract and applies the one-day convention
type OnChainTiming struct {
	Reader  LockupReader
	ChainID int64
	Token   common.Address
}

func (o OnChainTiming) Resolve(ctx context.Context) types.Result[Timing] {
	res := o.Reader.LockupEndTime(ctx, o.ChainID, o.Token)
	if !res.IsOK() {
		return types.Result[Timing]{Status: res.Status, Err: fmt.Errorf("on-chain lockup read: %w", res.Err)}
	}
	meta := types.CommitmentMetadata{
		LockupEndTime:  res.Value * 1000,
		LockupDuration: DefaultLockupDuration,
	}
	return types.Ok(Timing{
		LockupEndTime:       meta.LockupEndTime,
		LockupDuration:      meta.LockupDuration,
		DeploymentTimestamp: meta.DeploymentTimestamp(),
		Source:              TimingFromOnChain,
	})
}

// SelectTimingSource prefers stored metadata and falls back to the chain
func SelectTimingSource(metadata *types.CommitmentMetadata, reader LockupReader, chainID int64, token common.Address) TimingSource {
	if metadata != nil {
		return MetadataTiming{Metadata: *metadata}
	}
	return OnChainTiming{Reader: reader, ChainID: chainID, Token: token}
}
