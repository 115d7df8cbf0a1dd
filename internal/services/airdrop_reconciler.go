package services

import (
	"math/big"
	"strings"

	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/types"
	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
)

// RecipientState outcome of reconciling one leaf
type RecipientState string

const (
	StateClaimable      RecipientState = "claimable"
	StateAlreadyClaimed RecipientState = "already_claimed"
	StateLocked         RecipientState = "locked"
)

// ClaimBasis how an AlreadyClaimed state was reached
type ClaimBasis string

const (
	ClaimBasisNone ClaimBasis = ""
	// ClaimBasisVerified the claim index holds a Claimed event for the address
	ClaimBasisVerified ClaimBasis = "verified"
	// ClaimBasisAssumed heuristic: unlocked, nothing left on-chain, no event in the index.
	// The index has a bounded lookback, so the claim is taken to predate it. An allocation
	// that drained to zero for another reason is misreported as claimed.
	ClaimBasisAssumed ClaimBasis = "assumed"
)

const (
	MsgAlreadyClaimed = "Airdrop already claimed"
	MsgLocked         = "Airdrop is still locked (lockup period not passed)"
)

// RecipientStatus per-leaf result, built fresh on every call
type RecipientStatus struct {
	Index           int
	Address         common.Address
	AllocatedAmount *big.Int
	AvailableAmount *big.Int
	IsAvailable     bool
	Proof           []common.Hash
	IsTreasury      bool
	Status          RecipientState
	ClaimBasis      ClaimBasis
	Error           string
}

// ReconcileInput everything the engine needs; gathered by the caller.
// Availability is indexed like the tree's values; missing or failed slots count as zero.
// Times are in milliseconds.
type ReconcileInput struct {
	Tree          *merkle.StandardTree
	Availability  []types.Result[*big.Int]
	Claimed       types.AddressSet
	Treasury      string
	LockupEndTime int64
	Now           int64
}

// Reconcile merges availability, claim history and lockup timing into one status per leaf,
// in leaf order. No I/O.
func Reconcile(in ReconcileInput) []RecipientStatus {
	if in.Tree == nil {
		return nil
	}
	hasTreasury := strings.TrimSpace(in.Treasury) != ""

	leaves := in.Tree.Leaves()
	statuses := make([]RecipientStatus, len(leaves))
	for i, leaf := range leaves {
		available := new(big.Int)
		if i < len(in.Availability) && in.Availability[i].IsOK() && in.Availability[i].Value != nil {
			available = in.Availability[i].Value
		}

		status := RecipientStatus{
			Index:           i,
			Address:         leaf.Address,
			AllocatedAmount: leaf.Amount,
			AvailableAmount: available,
			IsTreasury:      hasTreasury && utils.SameAddress(leaf.Address.Hex(), in.Treasury),
		}

		switch {
		case available.Sign() > 0:
			status.Status = StateClaimable
			status.IsAvailable = true
		case in.Claimed != nil && in.Claimed.Contains(leaf.Address):
			status.Status = StateAlreadyClaimed
			status.ClaimBasis = ClaimBasisVerified
			status.Error = MsgAlreadyClaimed
		case in.Now < in.LockupEndTime:
			status.Status = StateLocked
			status.Error = MsgLocked
		default:
			status.Status = StateAlreadyClaimed
			status.ClaimBasis = ClaimBasisAssumed
			status.Error = MsgAlreadyClaimed
		}

		// index comes from Leaves(), so it is always in range
		status.Proof, _ = in.Tree.Proof(i)
		statuses[i] = status
	}
	return statuses
}
