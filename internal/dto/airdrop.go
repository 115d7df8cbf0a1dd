package dto

import (
	"math/big"

	"airdrop-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
)

// ==================== Airdrop DTOs ====================
// Amounts are decimal strings; hashes and addresses are 0x hex.

// RecipientStatusResponse one row of the status list
type RecipientStatusResponse struct {
	Index           int      `json:"index"`
	Address         string   `json:"address"`
	AllocatedAmount string   `json:"allocatedAmount"`
	AvailableAmount string   `json:"availableAmount"`
	IsAvailable     bool     `json:"isAvailable"`
	Proof           []string `json:"proof"`
	IsTreasury      bool     `json:"isTreasury"`
	Status          string   `json:"status"`
	ClaimBasis      string   `json:"claimBasis,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// TimingResponse deployment timing, milliseconds since epoch
type TimingResponse struct {
	LockupEndTime       int64  `json:"lockupEndTime"`
	LockupDuration      int64  `json:"lockupDuration"`
	DeploymentTimestamp int64  `json:"deploymentTimestamp"`
	Source              string `json:"source"`
}

// SummaryResponse aggregate counts
type SummaryResponse struct {
	Recipients     int    `json:"recipients"`
	TotalAllocated string `json:"totalAllocated"`
	TotalAvailable string `json:"totalAvailable"`
	Claimable      int    `json:"claimable"`
	Claimed        int    `json:"claimed"`
	AssumedClaimed int    `json:"assumedClaimed"`
	Locked         int    `json:"locked"`
}

// AirdropStatusResponse GET /api/v1/airdrops/:chainId/:token/status
type AirdropStatusResponse struct {
	Success    bool                      `json:"success"`
	Reason     string                    `json:"reason"`
	Message    string                    `json:"message,omitempty"`
	ChainID    int64                     `json:"chainId"`
	Token      string                    `json:"token"`
	ContentID  string                    `json:"cid,omitempty"`
	MerkleRoot string                    `json:"merkleRoot,omitempty"`
	Timing     *TimingResponse           `json:"timing,omitempty"`
	Summary    *SummaryResponse          `json:"summary,omitempty"`
	Recipients []RecipientStatusResponse `json:"recipients"`
}

// RecipientProofResponse GET /api/v1/airdrops/:chainId/:token/proofs/:address
type RecipientProofResponse struct {
	Success    bool     `json:"success"`
	ChainID    int64    `json:"chainId"`
	Token      string   `json:"token"`
	ContentID  string   `json:"cid"`
	MerkleRoot string   `json:"merkleRoot"`
	Index      int      `json:"index"`
	Address    string   `json:"address"`
	Amount     string   `json:"amount"`
	Proof      []string `json:"proof"`
}

// PublishRecipient one allocation in a publish request
type PublishRecipient struct {
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// PublishAirdropRequest POST /api/admin/airdrops
type PublishAirdropRequest struct {
	ChainID        int64              `json:"chainId" binding:"required"`
	Token          string             `json:"token" binding:"required"`
	Recipients     []PublishRecipient `json:"recipients" binding:"required,min=1"`
	LockupEndTime  int64              `json:"lockupEndTime"`  // ms, optional
	LockupDuration int64              `json:"lockupDuration"` // seconds, optional
}

// PublishAirdropResponse upload result
type PublishAirdropResponse struct {
	Success    bool   `json:"success"`
	ContentID  string `json:"cid"`
	MerkleRoot string `json:"merkleRoot"`
	Recipients int    `json:"recipients"`
}

// ErrorResponse error body shared by every endpoint
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// NewAirdropStatusResponse converts the service result
func NewAirdropStatusResponse(s *services.AirdropStatus) AirdropStatusResponse {
	resp := AirdropStatusResponse{
		Success:    s.Reason == services.ReasonOK,
		Reason:     string(s.Reason),
		Message:    s.Message,
		ChainID:    s.ChainID,
		Token:      s.Token.Hex(),
		ContentID:  string(s.ContentID),
		Recipients: make([]RecipientStatusResponse, 0, len(s.Recipients)),
	}
	if s.MerkleRoot != (common.Hash{}) {
		resp.MerkleRoot = s.MerkleRoot.Hex()
	}
	if s.Timing != nil {
		resp.Timing = &TimingResponse{
			LockupEndTime:       s.Timing.LockupEndTime,
			LockupDuration:      s.Timing.LockupDuration,
			DeploymentTimestamp: s.Timing.DeploymentTimestamp,
			Source:              string(s.Timing.Source),
		}
	}
	if s.Summary != nil {
		resp.Summary = &SummaryResponse{
			Recipients:     s.Summary.Recipients,
			TotalAllocated: amountString(s.Summary.TotalAllocated),
			TotalAvailable: amountString(s.Summary.TotalAvailable),
			Claimable:      s.Summary.Claimable,
			Claimed:        s.Summary.Claimed,
			AssumedClaimed: s.Summary.AssumedClaimed,
			Locked:         s.Summary.Locked,
		}
	}
	for _, r := range s.Recipients {
		resp.Recipients = append(resp.Recipients, RecipientStatusResponse{
			Index:           r.Index,
			Address:         r.Address.Hex(),
			AllocatedAmount: amountString(r.AllocatedAmount),
			AvailableAmount: amountString(r.AvailableAmount),
			IsAvailable:     r.IsAvailable,
			Proof:           hashStrings(r.Proof),
			IsTreasury:      r.IsTreasury,
			Status:          string(r.Status),
			ClaimBasis:      string(r.ClaimBasis),
			Error:           r.Error,
		})
	}
	return resp
}

// NewRecipientProofResponse converts a proof lookup
func NewRecipientProofResponse(p *services.RecipientProof) RecipientProofResponse {
	return RecipientProofResponse{
		Success:    true,
		ChainID:    p.ChainID,
		Token:      p.Token.Hex(),
		ContentID:  string(p.ContentID),
		MerkleRoot: p.MerkleRoot.Hex(),
		Index:      p.Index,
		Address:    p.Address.Hex(),
		Amount:     amountString(p.Amount),
		Proof:      hashStrings(p.Proof),
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func hashStrings(hashes []common.Hash) []string {
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.Hex()
	}
	return out
}
