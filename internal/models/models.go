package models

import (
	"time"
)

// AirdropClaimEvent Claimed event emitted by the airdrop contract (ClaimHistoryRecord).
// Presence only matters to the status engine; amounts are kept for audits.
type AirdropClaimEvent struct {
	ID              uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	ChainID         int64     `json:"chain_id" gorm:"column:chain_id;not null;index:idx_claim_chain_token,priority:1;uniqueIndex:idx_claim_event,priority:1"`
	TokenAddress    string    `json:"token_address" gorm:"type:varchar(42);not null;index:idx_claim_chain_token,priority:2"` // lowercase
	Recipient       string    `json:"recipient" gorm:"type:varchar(42);not null;index"`                                        // lowercase
	Amount          string    `json:"amount" gorm:"type:varchar(78);not null"`                                                 // decimal uint256
	BlockNumber     uint64    `json:"block_number" gorm:"index;not null"`
	TransactionHash string    `json:"transaction_hash" gorm:"type:varchar(66);not null;uniqueIndex:idx_claim_event,priority:2"`
	LogIndex        uint      `json:"log_index" gorm:"not null;uniqueIndex:idx_claim_event,priority:3"`
	BlockTimestamp  time.Time `json:"block_timestamp"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName table name
func (AirdropClaimEvent) TableName() string {
	return "airdrop_claim_events"
}

// AirdropDeployment content id resolved for (chain, token).
// Trees are immutable once anchored, so the mapping is cached after the first search.
type AirdropDeployment struct {
	ID             uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	ChainID        int64     `json:"chain_id" gorm:"column:chain_id;not null;uniqueIndex:idx_deployment_chain_token,priority:1"`
	TokenAddress   string    `json:"token_address" gorm:"type:varchar(42);not null;uniqueIndex:idx_deployment_chain_token,priority:2"` // lowercase
	ContentID      string    `json:"content_id" gorm:"not null"`
	MerkleRoot     string    `json:"merkle_root" gorm:"type:varchar(66);not null"`
	RecipientCount int       `json:"recipient_count"`
	LockupEndTime  *int64    `json:"lockup_end_time,omitempty"` // ms, nil when the upload carried no metadata
	LockupDuration *int64    `json:"lockup_duration,omitempty"` // seconds
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName table name
func (AirdropDeployment) TableName() string {
	return "airdrop_deployments"
}
