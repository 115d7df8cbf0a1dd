package repository

import (
	"context"
	"strings"

	"airdrop-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimEventRepository defines the interface for AirdropClaimEvent data access
type ClaimEventRepository interface {
	// Save inserts the event; a replay of the same (chain, tx, log index) is a no-op
	Save(ctx context.Context, event *models.AirdropClaimEvent) (bool, error)
	ClaimedRecipients(ctx context.Context, chainID int64, token string) ([]string, error)
}

type claimEventRepository struct {
	db *gorm.DB
}

// NewClaimEventRepository creates a new ClaimEventRepository instance
func NewClaimEventRepository(db *gorm.DB) ClaimEventRepository {
	return &claimEventRepository{db: db}
}

func (r *claimEventRepository) Save(ctx context.Context, event *models.AirdropClaimEvent) (bool, error) {
	event.TokenAddress = strings.ToLower(event.TokenAddress)
	event.Recipient = strings.ToLower(event.Recipient)
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *claimEventRepository) ClaimedRecipients(ctx context.Context, chainID int64, token string) ([]string, error) {
	var recipients []string
	err := r.db.WithContext(ctx).
		Model(&models.AirdropClaimEvent{}).
		Where("chain_id = ? AND token_address = ?", chainID, strings.ToLower(token)).
		Distinct().
		Pluck("recipient", &recipients).Error
	if err != nil {
		return nil, err
	}
	return recipients, nil
}
