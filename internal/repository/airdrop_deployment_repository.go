package repository

import (
	"context"
	"errors"
	"strings"

	"airdrop-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AirdropDeploymentRepository caches content ids per (chain, token)
type AirdropDeploymentRepository interface {
	// Get returns nil, nil when nothing is cached
	Get(ctx context.Context, chainID int64, token string) (*models.AirdropDeployment, error)
	Upsert(ctx context.Context, deployment *models.AirdropDeployment) error
	Delete(ctx context.Context, chainID int64, token string) error
}

type airdropDeploymentRepository struct {
	db *gorm.DB
}

// NewAirdropDeploymentRepository creates a new AirdropDeploymentRepository instance
func NewAirdropDeploymentRepository(db *gorm.DB) AirdropDeploymentRepository {
	return &airdropDeploymentRepository{db: db}
}

func (r *airdropDeploymentRepository) Get(ctx context.Context, chainID int64, token string) (*models.AirdropDeployment, error) {
	var deployment models.AirdropDeployment
	err := r.db.WithContext(ctx).
		Where("chain_id = ? AND token_address = ?", chainID, strings.ToLower(token)).
		First(&deployment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &deployment, nil
}

func (r *airdropDeploymentRepository) Upsert(ctx context.Context, deployment *models.AirdropDeployment) error {
	deployment.TokenAddress = strings.ToLower(deployment.TokenAddress)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chain_id"}, {Name: "token_address"}},
			DoUpdates: clause.AssignmentColumns([]string{"content_id", "merkle_root", "recipient_count", "lockup_end_time", "lockup_duration", "updated_at"}),
		}).
		Create(deployment).Error
}

func (r *airdropDeploymentRepository) Delete(ctx context.Context, chainID int64, token string) error {
	return r.db.WithContext(ctx).
		Where("chain_id = ? AND token_address = ?", chainID, strings.ToLower(token)).
		Delete(&models.AirdropDeployment{}).Error
}
