package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"airdrop-backend/internal/clients"
	"airdrop-backend/internal/metrics"
	"airdrop-backend/internal/models"
	"airdrop-backend/internal/repository"
	"airdrop-backend/internal/types"
	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

// ClaimIndex source of already-claimed addresses for (chain, token)
type ClaimIndex interface {
	ClaimedAddresses(ctx context.Context, chainID int64, token common.Address) types.Result[types.AddressSet]
}

// NoClaimIndex used when no claim history source is configured
type NoClaimIndex struct{}

func (NoClaimIndex) ClaimedAddresses(context.Context, int64, common.Address) types.Result[types.AddressSet] {
	return types.Ok(types.NewAddressSet())
}

// ClaimHistoryService stores Claimed events from NATS and serves them as a claim index
type ClaimHistoryService struct {
	repo   repository.ClaimEventRepository
	logger *logrus.Logger
}

// NewClaimHistoryService creates a new claim history service
func NewClaimHistoryService(repo repository.ClaimEventRepository, logger *logrus.Logger) *ClaimHistoryService {
	return &ClaimHistoryService{repo: repo, logger: logger}
}

// HandleClaimEvent persists one event. Replays of the same log are ignored.
func (s *ClaimHistoryService) HandleClaimEvent(event *clients.ClaimEvent, subject string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if subjectChain, ok := utils.ChainIDFromSubject(subject); ok && subjectChain != event.ChainID {
		return fmt.Errorf("invalid claim event: chain %d published on %s", event.ChainID, subject)
	}
	amount, err := utils.ParseAmount(event.Amount)
	if err != nil {
		return fmt.Errorf("invalid claim event: %w", err)
	}
	record := &models.AirdropClaimEvent{
		ChainID:         event.ChainID,
		TokenAddress:    event.Token,
		Recipient:       event.Recipient,
		Amount:          amount.String(),
		BlockNumber:     event.BlockNumber,
		TransactionHash: strings.ToLower(event.TxHash),
		LogIndex:        event.LogIndex,
	}
	if event.Timestamp > 0 {
		record.BlockTimestamp = time.Unix(event.Timestamp, 0).UTC()
	}

	inserted, err := s.repo.Save(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to save claim event: %w", err)
	}

	fields := logrus.Fields{
		"subject":   subject,
		"chain_id":  event.ChainID,
		"token":     record.TokenAddress,
		"recipient": record.Recipient,
		"tx_hash":   record.TransactionHash,
		"log_index": record.LogIndex,
	}
	if !inserted {
		metrics.ClaimEventsReceived.WithLabelValues("duplicate").Inc()
		s.logger.WithFields(fields).Debug("Claim event already recorded")
		return nil
	}
	metrics.ClaimEventsReceived.WithLabelValues("stored").Inc()
	s.logger.WithFields(fields).Info("✅ Claim event recorded")
	return nil
}

// ClaimedAddresses claimed recipients recorded for (chain, token)
func (s *ClaimHistoryService) ClaimedAddresses(ctx context.Context, chainID int64, token common.Address) types.Result[types.AddressSet] {
	start := time.Now()
	recipients, err := s.repo.ClaimedRecipients(ctx, chainID, token.Hex())
	metrics.AdapterDuration.WithLabelValues(clients.AdapterClaimIndex).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AdapterOutcomes.WithLabelValues(clients.AdapterClaimIndex, types.StatusTransientError.String()).Inc()
		return types.TransientError[types.AddressSet](fmt.Errorf("claim history query: %w", err))
	}
	metrics.AdapterOutcomes.WithLabelValues(clients.AdapterClaimIndex, types.StatusOK.String()).Inc()
	return types.Ok(types.NewAddressSet(recipients...))
}
