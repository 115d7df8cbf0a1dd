package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"airdrop-backend/internal/clients"
	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/metrics"
	"airdrop-backend/internal/models"
	"airdrop-backend/internal/repository"
	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Reason explains why a status carries (or lacks) recipients
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonNotConfigured Reason = "not_configured"
	ReasonUnavailable   Reason = "unavailable"
)

var (
	ErrAirdropNotConfigured = errors.New("no airdrop configured for this token")
	ErrAirdropUnavailable   = errors.New("airdrop data temporarily unavailable")
	ErrRecipientNotFound    = errors.New("address is not an airdrop recipient")
	ErrDuplicateRecipient   = errors.New("duplicate airdrop recipient")
	ErrInvalidChainID       = errors.New("invalid chain id")
)

// TreeStore content-addressable commitment storage
type TreeStore interface {
	Search(ctx context.Context, token common.Address, chainID int64) types.Result[types.ContentID]
	Fetch(ctx context.Context, cid types.ContentID) types.Result[*clients.Commitment]
	Store(ctx context.Context, key clients.StoreKey, tree *merkle.StandardTree, metadata *types.CommitmentMetadata) types.Result[types.ContentID]
}

// ChainReader chain reads the status computation needs
type ChainReader interface {
	LockupReader
	BatchAvailability(ctx context.Context, chainID int64, token common.Address, recipients []merkle.Leaf) []types.Result[*big.Int]
	BlockTimestamp(ctx context.Context, chainID int64) types.Result[int64]
}

// StatusRequest identifies one airdrop and the treasury to flag
type StatusRequest struct {
	ChainID  int64
	Token    common.Address
	Treasury string
}

// StatusSummary aggregate counts over all recipients
type StatusSummary struct {
	Recipients     int
	TotalAllocated *big.Int
	TotalAvailable *big.Int
	Claimable      int
	Claimed        int
	AssumedClaimed int
	Locked         int
}

// AirdropStatus full reconciliation result. Recipients is empty unless Reason is ok.
type AirdropStatus struct {
	Reason     Reason
	Message    string
	ChainID    int64
	Token      common.Address
	ContentID  types.ContentID
	MerkleRoot common.Hash
	Timing     *Timing
	Summary    *StatusSummary
	Recipients []RecipientStatus
}

// RecipientProof one recipient's leaf and proof
type RecipientProof struct {
	ChainID    int64
	Token      common.Address
	ContentID  types.ContentID
	MerkleRoot common.Hash
	Index      int
	Address    common.Address
	Amount     *big.Int
	Proof      []common.Hash
}

// PublishRequest a new distribution to commit
type PublishRequest struct {
	ChainID    int64
	Token      common.Address
	Recipients []merkle.Leaf
	Metadata   *types.CommitmentMetadata
}

// PublishResult where the committed tree went
type PublishResult struct {
	ContentID  types.ContentID
	MerkleRoot common.Hash
	Recipients int
}

// StatusServiceOptions read timeouts. Availability and claim index timeouts degrade; a store timeout fails the call.
type StatusServiceOptions struct {
	StoreTimeout        time.Duration
	AvailabilityTimeout time.Duration
	ClaimIndexTimeout   time.Duration
}

// AirdropStatusService resolves commitments and reconciles recipient status
type AirdropStatusService struct {
	store       TreeStore
	chain       ChainReader
	index       ClaimIndex
	deployments repository.AirdropDeploymentRepository
	opts        StatusServiceOptions
	logger      *logrus.Logger
	now         func() time.Time
}

// NewAirdropStatusService creates the service. deployments may be nil when no database is configured.
func NewAirdropStatusService(store TreeStore, chain ChainReader, index ClaimIndex, deployments repository.AirdropDeploymentRepository, opts StatusServiceOptions, logger *logrus.Logger) *AirdropStatusService {
	if index == nil {
		index = NoClaimIndex{}
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 15 * time.Second
	}
	if opts.AvailabilityTimeout <= 0 {
		opts.AvailabilityTimeout = 10 * time.Second
	}
	if opts.ClaimIndexTimeout <= 0 {
		opts.ClaimIndexTimeout = 10 * time.Second
	}
	return &AirdropStatusService{
		store:       store,
		chain:       chain,
		index:       index,
		deployments: deployments,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// GetStatus reconciles every recipient of the airdrop for req.Token on req.ChainID
func (s *AirdropStatusService) GetStatus(ctx context.Context, req StatusRequest) *AirdropStatus {
	start := time.Now()
	status := s.getStatus(ctx, req)
	metrics.StatusRequests.WithLabelValues(string(status.Reason)).Inc()
	metrics.StatusDuration.Observe(time.Since(start).Seconds())

	entry := s.logger.WithFields(logrus.Fields{
		"chain_id":    req.ChainID,
		"token":       req.Token.Hex(),
		"reason":      status.Reason,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if status.Reason == ReasonOK {
		entry.WithField("recipients", len(status.Recipients)).Info("📊 Airdrop status computed")
	} else {
		entry.WithField("message", status.Message).Info("📊 Airdrop status without recipients")
	}
	return status
}

func (s *AirdropStatusService) getStatus(ctx context.Context, req StatusRequest) *AirdropStatus {
	status := &AirdropStatus{ChainID: req.ChainID, Token: req.Token}

	// The commitment and the chain clock are independent; fetch both at once.
	var (
		commitment types.Result[*clients.Commitment]
		blockTime  types.Result[int64]
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		commitment = s.resolveCommitment(gctx, req.ChainID, req.Token)
		if commitment.Status == types.StatusTransientError {
			return commitment.Err
		}
		return nil
	})
	g.Go(func() error {
		blockTime = s.chain.BlockTimestamp(gctx, req.ChainID)
		return nil
	})
	_ = g.Wait()

	if !commitment.IsOK() {
		return s.unavailable(status, commitment.Status, commitment.Err)
	}
	c := commitment.Value
	status.ContentID = c.ContentID
	status.MerkleRoot = c.Tree.Root()

	nowMs := s.now().UnixMilli()
	if blockTime.IsOK() {
		nowMs = blockTime.Value * 1000
	} else {
		s.logger.WithFields(logrus.Fields{
			"chain_id": req.ChainID,
			"error":    errString(blockTime.Err),
		}).Warn("⚠️ Block timestamp unavailable, using wall clock")
	}

	// Timing, availability and claim history only depend on the commitment.
	var (
		timing       types.Result[Timing]
		availability []types.Result[*big.Int]
		claimed      types.Result[types.AddressSet]
	)
	leaves := c.Tree.Leaves()
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error {
		timing = SelectTimingSource(c.Metadata, s.chain, req.ChainID, req.Token).Resolve(gctx)
		return nil
	})
	g.Go(func() error {
		actx, cancel := context.WithTimeout(gctx, s.opts.AvailabilityTimeout)
		defer cancel()
		availability = s.chain.BatchAvailability(actx, req.ChainID, req.Token, leaves)
		return nil
	})
	g.Go(func() error {
		ictx, cancel := context.WithTimeout(gctx, s.opts.ClaimIndexTimeout)
		defer cancel()
		claimed = s.index.ClaimedAddresses(ictx, req.ChainID, req.Token)
		return nil
	})
	_ = g.Wait()

	if !timing.IsOK() {
		return s.unavailable(status, timing.Status, timing.Err)
	}
	if !claimed.IsOK() {
		s.logger.WithFields(logrus.Fields{
			"chain_id": req.ChainID,
			"token":    req.Token.Hex(),
			"error":    errString(claimed.Err),
		}).Warn("⚠️ Claim index unavailable, treating claimed set as empty")
	}

	t := timing.Value
	status.Reason = ReasonOK
	status.Timing = &t
	status.Recipients = Reconcile(ReconcileInput{
		Tree:          c.Tree,
		Availability:  availability,
		Claimed:       claimed.ValueOr(types.NewAddressSet()),
		Treasury:      req.Treasury,
		LockupEndTime: t.LockupEndTime,
		Now:           nowMs,
	})
	status.Summary = summarize(status.Recipients)
	return status
}

func (s *AirdropStatusService) unavailable(status *AirdropStatus, result types.ResultStatus, err error) *AirdropStatus {
	if result == types.StatusNotFound {
		status.Reason = ReasonNotConfigured
		status.Message = ErrAirdropNotConfigured.Error()
		s.logger.WithFields(logrus.Fields{
			"chain_id": status.ChainID,
			"token":    status.Token.Hex(),
			"cause":    errString(err),
		}).Debug("No airdrop configured")
		return status
	}
	status.Reason = ReasonUnavailable
	status.Message = ErrAirdropUnavailable.Error()
	s.logger.WithFields(logrus.Fields{
		"chain_id": status.ChainID,
		"token":    status.Token.Hex(),
		"error":    errString(err),
	}).Warn("⚠️ Airdrop data unavailable")
	return status
}

// resolveCommitment cached content id, else search, then fetch
func (s *AirdropStatusService) resolveCommitment(ctx context.Context, chainID int64, token common.Address) types.Result[*clients.Commitment] {
	ctx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	if cid, ok := s.cachedContentID(ctx, chainID, token); ok {
		res := s.store.Fetch(ctx, cid)
		if res.Status != types.StatusNotFound {
			return res
		}
		s.logger.WithFields(logrus.Fields{
			"chain_id": chainID,
			"token":    token.Hex(),
			"cid":      cid,
		}).Warn("⚠️ Cached content id no longer resolves, searching again")
		s.forgetDeployment(ctx, chainID, token)
	}

	search := s.store.Search(ctx, token, chainID)
	if !search.IsOK() {
		return types.Result[*clients.Commitment]{Status: search.Status, Err: search.Err}
	}
	res := s.store.Fetch(ctx, search.Value)
	if res.IsOK() {
		s.rememberDeployment(ctx, chainID, token, res.Value)
	}
	return res
}

func (s *AirdropStatusService) cachedContentID(ctx context.Context, chainID int64, token common.Address) (types.ContentID, bool) {
	if s.deployments == nil {
		return "", false
	}
	deployment, err := s.deployments.Get(ctx, chainID, strings.ToLower(token.Hex()))
	if err != nil {
		s.logger.WithField("error", err.Error()).Warn("⚠️ Deployment cache lookup failed")
		return "", false
	}
	if deployment == nil || deployment.ContentID == "" {
		return "", false
	}
	return types.ContentID(deployment.ContentID), true
}

func (s *AirdropStatusService) rememberDeployment(ctx context.Context, chainID int64, token common.Address, c *clients.Commitment) {
	if s.deployments == nil {
		return
	}
	deployment := &models.AirdropDeployment{
		ChainID:        chainID,
		TokenAddress:   strings.ToLower(token.Hex()),
		ContentID:      string(c.ContentID),
		MerkleRoot:     c.Tree.Root().Hex(),
		RecipientCount: c.Tree.Len(),
	}
	if c.Metadata != nil {
		end, duration := c.Metadata.LockupEndTime, c.Metadata.LockupDuration
		deployment.LockupEndTime = &end
		deployment.LockupDuration = &duration
	}
	if err := s.deployments.Upsert(ctx, deployment); err != nil {
		s.logger.WithField("error", err.Error()).Warn("⚠️ Failed to cache airdrop deployment")
	}
}

func (s *AirdropStatusService) forgetDeployment(ctx context.Context, chainID int64, token common.Address) {
	if err := s.deployments.Delete(ctx, chainID, strings.ToLower(token.Hex())); err != nil {
		s.logger.WithField("error", err.Error()).Warn("⚠️ Failed to drop cached airdrop deployment")
	}
}

// GetProof returns one recipient's leaf and proof from the commitment alone
func (s *AirdropStatusService) GetProof(ctx context.Context, chainID int64, token, address common.Address) (*RecipientProof, error) {
	res := s.resolveCommitment(ctx, chainID, token)
	switch res.Status {
	case types.StatusNotFound:
		return nil, ErrAirdropNotConfigured
	case types.StatusTransientError:
		return nil, fmt.Errorf("%w: %v", ErrAirdropUnavailable, res.Err)
	}

	tree := res.Value.Tree
	index, ok := tree.LeafIndex(address)
	if !ok {
		return nil, ErrRecipientNotFound
	}
	leaf, err := tree.Leaf(index)
	if err != nil {
		return nil, err
	}
	proof, err := tree.Proof(index)
	if err != nil {
		return nil, err
	}
	return &RecipientProof{
		ChainID:    chainID,
		Token:      token,
		ContentID:  res.Value.ContentID,
		MerkleRoot: tree.Root(),
		Index:      index,
		Address:    leaf.Address,
		Amount:     leaf.Amount,
		Proof:      proof,
	}, nil
}

// Publish builds the commitment, uploads it and caches the deployment record
func (s *AirdropStatusService) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if req.ChainID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChainID, req.ChainID)
	}
	seen := make(map[common.Address]struct{}, len(req.Recipients))
	for _, r := range req.Recipients {
		if _, dup := seen[r.Address]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRecipient, r.Address.Hex())
		}
		seen[r.Address] = struct{}{}
	}

	tree, err := merkle.Build(req.Recipients)
	if err != nil {
		return nil, err
	}

	stored := s.store.Store(ctx, clients.StoreKey{ChainID: req.ChainID, TokenAddress: req.Token}, tree, req.Metadata)
	switch stored.Status {
	case types.StatusNotFound:
		return nil, fmt.Errorf("%w: %v", ErrAirdropNotConfigured, stored.Err)
	case types.StatusTransientError:
		return nil, fmt.Errorf("%w: %v", ErrAirdropUnavailable, stored.Err)
	}

	s.rememberDeployment(ctx, req.ChainID, req.Token, &clients.Commitment{
		ContentID: stored.Value,
		Tree:      tree,
		Metadata:  req.Metadata,
	})
	s.logger.WithFields(logrus.Fields{
		"chain_id":    req.ChainID,
		"token":       req.Token.Hex(),
		"cid":         stored.Value,
		"merkle_root": tree.Root().Hex(),
		"recipients":  tree.Len(),
	}).Info("🌳 Airdrop commitment published")

	return &PublishResult{
		ContentID:  stored.Value,
		MerkleRoot: tree.Root(),
		Recipients: tree.Len(),
	}, nil
}

func summarize(recipients []RecipientStatus) *StatusSummary {
	summary := &StatusSummary{
		Recipients:     len(recipients),
		TotalAllocated: new(big.Int),
		TotalAvailable: new(big.Int),
	}
	for _, r := range recipients {
		summary.TotalAllocated.Add(summary.TotalAllocated, r.AllocatedAmount)
		summary.TotalAvailable.Add(summary.TotalAvailable, r.AvailableAmount)
		switch r.Status {
		case StateClaimable:
			summary.Claimable++
		case StateLocked:
			summary.Locked++
		case StateAlreadyClaimed:
			summary.Claimed++
			if r.ClaimBasis == ClaimBasisAssumed {
				summary.AssumedClaimed++
			}
		}
		metrics.RecipientStatuses.WithLabelValues(string(r.Status), string(r.ClaimBasis)).Inc()
	}
	return summary
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
