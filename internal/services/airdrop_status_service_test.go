package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"airdrop-backend/internal/clients"
	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/models"
	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var testToken = common.HexToAddress("0x00000000000000000000000000000000000070c3")

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeStore struct {
	mu         sync.Mutex
	byKey      map[string]types.ContentID
	contents   map[types.ContentID]*clients.Commitment
	searchErr  *types.Result[types.ContentID]
	hangFetch  bool
	searches   int
	fetches    int
	storeCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byKey:    make(map[string]types.ContentID),
		contents: make(map[types.ContentID]*clients.Commitment),
	}
}

func (f *fakeStore) put(t *testing.T, chainID int64, token common.Address, tree *merkle.StandardTree, meta *types.CommitmentMetadata) types.ContentID {
	t.Helper()
	cid := types.ContentID("bafy" + tree.Root().Hex()[2:14])
	f.byKey[strings.ToLower(token.Hex())] = cid
	f.contents[cid] = &clients.Commitment{ContentID: cid, Tree: tree, Metadata: meta}
	return cid
}

func (f *fakeStore) Search(_ context.Context, token common.Address, _ int64) types.Result[types.ContentID] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	if f.searchErr != nil {
		return *f.searchErr
	}
	cid, ok := f.byKey[strings.ToLower(token.Hex())]
	if !ok {
		return types.NotFound[types.ContentID](nil)
	}
	return types.Ok(cid)
}

func (f *fakeStore) Fetch(ctx context.Context, cid types.ContentID) types.Result[*clients.Commitment] {
	if f.hangFetch {
		if err := waitForCancel(ctx); err != nil {
			return types.TransientError[*clients.Commitment](err)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	c, ok := f.contents[cid]
	if !ok {
		return types.NotFound[*clients.Commitment](nil)
	}
	return types.Ok(c)
}

func (f *fakeStore) Store(_ context.Context, key clients.StoreKey, tree *merkle.StandardTree, meta *types.CommitmentMetadata) types.Result[types.ContentID] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storeCalls++
	cid := types.ContentID("bafy" + tree.Root().Hex()[2:14])
	f.byKey[strings.ToLower(key.TokenAddress.Hex())] = cid
	f.contents[cid] = &clients.Commitment{ContentID: cid, Tree: tree, Metadata: meta}
	return types.Ok(cid)
}

type fakeChainReader struct {
	mu          sync.Mutex
	available   map[common.Address]int64
	blockTime   types.Result[int64]
	lockupEnd   types.Result[int64]
	hang        bool
	batches     int
	lockupReads int
}

func (f *fakeChainReader) BatchAvailability(ctx context.Context, _ int64, _ common.Address, recipients []merkle.Leaf) []types.Result[*big.Int] {
	f.mu.Lock()
	f.batches++
	hang := f.hang
	f.mu.Unlock()

	out := make([]types.Result[*big.Int], len(recipients))
	if hang {
		if err := waitForCancel(ctx); err != nil {
			for i := range out {
				out[i] = types.TransientError[*big.Int](err)
			}
			return out
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range recipients {
		v, ok := f.available[r.Address]
		if !ok {
			out[i] = types.TransientError[*big.Int](errors.New("execution reverted"))
			continue
		}
		out[i] = types.Ok(big.NewInt(v))
	}
	return out
}

func (f *fakeChainReader) BlockTimestamp(context.Context, int64) types.Result[int64] {
	return f.blockTime
}

func (f *fakeChainReader) LockupEndTime(context.Context, int64, common.Address) types.Result[int64] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockupReads++
	return f.lockupEnd
}

type fakeIndex struct {
	result types.Result[types.AddressSet]
}

func (f fakeIndex) ClaimedAddresses(context.Context, int64, common.Address) types.Result[types.AddressSet] {
	return f.result
}

// hangingIndex never answers before its context ends
type hangingIndex struct{}

func (hangingIndex) ClaimedAddresses(ctx context.Context, _ int64, _ common.Address) types.Result[types.AddressSet] {
	if err := waitForCancel(ctx); err != nil {
		return types.TransientError[types.AddressSet](err)
	}
	return types.Ok(types.NewAddressSet())
}

// waitForCancel blocks until ctx ends. The fallback keeps a missing deadline from hanging the test binary.
func waitForCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
		return nil
	}
}

type memoryDeployments struct {
	mu    sync.Mutex
	items map[string]*models.AirdropDeployment
}

func newMemoryDeployments() *memoryDeployments {
	return &memoryDeployments{items: make(map[string]*models.AirdropDeployment)}
}

func deploymentKey(chainID int64, token string) string {
	return big.NewInt(chainID).String() + "/" + strings.ToLower(token)
}

func (m *memoryDeployments) Get(_ context.Context, chainID int64, token string) (*models.AirdropDeployment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[deploymentKey(chainID, token)], nil
}

func (m *memoryDeployments) Upsert(_ context.Context, d *models.AirdropDeployment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[deploymentKey(d.ChainID, d.TokenAddress)] = d
	return nil
}

func (m *memoryDeployments) Delete(_ context.Context, chainID int64, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, deploymentKey(chainID, token))
	return nil
}

type statusFixture struct {
	store       *fakeStore
	chain       *fakeChainReader
	deployments *memoryDeployments
	service     *AirdropStatusService
}

func newStatusFixture(t *testing.T, index ClaimIndex) *statusFixture {
	t.Helper()
	f := &statusFixture{
		store: newFakeStore(),
		chain: &fakeChainReader{
			available: map[common.Address]int64{addrA: 100, addrB: 0, treasury: 30},
			blockTime: types.Ok((lockupEnd + 1000) / 1000),
			lockupEnd: types.Ok(lockupEnd / 1000),
		},
		deployments: newMemoryDeployments(),
	}
	f.service = NewAirdropStatusService(f.store, f.chain, index, f.deployments, StatusServiceOptions{
		AvailabilityTimeout: time.Second,
		ClaimIndexTimeout:   time.Second,
	}, quietLogger())
	return f
}

func scenarioMetadata() *types.CommitmentMetadata {
	return &types.CommitmentMetadata{LockupEndTime: lockupEnd, LockupDuration: 86400}
}

func TestGetStatus_ReconcilesAfterLockup(t *testing.T) {
	f := newStatusFixture(t, fakeIndex{result: types.Ok(types.NewAddressSet(addrB.Hex()))})
	tree := scenarioTree(t)
	cid := f.store.put(t, 1, testToken, tree, scenarioMetadata())

	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken, Treasury: treasury.Hex()})

	if status.Reason != ReasonOK {
		t.Fatalf("reason %s (%s)", status.Reason, status.Message)
	}
	if status.ContentID != cid || status.MerkleRoot != tree.Root() {
		t.Errorf("commitment identity: %s %s", status.ContentID, status.MerkleRoot.Hex())
	}
	if status.Timing == nil || status.Timing.Source != TimingFromMetadata || status.Timing.DeploymentTimestamp != lockupEnd-86400_000 {
		t.Errorf("timing: %+v", status.Timing)
	}
	if len(status.Recipients) != 3 {
		t.Fatalf("expected 3 recipients, got %d", len(status.Recipients))
	}
	if status.Recipients[0].Status != StateClaimable || status.Recipients[1].ClaimBasis != ClaimBasisVerified || !status.Recipients[2].IsTreasury {
		t.Errorf("recipients: %+v", status.Recipients)
	}

	s := status.Summary
	if s.Recipients != 3 || s.Claimable != 2 || s.Claimed != 1 || s.Locked != 0 || s.AssumedClaimed != 0 {
		t.Errorf("summary counts: %+v", s)
	}
	if s.TotalAllocated.Int64() != 180 || s.TotalAvailable.Int64() != 130 {
		t.Errorf("summary totals: allocated %s available %s", s.TotalAllocated, s.TotalAvailable)
	}
	if f.chain.batches != 1 {
		t.Errorf("expected one availability batch, got %d", f.chain.batches)
	}
}

func TestGetStatus_UsesBlockTimeNotWallClock(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())
	f.chain.available = map[common.Address]int64{addrA: 0, addrB: 0, treasury: 0}
	f.chain.blockTime = types.Ok((lockupEnd - 1000) / 1000)
	f.service.now = func() time.Time { return time.UnixMilli(lockupEnd + 10_000) }

	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Summary.Locked != 3 {
		t.Fatalf("expected all locked by block time, got %+v", status.Summary)
	}

	// without a block the wall clock decides
	f.chain.blockTime = types.TransientError[int64](errors.New("header unavailable"))
	status = f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Reason != ReasonOK || status.Summary.AssumedClaimed != 3 {
		t.Fatalf("expected assumed claims by wall clock, got %s %+v", status.Reason, status.Summary)
	}
}

func TestGetStatus_ReasonCodes(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})

	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Reason != ReasonNotConfigured || len(status.Recipients) != 0 || status.Summary != nil {
		t.Errorf("missing airdrop: got %s with %d recipients", status.Reason, len(status.Recipients))
	}

	transient := types.TransientError[types.ContentID](errors.New("store timeout"))
	f.store.searchErr = &transient
	status = f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Reason != ReasonUnavailable || len(status.Recipients) != 0 {
		t.Errorf("store outage: got %s with %d recipients", status.Reason, len(status.Recipients))
	}
	if f.chain.batches != 0 {
		t.Errorf("availability queried without a commitment")
	}
}

func TestGetStatus_ClaimIndexFailureDegrades(t *testing.T) {
	f := newStatusFixture(t, fakeIndex{result: types.TransientError[types.AddressSet](errors.New("subgraph down"))})
	f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())

	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Reason != ReasonOK {
		t.Fatalf("reason %s", status.Reason)
	}
	// 0xB has nothing left and no index evidence, so only the heuristic applies
	if status.Recipients[1].Status != StateAlreadyClaimed || status.Recipients[1].ClaimBasis != ClaimBasisAssumed {
		t.Errorf("0xB: got %s/%s", status.Recipients[1].Status, status.Recipients[1].ClaimBasis)
	}
}

func TestGetStatus_RevertingSlotDoesNotSpread(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())
	delete(f.chain.available, addrA)

	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Recipients[0].AvailableAmount.Sign() != 0 || status.Recipients[0].IsAvailable {
		t.Errorf("reverted slot: %+v", status.Recipients[0])
	}
	if status.Recipients[2].AvailableAmount.Int64() != 30 {
		t.Errorf("treasury slot: %+v", status.Recipients[2])
	}
}

func TestGetStatus_OnChainTimingFallback(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	f.store.put(t, 1, testToken, scenarioTree(t), nil)

	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if status.Reason != ReasonOK || status.Timing.Source != TimingFromOnChain {
		t.Fatalf("got %s / %+v", status.Reason, status.Timing)
	}
	if status.Timing.LockupEndTime != lockupEnd || status.Timing.LockupDuration != DefaultLockupDuration {
		t.Errorf("timing: %+v", status.Timing)
	}
	if f.chain.lockupReads != 1 {
		t.Errorf("expected one lockup read, got %d", f.chain.lockupReads)
	}

	f.chain.lockupEnd = types.TransientError[int64](errors.New("rpc down"))
	if status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken}); status.Reason != ReasonUnavailable {
		t.Errorf("failed fallback: got %s", status.Reason)
	}
}

func TestGetStatus_CachesContentID(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	cid := f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())

	for i := 0; i < 3; i++ {
		if status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken}); status.Reason != ReasonOK {
			t.Fatalf("call %d: %s", i, status.Reason)
		}
	}
	if f.store.searches != 1 {
		t.Errorf("expected a single search, got %d", f.store.searches)
	}
	cached, _ := f.deployments.Get(context.Background(), 1, testToken.Hex())
	if cached == nil || cached.ContentID != string(cid) || cached.RecipientCount != 3 {
		t.Errorf("cached deployment: %+v", cached)
	}
}

func TestGetProof(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	tree := scenarioTree(t)
	f.store.put(t, 1, testToken, tree, scenarioMetadata())

	proof, err := f.service.GetProof(context.Background(), 1, testToken, addrB)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proof.Index != 1 || proof.Amount.Int64() != 50 {
		t.Errorf("proof for 0xB: %+v", proof)
	}
	if !merkle.Verify(tree.Root(), merkle.Leaf{Address: proof.Address, Amount: proof.Amount}, proof.Proof) {
		t.Errorf("proof does not verify")
	}

	if _, err := f.service.GetProof(context.Background(), 1, testToken, common.HexToAddress("0xdead")); !errors.Is(err, ErrRecipientNotFound) {
		t.Errorf("stranger: got %v", err)
	}
	other := common.HexToAddress("0x00000000000000000000000000000000000070c4")
	if _, err := f.service.GetProof(context.Background(), 1, other, addrA); !errors.Is(err, ErrAirdropNotConfigured) {
		t.Errorf("unknown token: got %v", err)
	}
}

func TestPublish(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	leaves := []merkle.Leaf{
		{Address: addrA, Amount: big.NewInt(100)},
		{Address: addrB, Amount: big.NewInt(50)},
	}

	res, err := f.service.Publish(context.Background(), PublishRequest{ChainID: 1, Token: testToken, Recipients: leaves, Metadata: scenarioMetadata()})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if res.Recipients != 2 || res.ContentID == "" {
		t.Errorf("result: %+v", res)
	}
	cached, _ := f.deployments.Get(context.Background(), 1, testToken.Hex())
	if cached == nil || cached.MerkleRoot != res.MerkleRoot.Hex() || cached.LockupEndTime == nil || *cached.LockupEndTime != lockupEnd {
		t.Errorf("cached deployment: %+v", cached)
	}

	// a published airdrop is immediately served
	if status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken}); status.Reason != ReasonOK || len(status.Recipients) != 2 {
		t.Errorf("status after publish: %s", status.Reason)
	}

	dup := append(leaves, merkle.Leaf{Address: addrA, Amount: big.NewInt(1)})
	if _, err := f.service.Publish(context.Background(), PublishRequest{ChainID: 1, Token: testToken, Recipients: dup}); !errors.Is(err, ErrDuplicateRecipient) {
		t.Errorf("duplicate: got %v", err)
	}
	if _, err := f.service.Publish(context.Background(), PublishRequest{ChainID: 1, Token: testToken}); !errors.Is(err, merkle.ErrEmptyTree) {
		t.Errorf("empty: got %v", err)
	}
	if _, err := f.service.Publish(context.Background(), PublishRequest{ChainID: 0, Token: testToken, Recipients: leaves}); !errors.Is(err, ErrInvalidChainID) {
		t.Errorf("chain 0: got %v", err)
	}
}

func TestGetStatus_SlowReadsDegradeWithinTimeout(t *testing.T) {
	const timeout = 50 * time.Millisecond

	t.Run("claim index", func(t *testing.T) {
		f := newStatusFixture(t, hangingIndex{})
		f.service.opts.ClaimIndexTimeout = timeout
		f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())

		start := time.Now()
		status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("GetStatus took %s with a %s claim index timeout", elapsed, timeout)
		}
		if status.Reason != ReasonOK {
			t.Fatalf("reason %s (%s)", status.Reason, status.Message)
		}
		// empty claimed set: 0xB falls back to the heuristic, availability is untouched
		if status.Recipients[0].Status != StateClaimable || status.Recipients[0].AvailableAmount.Int64() != 100 {
			t.Errorf("0xA: %+v", status.Recipients[0])
		}
		if status.Recipients[1].Status != StateAlreadyClaimed || status.Recipients[1].ClaimBasis != ClaimBasisAssumed {
			t.Errorf("0xB: got %s/%s", status.Recipients[1].Status, status.Recipients[1].ClaimBasis)
		}
	})

	t.Run("availability", func(t *testing.T) {
		f := newStatusFixture(t, fakeIndex{result: types.Ok(types.NewAddressSet(addrB.Hex()))})
		f.service.opts.AvailabilityTimeout = timeout
		f.chain.hang = true
		f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())

		start := time.Now()
		status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Fatalf("GetStatus took %s with a %s availability timeout", elapsed, timeout)
		}
		if status.Reason != ReasonOK || len(status.Recipients) != 3 {
			t.Fatalf("reason %s with %d recipients", status.Reason, len(status.Recipients))
		}
		if status.Summary.TotalAvailable.Sign() != 0 || status.Summary.Claimable != 0 {
			t.Errorf("expected zero availability, got %+v", status.Summary)
		}
		if status.Recipients[1].ClaimBasis != ClaimBasisVerified || status.Recipients[0].ClaimBasis != ClaimBasisAssumed {
			t.Errorf("claim basis: %s %s", status.Recipients[0].ClaimBasis, status.Recipients[1].ClaimBasis)
		}
	})
}

func TestGetStatus_SlowStoreIsUnavailable(t *testing.T) {
	f := newStatusFixture(t, NoClaimIndex{})
	f.service.opts.StoreTimeout = 50 * time.Millisecond
	f.store.put(t, 1, testToken, scenarioTree(t), scenarioMetadata())
	f.store.hangFetch = true

	start := time.Now()
	status := f.service.GetStatus(context.Background(), StatusRequest{ChainID: 1, Token: testToken})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("GetStatus took %s with a 50ms store timeout", elapsed)
	}
	if status.Reason != ReasonUnavailable || len(status.Recipients) != 0 {
		t.Errorf("hung fetch: got %s with %d recipients", status.Reason, len(status.Recipients))
	}
	if f.chain.batches != 0 {
		t.Errorf("availability queried without a commitment")
	}

	if _, err := f.service.GetProof(context.Background(), 1, testToken, addrA); !errors.Is(err, ErrAirdropUnavailable) {
		t.Errorf("proof with hung fetch: got %v", err)
	}
}
