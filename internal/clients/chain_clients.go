package clients

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"airdrop-backend/internal/utils"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// ChainCaller the read-only subset of ethclient the airdrop adapters use
type ChainCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

// ChainClients hands out a caller and the chain's contract addresses by chain ID
type ChainClients interface {
	Caller(ctx context.Context, chainID int64) (ChainCaller, *utils.ChainInfo, error)
}

// EthClientPool dials one ethclient per chain on first use and keeps it
type EthClientPool struct {
	registry *utils.ChainRegistry
	logger   *logrus.Logger

	mu      sync.Mutex
	clients map[int64]*ethclient.Client
}

// NewEthClientPool creates a pool over the configured chains
func NewEthClientPool(registry *utils.ChainRegistry, logger *logrus.Logger) *EthClientPool {
	return &EthClientPool{
		registry: registry,
		logger:   logger,
		clients:  make(map[int64]*ethclient.Client),
	}
}

// Caller returns a connected client for chainID, trying endpoints in order
func (p *EthClientPool) Caller(ctx context.Context, chainID int64) (ChainCaller, *utils.ChainInfo, error) {
	info, ok := p.registry.Get(chainID)
	if !ok {
		return nil, nil, fmt.Errorf("chain %d is not configured", chainID)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[chainID]; ok {
		return client, info, nil
	}

	endpoints, err := p.registry.GetRPCEndpoints(chainID)
	if err != nil {
		return nil, nil, err
	}
	var lastErr error
	for _, endpoint := range endpoints {
		client, err := ethclient.DialContext(ctx, endpoint)
		if err != nil {
			lastErr = err
			p.logger.WithFields(logrus.Fields{
				"chain_id": chainID,
				"endpoint": endpoint,
				"error":    err.Error(),
			}).Warn("⚠️ Failed to connect to RPC endpoint, trying next")
			continue
		}
		p.clients[chainID] = client
		p.logger.WithFields(logrus.Fields{
			"chain_id": chainID,
			"endpoint": endpoint,
		}).Info("🔗 Connected to RPC endpoint")
		return client, info, nil
	}
	return nil, nil, fmt.Errorf("failed to connect to RPC for chain %d: %w", chainID, lastErr)
}

// Close closes every dialed client
func (p *EthClientPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for chainID, client := range p.clients {
		client.Close()
		delete(p.clients, chainID)
	}
}
