package app

import (
	"fmt"
	"strings"
	"sync"

	"airdrop-backend/internal/clients"
	"airdrop-backend/internal/config"
	"airdrop-backend/internal/db"
	"airdrop-backend/internal/handlers"
	"airdrop-backend/internal/repository"
	"airdrop-backend/internal/services"
	"airdrop-backend/internal/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Claim index sources selectable through claimIndex.type
const (
	ClaimIndexSubgraph = "subgraph"
	ClaimIndexDatabase = "database"
	ClaimIndexNone     = "none"
)

// ServiceContainer owns every long-lived dependency of the server
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database (nil when database.dsn is empty)
	DB *gorm.DB

	// Repositories
	ClaimEventRepo repository.ClaimEventRepository
	DeploymentRepo repository.AirdropDeploymentRepository

	// Clients
	ChainRegistry  *utils.ChainRegistry
	EthClients     *clients.EthClientPool
	ContractClient *clients.AirdropContractClient
	TreeStore      *clients.TreeStoreClient
	NATSClient     *clients.NATSClient

	// Services
	ClaimIndex          services.ClaimIndex
	ClaimHistoryService *services.ClaimHistoryService
	StatusService       *services.AirdropStatusService

	// Handlers
	AirdropHandler   *handlers.AirdropHandler
	AdminAuthHandler *handlers.AdminAuthHandler

	natsOnce sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once
func InitializeContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		logger.Info("🚀 Initializing Service Container...")

		container := &ServiceContainer{Config: cfg, Logger: logger}

		// 1. Database (optional)
		if err := container.initDatabase(); err != nil {
			initErr = fmt.Errorf("failed to initialize database: %w", err)
			return
		}

		// 2. Clients
		if err := container.initClients(); err != nil {
			initErr = fmt.Errorf("failed to initialize clients: %w", err)
			return
		}

		// 3. Services
		if err := container.initServices(); err != nil {
			initErr = fmt.Errorf("failed to initialize services: %w", err)
			return
		}

		// 4. Claim event subscription (optional, based on config)
		if err := container.initEventServices(); err != nil {
			logger.WithError(err).Warn("⚠️ Claim event subscription skipped or failed")
		}

		container.AirdropHandler = handlers.NewAirdropHandler(container.StatusService, logger)
		container.AdminAuthHandler = handlers.NewAdminAuthHandler(cfg.Admin, cfg.AdminTokenTTL(), logger)

		Container = container
		logger.Info("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initDatabase() error {
	if c.Config.Database.DSN == "" {
		if c.Config.ClaimIndex.Type == ClaimIndexDatabase {
			return fmt.Errorf("claimIndex.type %q requires database.dsn", ClaimIndexDatabase)
		}
		c.Logger.Info("📦 No database configured, deployment cache and claim history disabled")
		return nil
	}

	conn, err := db.InitDB(c.Config.Database)
	if err != nil {
		return err
	}
	c.DB = conn
	c.ClaimEventRepo = repository.NewClaimEventRepository(conn)
	c.DeploymentRepo = repository.NewAirdropDeploymentRepository(conn)
	c.Logger.Info("✅ Repositories initialized")
	return nil
}

func (c *ServiceContainer) initClients() error {
	registry, err := utils.NewChainRegistry(c.Config.Blockchain.Networks)
	if err != nil {
		return err
	}
	c.ChainRegistry = registry
	c.EthClients = clients.NewEthClientPool(registry, c.Logger)
	c.ContractClient = clients.NewAirdropContractClient(c.EthClients, c.Config.CallTimeout(), c.Logger)
	c.TreeStore = clients.NewTreeStoreClient(c.Config.TreeStore, c.Logger)

	for _, chain := range registry.GetAllChains() {
		c.Logger.WithFields(logrus.Fields{
			"chain_id":         chain.ChainID,
			"name":             chain.Name,
			"airdrop_contract": chain.AirdropContract.Hex(),
			"rpc_endpoints":    len(chain.RPCEndpoints),
		}).Info("⛓️ Chain registered")
	}
	return nil
}

func (c *ServiceContainer) initServices() error {
	if c.ClaimEventRepo != nil {
		c.ClaimHistoryService = services.NewClaimHistoryService(c.ClaimEventRepo, c.Logger)
	}

	index, err := c.selectClaimIndex()
	if err != nil {
		return err
	}
	c.ClaimIndex = index

	c.StatusService = services.NewAirdropStatusService(
		c.TreeStore,
		c.ContractClient,
		c.ClaimIndex,
		c.DeploymentRepo,
		services.StatusServiceOptions{
			StoreTimeout:        c.Config.TreeStoreTimeout(),
			AvailabilityTimeout: c.Config.CallTimeout(),
			ClaimIndexTimeout:   c.Config.ClaimIndexTimeout(),
		},
		c.Logger,
	)
	c.Logger.Info("✅ Airdrop status service initialized")
	return nil
}

func (c *ServiceContainer) selectClaimIndex() (services.ClaimIndex, error) {
	kind := strings.ToLower(c.Config.ClaimIndex.Type)
	switch kind {
	case ClaimIndexSubgraph:
		c.Logger.WithField("subgraphs", len(c.Config.ClaimIndex.Subgraphs)).Info("🔎 Claim index: subgraph")
		return clients.NewSubgraphClaimIndex(c.Config, c.Logger), nil
	case ClaimIndexDatabase:
		if c.ClaimHistoryService == nil {
			return nil, fmt.Errorf("claimIndex.type %q requires database.dsn", ClaimIndexDatabase)
		}
		c.Logger.Info("🔎 Claim index: database (NATS claim events)")
		return c.ClaimHistoryService, nil
	case ClaimIndexNone, "":
		c.Logger.Warn("⚠️ No claim index configured, zero-availability recipients past lockup are reported as assumed claims")
		return services.NoClaimIndex{}, nil
	default:
		return nil, fmt.Errorf("unknown claimIndex.type %q", c.Config.ClaimIndex.Type)
	}
}

// initEventServices subscribes to claim events when NATS is enabled
func (c *ServiceContainer) initEventServices() error {
	var err error
	c.natsOnce.Do(func() {
		if !c.Config.NATS.Enabled {
			c.Logger.Info("📡 NATS disabled, claim events are not ingested")
			return
		}
		if c.ClaimHistoryService == nil {
			err = fmt.Errorf("NATS claim ingestion requires database.dsn")
			return
		}

		var client *clients.NATSClient
		client, err = clients.NewNATSClient(c.Config.NATS, c.Logger)
		if err != nil {
			return
		}
		if err = client.SubscribeToClaims(c.Config.NATS.ClaimSubject, c.Config.NATS.QueueGroup, c.ClaimHistoryService.HandleClaimEvent); err != nil {
			client.Close()
			return
		}
		c.NATSClient = client
	})
	return err
}

// Shutdown releases connections in reverse order of creation
func (c *ServiceContainer) Shutdown() {
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.EthClients != nil {
		c.EthClients.Close()
	}
	if c.DB != nil {
		if err := db.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close database")
		}
	}
	c.Logger.Info("👋 Service Container shut down")
}
