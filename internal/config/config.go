package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Blockchain BlockchainConfig `yaml:"blockchain"`
	TreeStore  TreeStoreConfig  `yaml:"treeStore"`
	ClaimIndex ClaimIndexConfig `yaml:"claimIndex"`
	Admin      AdminConfig      `yaml:"admin"`
	CORS       CORSConfig       `yaml:"cors"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig Database configuration
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig claim event subscription configuration
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`        // connect timeout (seconds)
	ReconnectWait int    `yaml:"reconnect_wait"` // seconds
	MaxReconnects int    `yaml:"max_reconnects"`
	ClaimSubject  string `yaml:"claim_subject"` // e.g. airdrop.*.Claimed
	QueueGroup    string `yaml:"queue_group"`
}

// BlockchainConfig Blockchain configuration
type BlockchainConfig struct {
	CallTimeout int                      `yaml:"callTimeout"` // per chain read (seconds)
	Networks    map[string]NetworkConfig `yaml:"networks"`
}

// NetworkConfig per-chain RPC and contract configuration
type NetworkConfig struct {
	ChainID           int64    `yaml:"chainId"`
	Name              string   `yaml:"name"`
	RPCEndpoints      []string `yaml:"rpcEndpoints"`
	AirdropContract   string   `yaml:"airdropContract"`   // airdrop extension holding merkle roots
	MulticallContract string   `yaml:"multicallContract"` // Multicall3, defaults to the canonical deployment
	Enabled           bool     `yaml:"enabled"`
}

// TreeStoreConfig content-addressable tree store
type TreeStoreConfig struct {
	BaseURL string `yaml:"baseUrl"`
	APIKey  string `yaml:"apiKey"`
	Timeout int    `yaml:"timeout"` // seconds
}

// ClaimIndexConfig claim history source
type ClaimIndexConfig struct {
	Type      string                    `yaml:"type"`    // subgraph, database or none
	Timeout   int                       `yaml:"timeout"` // seconds
	PageSize  int                       `yaml:"pageSize"`
	MaxPages  int                       `yaml:"maxPages"`
	Subgraphs map[string]SubgraphConfig `yaml:"subgraphs"` // keyed by chain ID
}

// SubgraphConfig one GraphQL endpoint
type SubgraphConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey"`
}

// AdminConfig admin API access control configuration
type AdminConfig struct {
	JWTSecret     string   `yaml:"jwtSecret"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	TOTPSecret    string   `yaml:"totpSecret"`
	TokenTTLHours int      `yaml:"tokenTtlHours"`
	AllowedIPs    []string `yaml:"allowedIPs"` // IPs or CIDRs besides localhost
	// Proxies whose X-Forwarded-For is honoured. Empty trusts none.
	TrustedProxies []string `yaml:"trustedProxies"`
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"` // seconds
}

const (
	defaultCallTimeout       = 10
	defaultTreeStoreTimeout  = 15
	defaultClaimIndexTimeout = 10
	defaultPageSize          = 1000
	defaultMaxPages          = 50
)

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)

	overrideFromEnv(cfg)
	applyDefaults(cfg)

	fmt.Printf("📋 [Config] Tree store: %s, claim index: %s, networks: %d\n", cfg.TreeStore.BaseURL, cfg.ClaimIndex.Type, len(cfg.Blockchain.Networks))

	AppConfig = cfg
	return cfg, nil
}

// Parse decodes a YAML document without touching the environment
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Blockchain.CallTimeout <= 0 {
		cfg.Blockchain.CallTimeout = defaultCallTimeout
	}
	if cfg.TreeStore.Timeout <= 0 {
		cfg.TreeStore.Timeout = defaultTreeStoreTimeout
	}
	if cfg.ClaimIndex.Type == "" {
		cfg.ClaimIndex.Type = "none"
	}
	if cfg.ClaimIndex.Timeout <= 0 {
		cfg.ClaimIndex.Timeout = defaultClaimIndexTimeout
	}
	if cfg.ClaimIndex.PageSize <= 0 {
		cfg.ClaimIndex.PageSize = defaultPageSize
	}
	if cfg.ClaimIndex.MaxPages <= 0 {
		cfg.ClaimIndex.MaxPages = defaultMaxPages
	}
	if cfg.NATS.ClaimSubject == "" {
		cfg.NATS.ClaimSubject = "airdrop.*.Claimed"
	}
	if cfg.NATS.Timeout <= 0 {
		cfg.NATS.Timeout = 10
	}
	if cfg.NATS.ReconnectWait <= 0 {
		cfg.NATS.ReconnectWait = 5
	}
	if cfg.Admin.Username == "" {
		cfg.Admin.Username = "admin"
	}
	if cfg.Admin.TokenTTLHours <= 0 {
		cfg.Admin.TokenTTLHours = 24
	}
	if cfg.CORS.MaxAge <= 0 {
		cfg.CORS.MaxAge = 3600
	}
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
		config.NATS.Enabled = true
	}

	if storeURL := os.Getenv("TREE_STORE_BASE_URL"); storeURL != "" {
		config.TreeStore.BaseURL = storeURL
	}
	if storeKey := os.Getenv("TREE_STORE_API_KEY"); storeKey != "" {
		config.TreeStore.APIKey = storeKey
	}

	if indexType := os.Getenv("CLAIM_INDEX_TYPE"); indexType != "" {
		config.ClaimIndex.Type = indexType
	}

	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		config.Admin.JWTSecret = secret
	}
	if username := os.Getenv("ADMIN_USERNAME"); username != "" {
		config.Admin.Username = username
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				config.CORS.AllowedOrigins = append(config.CORS.AllowedOrigins, trimmed)
			}
		}
	}

	for networkName, networkConfig := range config.Blockchain.Networks {
		envRPC := fmt.Sprintf("%s_RPC_ENDPOINTS", strings.ToUpper(networkName))
		if rpcEndpoints := os.Getenv(envRPC); rpcEndpoints != "" {
			networkConfig.RPCEndpoints = strings.Split(rpcEndpoints, ",")
		}
		envAirdrop := fmt.Sprintf("%s_AIRDROP_CONTRACT", strings.ToUpper(networkName))
		if airdrop := os.Getenv(envAirdrop); airdrop != "" {
			networkConfig.AirdropContract = airdrop
		}
		config.Blockchain.Networks[networkName] = networkConfig
	}

	for chainID, subgraph := range config.ClaimIndex.Subgraphs {
		if url := os.Getenv("SUBGRAPH_URL_" + chainID); url != "" {
			subgraph.URL = url
		}
		if apiKey := os.Getenv("SUBGRAPH_API_KEY_" + chainID); apiKey != "" {
			subgraph.APIKey = apiKey
		}
		config.ClaimIndex.Subgraphs[chainID] = subgraph
	}
}

// NetworkByChainID finds an enabled network by chain ID
func (c *Config) NetworkByChainID(chainID int64) (*NetworkConfig, error) {
	for _, network := range c.Blockchain.Networks {
		if network.ChainID == chainID && network.Enabled {
			n := network
			return &n, nil
		}
	}
	return nil, fmt.Errorf("network with chainID %d not found or disabled", chainID)
}

// Subgraph returns the subgraph endpoint configured for chainID
func (c *Config) Subgraph(chainID int64) (SubgraphConfig, bool) {
	s, ok := c.ClaimIndex.Subgraphs[strconv.FormatInt(chainID, 10)]
	return s, ok && s.URL != ""
}

// CallTimeout per chain read
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.Blockchain.CallTimeout) * time.Second
}

// TreeStoreTimeout per store request
func (c *Config) TreeStoreTimeout() time.Duration {
	return time.Duration(c.TreeStore.Timeout) * time.Second
}

// AdminTokenTTL lifetime of issued admin tokens
func (c *Config) AdminTokenTTL() time.Duration {
	return time.Duration(c.Admin.TokenTTLHours) * time.Hour
}

// ClaimIndexTimeout per index query
func (c *Config) ClaimIndexTimeout() time.Duration {
	return time.Duration(c.ClaimIndex.Timeout) * time.Second
}
