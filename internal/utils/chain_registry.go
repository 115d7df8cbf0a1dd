package utils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"airdrop-backend/internal/config"

	"github.com/ethereum/go-ethereum/common"
)

// DefaultMulticall3Address canonical Multicall3 deployment, identical on every EVM chain
var DefaultMulticall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// ChainInfo 链信息
type ChainInfo struct {
	ChainID           int64          `json:"chain_id"`
	Name              string         `json:"name"`
	RPCEndpoints      []string       `json:"rpc_endpoints"`
	AirdropContract   common.Address `json:"airdrop_contract"`
	MulticallContract common.Address `json:"multicall_contract"`
}

// ChainRegistry 链注册表
type ChainRegistry struct {
	byChainID map[int64]*ChainInfo
}

// NewChainRegistry indexes the enabled networks of the configuration
func NewChainRegistry(networks map[string]config.NetworkConfig) (*ChainRegistry, error) {
	r := &ChainRegistry{byChainID: make(map[int64]*ChainInfo)}
	for name, network := range networks {
		if !network.Enabled {
			continue
		}
		if _, dup := r.byChainID[network.ChainID]; dup {
			return nil, fmt.Errorf("chain %d configured twice (network %s)", network.ChainID, name)
		}
		if network.AirdropContract != "" && !common.IsHexAddress(network.AirdropContract) {
			return nil, fmt.Errorf("network %s: invalid airdrop contract %q", name, network.AirdropContract)
		}
		multicall := DefaultMulticall3Address
		if network.MulticallContract != "" {
			if !common.IsHexAddress(network.MulticallContract) {
				return nil, fmt.Errorf("network %s: invalid multicall contract %q", name, network.MulticallContract)
			}
			multicall = common.HexToAddress(network.MulticallContract)
		}
		displayName := network.Name
		if displayName == "" {
			displayName = name
		}
		r.Register(&ChainInfo{
			ChainID:           network.ChainID,
			Name:              displayName,
			RPCEndpoints:      network.RPCEndpoints,
			AirdropContract:   common.HexToAddress(network.AirdropContract),
			MulticallContract: multicall,
		})
	}
	return r, nil
}

// Register adds or replaces a chain
func (r *ChainRegistry) Register(info *ChainInfo) {
	r.byChainID[info.ChainID] = info
}

// Get 通过 Chain ID 查询
func (r *ChainRegistry) Get(chainID int64) (*ChainInfo, bool) {
	info, ok := r.byChainID[chainID]
	return info, ok
}

// GetRPCEndpoints 获取 RPC 端点
func (r *ChainRegistry) GetRPCEndpoints(chainID int64) ([]string, error) {
	info, ok := r.Get(chainID)
	if !ok || len(info.RPCEndpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoint for chain: %d", chainID)
	}
	return info.RPCEndpoints, nil
}

// GetAllChains 获取所有链信息, ordered by chain ID
func (r *ChainRegistry) GetAllChains() []*ChainInfo {
	chains := make([]*ChainInfo, 0, len(r.byChainID))
	for _, chain := range r.byChainID {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].ChainID < chains[j].ChainID })
	return chains
}

// ChainIDFromSubject extracts the chain ID from a subject shaped like airdrop.<chainId>.Claimed.
// ok is false when no numeric token is present.
func ChainIDFromSubject(subject string) (int64, bool) {
	for _, part := range strings.Split(subject, ".") {
		if id, err := strconv.ParseInt(part, 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}
