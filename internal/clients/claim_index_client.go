package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"airdrop-backend/internal/config"
	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

var ErrSubgraphNotConfigured = errors.New("no subgraph configured for chain")

const airdropClaimsQuery = `query AirdropClaims($token: String!, $first: Int!, $skip: Int!) {
	airdropClaims(first: $first, skip: $skip, where: { token: $token }, orderBy: id) {
		recipient
	}
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type airdropClaimsResponse struct {
	Data struct {
		AirdropClaims []struct {
			Recipient string `json:"recipient"`
		} `json:"airdropClaims"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// SubgraphClaimIndex reads claimed recipients from a per-chain airdrop subgraph
type SubgraphClaimIndex struct {
	subgraphs  func(chainID int64) (config.SubgraphConfig, bool)
	pageSize   int
	maxPages   int
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewSubgraphClaimIndex creates a subgraph-backed claim index
func NewSubgraphClaimIndex(cfg *config.Config, logger *logrus.Logger) *SubgraphClaimIndex {
	return &SubgraphClaimIndex{
		subgraphs: cfg.Subgraph,
		pageSize:  cfg.ClaimIndex.PageSize,
		maxPages:  cfg.ClaimIndex.MaxPages,
		httpClient: &http.Client{
			Timeout: cfg.ClaimIndexTimeout(),
		},
		logger: logger,
	}
}

// ClaimedAddresses pages through airdropClaims for the token.
// Results are capped at maxPages; a truncated set is still returned as Ok.
func (s *SubgraphClaimIndex) ClaimedAddresses(ctx context.Context, chainID int64, token common.Address) types.Result[types.AddressSet] {
	start := time.Now()
	res := s.claimedAddresses(ctx, chainID, token)
	observe(AdapterClaimIndex, start, res.Status)
	return res
}

func (s *SubgraphClaimIndex) claimedAddresses(ctx context.Context, chainID int64, token common.Address) types.Result[types.AddressSet] {
	subgraph, ok := s.subgraphs(chainID)
	if !ok {
		return types.NotFound[types.AddressSet](fmt.Errorf("%w %d", ErrSubgraphNotConfigured, chainID))
	}

	claimed := types.NewAddressSet()
	tokenKey := strings.ToLower(token.Hex())
	for page := 0; page < s.maxPages; page++ {
		recipients, err := s.queryPage(ctx, subgraph, tokenKey, page*s.pageSize)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"chain_id": chainID,
				"token":    token.Hex(),
				"page":     page,
				"error":    err.Error(),
			}).Warn("⚠️ Subgraph claim query failed")
			return types.TransientError[types.AddressSet](err)
		}
		for _, r := range recipients {
			claimed.Add(r)
		}
		if len(recipients) < s.pageSize {
			return types.Ok(claimed)
		}
	}

	s.logger.WithFields(logrus.Fields{
		"chain_id":  chainID,
		"token":     token.Hex(),
		"max_pages": s.maxPages,
		"claimed":   claimed.Len(),
	}).Warn("⚠️ Subgraph claim list truncated at page limit")
	return types.Ok(claimed)
}

func (s *SubgraphClaimIndex) queryPage(ctx context.Context, subgraph config.SubgraphConfig, token string, skip int) ([]string, error) {
	body, err := json.Marshal(graphQLRequest{
		Query: airdropClaimsQuery,
		Variables: map[string]interface{}{
			"token": token,
			"first": s.pageSize,
			"skip":  skip,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, subgraph.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if subgraph.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", subgraph.APIKey))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}

	var result airdropClaimsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("subgraph query errors: %s", result.Errors[0].Message)
	}

	recipients := make([]string, 0, len(result.Data.AirdropClaims))
	for _, claim := range result.Data.AirdropClaims {
		recipients = append(recipients, claim.Recipient)
	}
	return recipients, nil
}
