package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"airdrop-backend/internal/config"
	"airdrop-backend/internal/merkle"
	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
)

const maxTreePayloadBytes = 64 << 20

var (
	ErrTreeStoreNotConfigured = errors.New("tree store base URL not configured")
	ErrMalformedPayload       = errors.New("malformed tree store payload")
)

// StoreKey identifies an airdrop in the tree store
type StoreKey struct {
	ChainID      int64
	TokenAddress common.Address
}

// Commitment a fetched tree and its optional metadata
type Commitment struct {
	ContentID types.ContentID
	Tree      *merkle.StandardTree
	Metadata  *types.CommitmentMetadata
}

// treePayload is the JSON document stored per airdrop
type treePayload struct {
	Tree     merkle.TreeDump           `json:"tree"`
	Metadata *types.CommitmentMetadata `json:"metadata,omitempty"`
}

type uploadRequest struct {
	Data treePayload       `json:"data"`
	Tags map[string]string `json:"tags"`
}

type cidResponse struct {
	CID string `json:"cid"`
}

// TreeStoreClient client for the content-addressable tree store.
// Every call resolves to Ok, NotFound or TransientError; nothing is returned as a bare error.
type TreeStoreClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewTreeStoreClient creates a new tree store client
func NewTreeStoreClient(cfg config.TreeStoreConfig, logger *logrus.Logger) *TreeStoreClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TreeStoreClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Search looks up the content id indexed under (token, chain)
func (c *TreeStoreClient) Search(ctx context.Context, token common.Address, chainID int64) types.Result[types.ContentID] {
	start := time.Now()
	res := c.search(ctx, token, chainID)
	observe(AdapterTreeStoreSearch, start, res.Status)
	return res
}

func (c *TreeStoreClient) search(ctx context.Context, token common.Address, chainID int64) types.Result[types.ContentID] {
	if c.baseURL == "" {
		return types.NotFound[types.ContentID](ErrTreeStoreNotConfigured)
	}

	q := url.Values{}
	q.Set("tokenAddress", strings.ToLower(token.Hex()))
	q.Set("chainId", strconv.FormatInt(chainID, 10))
	endpoint := fmt.Sprintf("%s/api/v1/search?%s", c.baseURL, q.Encode())

	var resp cidResponse
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return c.classify("search", err, logrus.Fields{"chain_id": chainID, "token": token.Hex()})
	}
	if resp.CID == "" {
		return types.NotFound[types.ContentID](fmt.Errorf("no tree indexed for token %s on chain %d", token.Hex(), chainID))
	}
	return types.Ok(types.ContentID(resp.CID))
}

// Fetch downloads, decodes and validates the tree stored under cid
func (c *TreeStoreClient) Fetch(ctx context.Context, cid types.ContentID) types.Result[*Commitment] {
	start := time.Now()
	res := c.fetch(ctx, cid)
	observe(AdapterTreeStoreFetch, start, res.Status)
	return res
}

func (c *TreeStoreClient) fetch(ctx context.Context, cid types.ContentID) types.Result[*Commitment] {
	if c.baseURL == "" {
		return types.NotFound[*Commitment](ErrTreeStoreNotConfigured)
	}
	if cid == "" {
		return types.NotFound[*Commitment](errors.New("empty content id"))
	}

	endpoint := fmt.Sprintf("%s/api/v1/content/%s", c.baseURL, url.PathEscape(string(cid)))
	var payload treePayload
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &payload); err != nil {
		return classifyResult[*Commitment](c, "fetch", err, logrus.Fields{"cid": cid})
	}

	tree, err := merkle.Load(payload.Tree)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"cid":   cid,
			"error": err.Error(),
		}).Warn("⚠️ Tree store returned an invalid merkle tree")
		return types.NotFound[*Commitment](fmt.Errorf("%w: %v", ErrMalformedPayload, err))
	}

	return types.Ok(&Commitment{
		ContentID: cid,
		Tree:      tree,
		Metadata:  payload.Metadata,
	})
}

// Store uploads the tree with indexable tags and returns its content id
func (c *TreeStoreClient) Store(ctx context.Context, key StoreKey, tree *merkle.StandardTree, metadata *types.CommitmentMetadata) types.Result[types.ContentID] {
	start := time.Now()
	res := c.store(ctx, key, tree, metadata)
	observe(AdapterTreeStoreUpload, start, res.Status)
	return res
}

func (c *TreeStoreClient) store(ctx context.Context, key StoreKey, tree *merkle.StandardTree, metadata *types.CommitmentMetadata) types.Result[types.ContentID] {
	if c.baseURL == "" {
		return types.NotFound[types.ContentID](ErrTreeStoreNotConfigured)
	}

	body := uploadRequest{
		Data: treePayload{Tree: tree.Dump(), Metadata: metadata},
		Tags: map[string]string{
			"type":         "airdrop-merkle-tree",
			"chainId":      strconv.FormatInt(key.ChainID, 10),
			"tokenAddress": strings.ToLower(key.TokenAddress.Hex()),
			"merkleRoot":   tree.Root().Hex(),
		},
	}

	var resp cidResponse
	fields := logrus.Fields{"chain_id": key.ChainID, "token": key.TokenAddress.Hex()}
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/api/v1/upload", body, &resp); err != nil {
		return c.classify("upload", err, fields)
	}
	if resp.CID == "" {
		return types.TransientError[types.ContentID](fmt.Errorf("%w: upload returned no cid", ErrMalformedPayload))
	}

	c.logger.WithFields(fields).WithField("cid", resp.CID).Info("📦 Airdrop tree stored")
	return types.Ok(types.ContentID(resp.CID))
}

func (c *TreeStoreClient) classify(op string, err error, fields logrus.Fields) types.Result[types.ContentID] {
	return classifyResult[types.ContentID](c, op, err, fields)
}

func classifyResult[T any](c *TreeStoreClient, op string, err error, fields logrus.Fields) types.Result[T] {
	entry := c.logger.WithFields(fields).WithField("error", err.Error())
	var statusErr *HTTPStatusError
	switch {
	case isTransient(err):
		entry.Warnf("⚠️ Tree store %s failed transiently", op)
		return types.TransientError[T](err)
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		entry.Debugf("Tree store %s: not found", op)
		return types.NotFound[T](err)
	default:
		entry.Warnf("⚠️ Tree store %s failed", op)
		return types.NotFound[T](err)
	}
}

func (c *TreeStoreClient) doJSON(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTreePayloadBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(data), 256)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
