package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"airdrop-backend/internal/config"
	"airdrop-backend/internal/types"

	"github.com/ethereum/go-ethereum/common"
)

func newTestSubgraphIndex(url string, pageSize, maxPages int) *SubgraphClaimIndex {
	cfg := &config.Config{
		ClaimIndex: config.ClaimIndexConfig{
			Type:     "subgraph",
			Timeout:  5,
			PageSize: pageSize,
			MaxPages: maxPages,
			Subgraphs: map[string]config.SubgraphConfig{
				"1": {URL: url, APIKey: "graph-key"},
			},
		},
	}
	return NewSubgraphClaimIndex(cfg, testLogger())
}

// claimsServer pages through recipients the way a subgraph honours first/skip
func claimsServer(t *testing.T, recipients []string, requests *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*requests++
		if r.Header.Get("Authorization") != "Bearer graph-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req graphQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !strings.Contains(req.Query, "airdropClaims") {
			t.Errorf("unexpected query: %s", req.Query)
		}
		first := int(req.Variables["first"].(float64))
		skip := int(req.Variables["skip"].(float64))

		page := []map[string]string{}
		for i := skip; i < len(recipients) && i < skip+first; i++ {
			page = append(page, map[string]string{"recipient": recipients[i]})
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"airdropClaims": page},
		})
	}))
}

func TestSubgraphClaimIndex_PaginatesAndNormalizes(t *testing.T) {
	recipients := make([]string, 0, 5)
	for i := 1; i <= 5; i++ {
		recipients = append(recipients, fmt.Sprintf("0x%040X", 0xa0+i))
	}
	requests := 0
	server := claimsServer(t, recipients, &requests)
	defer server.Close()

	res := newTestSubgraphIndex(server.URL, 2, 10).ClaimedAddresses(context.Background(), 1, testToken)
	if !res.IsOK() {
		t.Fatalf("got %v (%v)", res.Status, res.Err)
	}
	if res.Value.Len() != 5 {
		t.Fatalf("expected 5 claimed, got %d", res.Value.Len())
	}
	for _, r := range recipients {
		if !res.Value.Contains(common.HexToAddress(r)) {
			t.Errorf("missing %s", r)
		}
	}
	if requests != 3 {
		t.Errorf("expected 3 page requests, got %d", requests)
	}
}

func TestSubgraphClaimIndex_TruncatesAtMaxPages(t *testing.T) {
	recipients := make([]string, 0, 10)
	for i := 1; i <= 10; i++ {
		recipients = append(recipients, fmt.Sprintf("0x%040x", i))
	}
	requests := 0
	server := claimsServer(t, recipients, &requests)
	defer server.Close()

	res := newTestSubgraphIndex(server.URL, 2, 2).ClaimedAddresses(context.Background(), 1, testToken)
	if !res.IsOK() {
		t.Fatalf("got %v (%v)", res.Status, res.Err)
	}
	if res.Value.Len() != 4 || requests != 2 {
		t.Fatalf("expected 4 addresses over 2 requests, got %d over %d", res.Value.Len(), requests)
	}
}

func TestSubgraphClaimIndex_Failures(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	res := newTestSubgraphIndex(failing.URL, 100, 1).ClaimedAddresses(context.Background(), 1, testToken)
	if res.Status != types.StatusTransientError {
		t.Errorf("5xx: expected transient error, got %v", res.Status)
	}

	graphErrors := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"errors":[{"message":"indexing_error"}]}`))
	}))
	defer graphErrors.Close()

	res = newTestSubgraphIndex(graphErrors.URL, 100, 1).ClaimedAddresses(context.Background(), 1, testToken)
	if res.Status != types.StatusTransientError || !strings.Contains(res.Err.Error(), "indexing_error") {
		t.Errorf("graphql errors: got %v (%v)", res.Status, res.Err)
	}

	res = newTestSubgraphIndex(failing.URL, 100, 1).ClaimedAddresses(context.Background(), 56, testToken)
	if res.Status != types.StatusNotFound {
		t.Errorf("unconfigured chain: expected not found, got %v", res.Status)
	}
}

func TestDecodeClaimEvent(t *testing.T) {
	valid := `{"chainId":1,"token":"0x00000000000000000000000000000000000070c3","recipient":"0x000000000000000000000000000000000000000A","amount":"100","txHash":"0x` + strings.Repeat("ab", 32) + `","logIndex":3,"blockNumber":19000000}`
	event, err := DecodeClaimEvent([]byte(valid))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.ChainID != 1 || event.LogIndex != 3 || event.BlockNumber != 19000000 {
		t.Errorf("decoded %+v", event)
	}

	invalid := []string{
		`not json`,
		`{"chainId":0,"token":"0x00000000000000000000000000000000000070c3","recipient":"0x000000000000000000000000000000000000000a","amount":"1","txHash":"0x` + strings.Repeat("ab", 32) + `"}`,
		`{"chainId":1,"token":"bogus","recipient":"0x000000000000000000000000000000000000000a","amount":"1","txHash":"0x` + strings.Repeat("ab", 32) + `"}`,
		`{"chainId":1,"token":"0x00000000000000000000000000000000000070c3","recipient":"0x000000000000000000000000000000000000000a","amount":"-1","txHash":"0x` + strings.Repeat("ab", 32) + `"}`,
		`{"chainId":1,"token":"0x00000000000000000000000000000000000070c3","recipient":"0x000000000000000000000000000000000000000a","amount":"1","txHash":"0xabcd"}`,
	}
	for i, payload := range invalid {
		if _, err := DecodeClaimEvent([]byte(payload)); err == nil {
			t.Errorf("payload %d: expected error", i)
		}
	}
}
