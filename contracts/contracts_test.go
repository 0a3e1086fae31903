package contracts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAdapter_ClaimRewards(t *testing.T) {
	wantHash := "0x" + strings.Repeat("ab", 32)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "staking_claimRewards" {
			t.Fatalf("unexpected method %q", req.Method)
		}
		resp := response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  json.RawMessage(`"` + wantHash + `"`),
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := New(srv.URL, "staking_claimRewards")
	hash, err := a.ClaimRewards(context.Background(), 7, 12.5)
	if err != nil {
		t.Fatalf("ClaimRewards: %v", err)
	}
	if hash[0] != 0xab {
		t.Fatalf("expected decoded hash to start with 0xab, got %x", hash)
	}
}

func TestAdapter_ClaimRewards_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req request
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: -32000, Message: "insufficient stake"},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	a := New(srv.URL, "staking_claimRewards")
	if _, err := a.ClaimRewards(context.Background(), 7, 12.5); err == nil {
		t.Fatal("expected error from rejected claim")
	}
}
