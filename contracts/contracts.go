// Package contracts implements rewards.ContractAdapter over JSON-RPC
// 2.0, the boundary nonosd uses to submit claim_rewards transactions to
// an external staking contract. nonosd never implements the staking
// contract or a chain client itself.
//
// The request/response envelope mirrors the rpc.Request/rpc.Response/
// rpc.RPCError shapes (pkg/rpc/types.go), adapted from a server-side
// JSON-RPC API to an outbound client.
package contracts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nonos/nonosd/nonerr"
)

// request is a JSON-RPC 2.0 request.
type request struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      int             `json:"id"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("contracts: rpc error %d: %s", e.Code, e.Message)
}

// Adapter is a rewards.ContractAdapter backed by a JSON-RPC endpoint.
type Adapter struct {
	endpoint string
	method   string
	client   *http.Client
	nextID   int
}

// New creates an Adapter that submits claim_rewards calls to endpoint
// via the given RPC method name (e.g. "staking_claimRewards").
func New(endpoint, method string) *Adapter {
	return &Adapter{
		endpoint: endpoint,
		method:   method,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// ClaimRewards submits a claim_rewards call for epoch/amount and
// returns the resulting transaction hash. Satisfies
// rewards.ContractAdapter.
func (a *Adapter) ClaimRewards(ctx context.Context, epoch uint64, amount float64) ([32]byte, error) {
	var out [32]byte

	a.nextID++
	req := request{
		JSONRPC: "2.0",
		Method:  a.method,
		Params:  []interface{}{epoch, amount},
		ID:      a.nextID,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return out, nonerr.Wrap(nonerr.Staking, "encode claim_rewards request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return out, nonerr.Wrap(nonerr.Staking, "build claim_rewards request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return out, nonerr.Wrap(nonerr.Staking, "claim_rewards request failed", err)
	}
	defer httpResp.Body.Close()

	var resp response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return out, nonerr.Wrap(nonerr.Staking, "decode claim_rewards response", err)
	}
	if resp.Error != nil {
		return out, nonerr.Wrap(nonerr.Staking, "claim_rewards rejected", resp.Error)
	}

	var hexHash string
	if err := json.Unmarshal(resp.Result, &hexHash); err != nil {
		return out, nonerr.Wrap(nonerr.Staking, "decode claim_rewards result", err)
	}
	raw, err := hex.DecodeString(trimHexPrefix(hexHash))
	if err != nil || len(raw) != 32 {
		return out, nonerr.Wrap(nonerr.Staking, "malformed claim_rewards tx hash", err)
	}
	copy(out[:], raw)
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
