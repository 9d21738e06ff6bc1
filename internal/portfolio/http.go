package portfolio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/quorum/internal/ir"
)

// HTTPManager forwards execute effects to an external portfolio manager
// service. Any non-2xx response aborts the execute.
//
// Endpoints (all POST, JSON bodies):
//
//	{BaseURL}/rebalance      {"constituents":[...],"removed":[...],"weights":["..."],"execution_bound":"..."}
//	{BaseURL}/operator       {"identity":"..."}
//	{BaseURL}/methodologist  {"identity":"..."}
type HTTPManager struct {
	BaseURL string
	HTTP    *http.Client
}

// DefaultManagerTimeout bounds each request to the manager. An execute
// holds its gate's lock for the whole call.
const DefaultManagerTimeout = 30 * time.Second

// HTTPOption configures an HTTPManager.
type HTTPOption func(*HTTPManager)

// WithTimeout replaces DefaultManagerTimeout. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPManager) {
		if d > 0 {
			c.HTTP.Timeout = d
		}
	}
}

// NewHTTPManager creates a client for the manager at baseURL.
func NewHTTPManager(baseURL string, opts ...HTTPOption) *HTTPManager {
	c := &HTTPManager{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultManagerTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rebalanceRequest struct {
	Constituents   []string `json:"constituents"`
	Removed        []string `json:"removed"`
	Weights        []string `json:"weights"`
	ExecutionBound string   `json:"execution_bound"`
}

type identityRequest struct {
	Identity string `json:"identity"`
}

// ApplyRebalance posts params to {BaseURL}/rebalance.
func (c *HTTPManager) ApplyRebalance(ctx context.Context, params ir.RebalanceParams) error {
	req := rebalanceRequest{
		Constituents:   identityStrings(params.Constituents),
		Removed:        identityStrings(params.Removed),
		Weights:        make([]string, len(params.Weights)),
		ExecutionBound: amountText(params.ExecutionBound),
	}
	for i, w := range params.Weights {
		req.Weights[i] = amountText(w)
	}
	return c.post(ctx, "/rebalance", req)
}

// SetOperator posts the new operator to {BaseURL}/operator.
func (c *HTTPManager) SetOperator(ctx context.Context, operator ir.Identity) error {
	return c.post(ctx, "/operator", identityRequest{Identity: operator.String()})
}

// SetMethodologist posts the new methodologist to {BaseURL}/methodologist.
func (c *HTTPManager) SetMethodologist(ctx context.Context, methodologist ir.Identity) error {
	return c.post(ctx, "/methodologist", identityRequest{Identity: methodologist.String()})
}

func (c *HTTPManager) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("manager %s: encode: %w", path, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("manager %s: %w", path, err)
	}
	httpReq.Header.Set("content-type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("manager %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("manager %s returned %d", path, resp.StatusCode)
	}
	return nil
}

func identityStrings(ids []ir.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func amountText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
