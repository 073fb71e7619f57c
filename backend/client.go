// Package backend is the HTTP client for the store backend. Reads go through
// a retrying, circuit-broken transport; writes are issued exactly once so a
// slow response can never double-submit a document.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/pos-core/internal/resilience"
)

// Client talks to the store backend REST API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Reads   resilience.HTTPClient
	Log     zerolog.Logger
}

// Options tunes the client transports.
type Options struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Logger      zerolog.Logger
}

// NewClient builds a client against baseURL. The read transport retries
// transient failures behind a circuit breaker; the write transport does not.
func NewClient(baseURL, token string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 200 * time.Millisecond
	}
	httpClient := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   opts.Timeout,
	}
	breaker := resilience.NewBreaker(5, 0.6, 15*time.Second).
		WithTarget("store_backend").
		WithLogger(opts.Logger)
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    httpClient,
		Reads: resilience.HTTPClient{
			Client:      httpClient,
			Breaker:     breaker,
			BaseBackoff: opts.BaseBackoff,
			MaxAttempts: opts.MaxAttempts,
			Timeout:     opts.Timeout,
		},
		Log: opts.Logger,
	}
}

// SearchProductByCode resolves a product by its scan code.
func (c *Client) SearchProductByCode(ctx context.Context, code string) (Product, error) {
	var out Product
	q := url.Values{"code": {code}}
	err := c.getJSON(ctx, "/api/products/search?"+q.Encode(), &out)
	return out, err
}

// SearchCustomerByDocument resolves a customer by identity document number.
func (c *Client) SearchCustomerByDocument(ctx context.Context, document string) (Customer, error) {
	var out Customer
	q := url.Values{"document": {document}}
	err := c.getJSON(ctx, "/api/customers/search?"+q.Encode(), &out)
	return out, err
}

// ListApprovers returns the users allowed to authorise discounts.
func (c *Client) ListApprovers(ctx context.Context) ([]Approver, error) {
	var out []Approver
	err := c.getJSON(ctx, "/api/discount-requests/approvers", &out)
	return out, err
}

// CreateDiscountRequest opens a pending authorisation record.
func (c *Client) CreateDiscountRequest(ctx context.Context, in CreateDiscountRequestInput) (DiscountRequest, error) {
	var out DiscountRequest
	err := c.writeJSON(ctx, http.MethodPost, "/api/discount-requests", in, &out)
	return out, err
}

// GetDiscountRequest fetches the current state of one request. The poller
// calls this on every tick; it rides the retrying read transport.
func (c *Client) GetDiscountRequest(ctx context.Context, id int64) (DiscountRequest, error) {
	var out DiscountRequest
	err := c.getJSON(ctx, fmt.Sprintf("/api/discount-requests/%d", id), &out)
	return out, err
}

// ListDiscountRequests returns requests filtered by state; pass an empty state
// for all.
func (c *Client) ListDiscountRequests(ctx context.Context, state RequestState) ([]DiscountRequest, error) {
	path := "/api/discount-requests"
	if state != "" {
		path += "?state=" + url.QueryEscape(string(state))
	}
	var out []DiscountRequest
	err := c.getJSON(ctx, path, &out)
	return out, err
}

// UpdateDiscountRequest records the approver's decision.
func (c *Client) UpdateDiscountRequest(ctx context.Context, id int64, in UpdateDiscountRequestInput) (DiscountRequest, error) {
	var out DiscountRequest
	err := c.writeJSON(ctx, http.MethodPatch, fmt.Sprintf("/api/discount-requests/%d", id), in, &out)
	return out, err
}

// CreateSaleDocument submits the finalised cart. Exactly one attempt is made;
// the backend deduplicates on the idempotency key if the caller retries after
// an ambiguous failure.
func (c *Client) CreateSaleDocument(ctx context.Context, in CreateSaleDocumentInput) (SaleDocument, error) {
	var out SaleDocument
	err := c.writeJSON(ctx, http.MethodPost, "/api/sale-documents", in, &out)
	return out, err
}

// PromoteDeliveryNote converts an issued delivery note into an invoice. The
// backend assigns the invoice number.
func (c *Client) PromoteDeliveryNote(ctx context.Context, id int64) (SaleDocument, error) {
	var out SaleDocument
	err := c.writeJSON(ctx, http.MethodPost, fmt.Sprintf("/api/sale-documents/%d/promote", id), nil, &out)
	return out, err
}

// BillingConfig fetches the numbering preview used for display before
// issuance.
func (c *Client) BillingConfig(ctx context.Context) (BillingConfig, error) {
	var out BillingConfig
	err := c.getJSON(ctx, "/api/billing/config", &out)
	return out, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	c.setHeaders(req)
	resp, err := c.Reads.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.decode(resp, out)
}

func (c *Client) writeJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	c.setHeaders(req)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return c.decode(resp, out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) decode(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		return c.errorFrom(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	return nil
}

func (c *Client) errorFrom(resp *http.Response) error {
	detail := readErrorDetail(resp.Body)
	kind := ErrNetwork
	switch {
	case resp.StatusCode == http.StatusNotFound:
		kind = ErrNotFound
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = ErrValidation
	}
	apiErr := &APIError{Kind: kind, Status: resp.StatusCode, Detail: detail}
	c.Log.Warn().Int("status", resp.StatusCode).Str("detail", detail).Msg("backend_error")
	return apiErr
}

func readErrorDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		for _, s := range []string{payload.Error, payload.Detail, payload.Message} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(data))
}
