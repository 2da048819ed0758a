// Package pipedrive provides a client for the Pipedrive v1 REST API.
package pipedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/reengage-cli/internal/resilience"
)

const (
	defaultBaseURL   = "https://api.pipedrive.com/v1"
	defaultPageLimit = 500
	tokenHeader      = "x-api-token"
)

// Client defines the Pipedrive operations used by the pipeline.
type Client interface {
	ListDeals(ctx context.Context, params ListDealsParams) ([]Record, error)
	GetDeal(ctx context.Context, id int64) (Record, error)
	UpdateDeal(ctx context.Context, id int64, fields map[string]any) error
	ListNotes(ctx context.Context, dealID int64) ([]Note, error)
	AddNote(ctx context.Context, dealID int64, content string) error
	ListDealFields(ctx context.Context) ([]DealField, error)
	ListStages(ctx context.Context) ([]Stage, error)
}

// APIError is returned for non-2xx responses and success=false bodies.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pipedrive: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPageLimit sets the page size for list calls.
func WithPageLimit(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageLimit = n
		}
	}
}

// WithRateLimit sets a per-second request rate. A burst equal to the integer
// portion of rps is allowed.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// WithRetry overrides the retry policy for every request.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *httpClient) {
		c.retry = cfg
	}
}

// WithCircuitBreaker guards every request with cb.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *httpClient) {
		c.breaker = cb
	}
}

type httpClient struct {
	token     string
	baseURL   string
	pageLimit int
	http      *http.Client
	limiter   *rate.Limiter
	retry     resilience.RetryConfig
	breaker   *resilience.CircuitBreaker
}

// NewClient creates a new Pipedrive API client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:     token,
		baseURL:   defaultBaseURL,
		pageLimit: defaultPageLimit,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("pipedrive", "request")
	}
	return c
}

func (c *httpClient) ListDeals(ctx context.Context, params ListDealsParams) ([]Record, error) {
	q := url.Values{}
	if params.StageID > 0 {
		q.Set("stage_id", strconv.Itoa(params.StageID))
	}
	if params.Status != "" {
		q.Set("status", params.Status)
	}
	deals, err := listAll[Record](ctx, c, "/deals", q)
	if err != nil {
		return nil, eris.Wrapf(err, "pipedrive: list deals stage %d", params.StageID)
	}
	return deals, nil
}

func (c *httpClient) GetDeal(ctx context.Context, id int64) (Record, error) {
	var env envelope[Record]
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/deals/%d", id), nil, nil, &env); err != nil {
		return nil, eris.Wrapf(err, "pipedrive: get deal %d", id)
	}
	return env.Data, nil
}

func (c *httpClient) UpdateDeal(ctx context.Context, id int64, fields map[string]any) error {
	var env envelope[json.RawMessage]
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/deals/%d", id), nil, fields, &env); err != nil {
		return eris.Wrapf(err, "pipedrive: update deal %d", id)
	}
	return nil
}

func (c *httpClient) ListNotes(ctx context.Context, dealID int64) ([]Note, error) {
	q := url.Values{}
	q.Set("deal_id", strconv.FormatInt(dealID, 10))
	notes, err := listAll[Note](ctx, c, "/notes", q)
	if err != nil {
		return nil, eris.Wrapf(err, "pipedrive: list notes deal %d", dealID)
	}
	return notes, nil
}

func (c *httpClient) AddNote(ctx context.Context, dealID int64, content string) error {
	body := map[string]any{"content": content, "deal_id": dealID}
	var env envelope[json.RawMessage]
	if err := c.do(ctx, http.MethodPost, "/notes", nil, body, &env); err != nil {
		return eris.Wrapf(err, "pipedrive: add note deal %d", dealID)
	}
	return nil
}

func (c *httpClient) ListDealFields(ctx context.Context) ([]DealField, error) {
	fields, err := listAll[DealField](ctx, c, "/dealFields", url.Values{})
	if err != nil {
		return nil, eris.Wrap(err, "pipedrive: list deal fields")
	}
	return fields, nil
}

func (c *httpClient) ListStages(ctx context.Context) ([]Stage, error) {
	stages, err := listAll[Stage](ctx, c, "/stages", url.Values{})
	if err != nil {
		return nil, eris.Wrap(err, "pipedrive: list stages")
	}
	return stages, nil
}

// listAll follows start/limit pagination until the collection is exhausted.
func listAll[T any](ctx context.Context, c *httpClient, path string, q url.Values) ([]T, error) {
	var all []T
	start := 0
	for {
		q.Set("start", strconv.Itoa(start))
		q.Set("limit", strconv.Itoa(c.pageLimit))

		var env envelope[[]T]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &env); err != nil {
			return nil, err
		}
		all = append(all, env.Data...)

		var p *pagination
		if env.AdditionalData != nil {
			p = env.AdditionalData.Pagination
		}
		if p == nil || !p.MoreItemsInCollection || p.NextStart <= start {
			return all, nil
		}
		start = p.NextStart
	}
}

// envelopeStatus is the part of every response body checked for errors.
type envelopeStatus struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (c *httpClient) do(ctx context.Context, method, path string, q url.Values, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "pipedrive: marshal request")
		}
	}

	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	call := func(ctx context.Context) ([]byte, error) {
		if c.breaker != nil {
			return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) ([]byte, error) {
				return c.send(ctx, method, endpoint, payload)
			})
		}
		return c.send(ctx, method, endpoint, payload)
	}

	raw, err := resilience.DoVal(ctx, c.retry, call)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return eris.Wrap(err, "pipedrive: decode response")
	}
	return nil
}

func (c *httpClient) send(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "pipedrive: rate limit")
		}
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, eris.Wrap(err, "pipedrive: create request")
	}
	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "pipedrive: send request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "pipedrive: read response"), resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resilience.ClassifyHTTP(&APIError{StatusCode: resp.StatusCode, Body: string(raw)}, resp.StatusCode)
	}

	var status envelopeStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, eris.Wrap(err, "pipedrive: decode response")
	}
	if !status.Success {
		msg := status.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Body: msg}
	}
	return raw, nil
}
