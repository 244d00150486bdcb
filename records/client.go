// Package records is a client for the record store API: tables, views and
// fields plus paged reads and batched writes of records.
//
// Every response uses the envelope {"code": 0, "msg": "", "data": {...}}.
// A non-2xx status or a non-zero code becomes an *APIError.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for record store requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "records_requests_total",
		Help: "Total record store requests by operation and status",
	}, []string{"op", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "records_request_duration_seconds",
		Help:    "Record store request duration in seconds by operation",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"op"})
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Config holds the client configuration.
type Config struct {
	// BaseURL of the record store, e.g. "https://base.example.com" (REQUIRED).
	BaseURL string
	// Token is sent as a bearer token when set.
	Token     string
	UserAgent string
	// Timeout per request. Ignored when HTTPClient is set.
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client talks to the record store. It is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New creates a client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("records: invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "asyncpool"
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + apiPrefix,
		token:      cfg.Token,
		userAgent:  userAgent,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "records").Logger(),
	}, nil
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do sends one request and decodes the envelope's data into out (when non-nil).
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		requestsTotal.WithLabelValues(op, status).Inc()
		requestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("records %s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("records %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		status = "network"
		return fmt.Errorf("records %s: %w", op, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Msg: env.Msg}
		if apiErr.Msg == "" {
			apiErr.Msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug().
			Str("op", op).
			Int("status", resp.StatusCode).
			Int("code", env.Code).
			Msg("Request failed")
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("records %s: decode response: %w", op, decodeErr)
	}
	if env.Code != 0 {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Code: env.Code, Msg: env.Msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("records %s: decode data: %w", op, err)
		}
	}
	return nil
}

type listData[T any] struct {
	Items []T `json:"items"`
}

// TableMetas lists the tables of the base.
func (c *Client) TableMetas(ctx context.Context) ([]TableMeta, error) {
	var data listData[TableMeta]
	if err := c.do(ctx, "list_tables", http.MethodGet, "/tables", nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// ViewMetas lists the views of a table.
func (c *Client) ViewMetas(ctx context.Context, tableID string) ([]ViewMeta, error) {
	if tableID == "" {
		return nil, ErrEmptyID
	}
	var data listData[ViewMeta]
	path := "/tables/" + url.PathEscape(tableID) + "/views"
	if err := c.do(ctx, "list_views", http.MethodGet, path, nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// FieldMetas lists the fields visible in a view, in view order.
func (c *Client) FieldMetas(ctx context.Context, tableID, viewID string) ([]FieldMeta, error) {
	if tableID == "" || viewID == "" {
		return nil, ErrEmptyID
	}
	var data listData[FieldMeta]
	path := "/tables/" + url.PathEscape(tableID) + "/views/" + url.PathEscape(viewID) + "/fields"
	if err := c.do(ctx, "list_fields", http.MethodGet, path, nil, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// Selection returns the table and view currently open.
func (c *Client) Selection(ctx context.Context) (Selection, error) {
	var sel Selection
	err := c.do(ctx, "selection", http.MethodGet, "/selection", nil, nil, &sel)
	return sel, err
}

// Table returns a handle on one table. It performs no request.
func (c *Client) Table(id string) *Table {
	return &Table{client: c, id: id, path: "/tables/" + url.PathEscape(id)}
}
