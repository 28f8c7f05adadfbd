// Package supabase implements the backend contract against a hosted
// Supabase-compatible service: GoTrue for authentication and PostgREST for
// the trips table. Row ownership is enforced by the service's row-level
// security policies, not by this client.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkordes/trip-tracker/internal/backend"
	"github.com/pkordes/trip-tracker/internal/domain"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// Config holds configuration for creating a Service.
type Config struct {
	// URL is the project URL (e.g. "https://xyzcompany.supabase.co").
	URL string
	// AnonKey is the project's public anonymous API key.
	AnonKey string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Service holds the project URL, key and HTTP transport shared by every
// per-browser Client.
type Service struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New validates cfg and returns a Service.
func New(cfg Config) (*Service, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase: URL is required")
	}
	if cfg.AnonKey == "" {
		return nil, fmt.Errorf("supabase: AnonKey is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("supabase: invalid URL %q: %w", cfg.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("supabase: URL %q must use http or https", cfg.URL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Factory returns a backend.Factory creating Clients bound to s.
func (s *Service) Factory() backend.Factory {
	return func() (backend.Client, error) {
		return s.NewClient(), nil
	}
}

// NewClient returns a signed-out Client.
func (s *Service) NewClient() *Client {
	return &Client{svc: s}
}

// Client is one browser's connection to the service. It keeps that
// browser's session in memory.
type Client struct {
	svc      *Service
	notifier backend.Notifier

	// refreshMu serialises refresh-token grants so a token is used once.
	refreshMu sync.Mutex

	mu      sync.Mutex
	session *domain.Session
}

var (
	_ backend.Client = (*Client)(nil)
	_ backend.Auth   = clientAuth{}
	_ backend.Trips  = clientTrips{}
)

type clientAuth struct{ c *Client }

type clientTrips struct{ c *Client }

// Auth returns the auth half of the client.
func (c *Client) Auth() backend.Auth { return clientAuth{c} }

// Trips returns the data half of the client.
func (c *Client) Trips() backend.Trips { return clientTrips{c} }

// apiError is the union of the error shapes GoTrue and PostgREST return.
type apiError struct {
	Msg              string          `json:"msg"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorCode        string          `json:"error_code"`
	Code             json.RawMessage `json:"code"`
}

func (e apiError) message() string {
	for _, m := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if m != "" {
			return m
		}
	}
	return ""
}

func (e apiError) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	if len(e.Code) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Code, &s); err == nil {
		return s
	}
	// GoTrue reports the HTTP status as a numeric code; it carries no extra information.
	return ""
}

// request describes one call to the service.
type request struct {
	method  string
	path    string
	query   url.Values
	token   string // bearer token; the anon key when empty
	body    any
	headers map[string]string
}

// doRequest performs an HTTP request and returns the response body.
// Non-2xx responses are returned as *backend.Error carrying the service's message.
func (s *Service) doRequest(ctx context.Context, r request) ([]byte, error) {
	requestURL := s.baseURL + r.path
	if len(r.query) > 0 {
		requestURL += "?" + r.query.Encode()
	}

	var bodyReader io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("supabase: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("supabase: failed to create request: %w", err)
	}

	token := r.token
	if token == "" {
		token = s.anonKey
	}
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase: request to %s %s failed: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("supabase: failed to read response body: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	s.logger.DebugContext(ctx, "supabase: error response",
		"method", r.method,
		"path", r.path,
		"status", resp.StatusCode,
	)

	var apiErr apiError
	if jsonErr := json.Unmarshal(body, &apiErr); jsonErr != nil || apiErr.message() == "" {
		return nil, &backend.Error{
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("unexpected %d response from %s %s", resp.StatusCode, r.method, r.path),
			Err:     sentinelFor(resp.StatusCode),
		}
	}
	return nil, &backend.Error{
		Status:  resp.StatusCode,
		Code:    apiErr.code(),
		Message: apiErr.message(),
		Err:     sentinelFor(resp.StatusCode),
	}
}

func sentinelFor(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return domain.ErrUnauthenticated
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusConflict:
		return domain.ErrConflict
	default:
		return nil
	}
}

// flexID decodes an id that the service may encode as a JSON number or string.
type flexID string

func (id *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("supabase: id is neither string nor number: %s", b)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("supabase: invalid numeric id %q: %w", n, err)
	}
	*id = flexID(n.String())
	return nil
}
