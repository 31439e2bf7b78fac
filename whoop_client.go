package main

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
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

const (
	WhoopAPIBaseURL = "https://api.prod.whoop.com/developer"
	WhoopAuthURL    = "https://api.prod.whoop.com/oauth/oauth2/auth"
	WhoopTokenURL   = "https://api.prod.whoop.com/oauth/oauth2/token"

	requestTimeout = 30 * time.Second
	userAgent      = "Whoop-MCP-Server/1.0"

	// MaxLimit is the most records a paginated fetch will return.
	MaxLimit = 1000
	// DefaultLimit is used by tools when the caller gives no limit.
	DefaultLimit = 25
	// maxPageSize is the API's per-page ceiling.
	maxPageSize = 25
)

// ClientConfig holds the endpoints and credentials for a WhoopClient.
// Refresh is enabled only when RefreshToken, ClientID and ClientSecret are all set.
type ClientConfig struct {
	BaseURL      string
	TokenURL     string
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// ClientOption customizes a WhoopClient.
type ClientOption func(*WhoopClient)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *WhoopClient) {
		c.client = hc
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger logrus.FieldLogger) ClientOption {
	return func(c *WhoopClient) {
		c.log = logger
	}
}

// WhoopClient handles all interactions with the Whoop API.
//
// It is safe for concurrent use. The token pair is read under a lock at call time,
// but the lock is never held across a network round trip, so concurrent 401s may
// each trigger their own refresh.
type WhoopClient struct {
	client  *http.Client
	baseURL string
	oauth   *oauth2.Config
	log     logrus.FieldLogger

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
}

// Record is a loosely typed API object. Unknown fields round-trip untouched.
type Record map[string]interface{}

// Page is the result of a paginated fetch.
type Page struct {
	Records   []Record `json:"records"`
	HasMore   bool     `json:"has_more"`
	NextToken *string  `json:"next_token"`
}

// NewWhoopClient creates a new Whoop API client.
func NewWhoopClient(cfg ClientConfig, opts ...ClientOption) *WhoopClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = WhoopAPIBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = WhoopTokenURL
	}

	c := &WhoopClient{
		client: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL: baseURL,
		log:     logrus.StandardLogger(),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// AccessToken returns the bearer token currently in use.
func (w *WhoopClient) AccessToken() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.accessToken
}

// RefreshToken returns the refresh token currently held.
func (w *WhoopClient) RefreshToken() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.refreshToken
}

// CanRefresh reports whether refresh credentials are configured.
func (w *WhoopClient) CanRefresh() bool {
	return w.RefreshToken() != "" && w.oauth.ClientID != "" && w.oauth.ClientSecret != ""
}

// RefreshAccessToken exchanges the refresh token for a new access token.
// Every failure (not configured, non-2xx, transport, malformed body) yields false.
func (w *WhoopClient) RefreshAccessToken(ctx context.Context) bool {
	if !w.CanRefresh() {
		return false
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, w.client)
	src := w.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: w.RefreshToken()})

	tok, err := src.Token()
	if err != nil {
		w.log.WithError(err).Warn("token refresh failed")
		return false
	}
	if tok.AccessToken == "" {
		w.log.Warn("token refresh returned no access token")
		return false
	}

	w.mu.Lock()
	w.accessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		w.refreshToken = tok.RefreshToken
	}
	w.mu.Unlock()

	w.log.WithField("expires_at", tok.Expiry).Info("access token refreshed")
	return true
}

// Get performs a GET against path and returns the decoded JSON object.
// A 401 triggers at most one refresh followed by one retry with the new token.
func (w *WhoopClient) Get(ctx context.Context, path string, params url.Values) (Record, error) {
	status, body, err := w.makeRequest(ctx, path, params, w.AccessToken())
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		if !w.RefreshAccessToken(ctx) {
			return nil, newAPIError(status, path, body)
		}
		status, body, err = w.makeRequest(ctx, path, params, w.AccessToken())
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		return nil, newAPIError(status, path, body)
	}

	return decodeRecord(path, body)
}

// GetPaginated fetches up to limit records (clamped to [0, MaxLimit]) following
// next_token cursors. A nextToken already in params is used as the first cursor.
func (w *WhoopClient) GetPaginated(ctx context.Context, path string, params url.Values, limit int) (*Page, error) {
	limit = clampLimit(limit)

	records := make([]Record, 0)
	cursor := params.Get("nextToken")
	next := ""

	for len(records) < limit {
		pageParams := url.Values{}
		for k, v := range params {
			pageParams[k] = v
		}
		pageParams.Del("nextToken")
		pageParams.Set("limit", strconv.Itoa(min(maxPageSize, limit-len(records))))
		if cursor != "" {
			pageParams.Set("nextToken", cursor)
		}

		data, err := w.Get(ctx, path, pageParams)
		if err != nil {
			return nil, err
		}

		pageRecords, err := recordsOf(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse page from %s: %w", path, err)
		}
		records = append(records, pageRecords...)

		next, _ = data["next_token"].(string)
		if next == "" || len(pageRecords) == 0 {
			break
		}
		cursor = next
	}

	page := &Page{
		HasMore: next != "" && len(records) >= limit,
	}
	if len(records) > limit {
		records = records[:limit]
	}
	page.Records = records
	if page.HasMore {
		page.NextToken = &next
	}

	return page, nil
}

// ValidateConnection tests the API connection and authentication.
func (w *WhoopClient) ValidateConnection(ctx context.Context) error {
	if _, err := w.Get(ctx, "/v2/user/profile/basic", nil); err != nil {
		return fmt.Errorf("API connection validation failed: %w", err)
	}
	return nil
}

// makeRequest performs one authenticated GET and returns the raw status and body.
func (w *WhoopClient) makeRequest(ctx context.Context, path string, params url.Values, token string) (int, []byte, error) {
	requestURL := w.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	started := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Path: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &TransportError{Path: path, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	w.log.WithFields(logrus.Fields{
		"path":    path,
		"status":  resp.StatusCode,
		"elapsed": time.Since(started).String(),
	}).Debug("whoop request")

	return resp.StatusCode, body, nil
}

func decodeRecord(path string, body []byte) (Record, error) {
	rec := Record{}
	if len(bytes.TrimSpace(body)) == 0 {
		return rec, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to parse response from %s: %w", path, err)
	}
	return rec, nil
}

func recordsOf(data Record) ([]Record, error) {
	raw, ok := data["records"]
	if !ok || raw == nil {
		return nil, nil
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("records is %T, want array", raw)
	}

	records := make([]Record, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("record %d is %T, want object", i, item)
		}
		records = append(records, Record(m))
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
