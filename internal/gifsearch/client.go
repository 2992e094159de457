// Package gifsearch proxies GIF searches to the upstream provider so the API
// key never reaches browsers.
package gifsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/Tyrowin/hangout/internal/platform/errors"
)

const (
	// DefaultBaseURL is the Giphy API root.
	DefaultBaseURL = "https://api.giphy.com"
	// DefaultLimit is the number of results requested when none is given.
	DefaultLimit = 24
	maxLimit     = 50
	maxBodyBytes = 4 << 20
)

// Config configures the upstream provider.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client searches the upstream provider.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New builds a client. An empty APIKey yields a client whose searches fail
// with CodeUnavailable.
func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{apiKey: strings.TrimSpace(cfg.APIKey), baseURL: base, http: httpClient}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

// Search returns the provider's result array for query, untouched.
func (c *Client) Search(ctx context.Context, query string, limit int) (json.RawMessage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.Invalid("q", "search query is required")
	}
	if !c.Enabled() {
		return nil, apperrors.New(apperrors.CodeUnavailable, "gif search is not configured")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("rating", "pg-13")
	endpoint := c.baseURL + "/v1/gifs/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build gif search request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "gif provider unreachable", redactKey(err, c.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnavailable, "read gif provider response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.CodeUnavailable, fmt.Sprintf("gif provider returned %d", resp.StatusCode))
	}

	data := gjson.GetBytes(body, "data")
	if !data.IsArray() {
		return nil, apperrors.New(apperrors.CodeUnavailable, "gif provider response has no data array")
	}
	return json.RawMessage(data.Raw), nil
}

// redactKey strips the API key from transport errors, which embed the URL.
func redactKey(err error, key string) error {
	if key == "" || !strings.Contains(err.Error(), key) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), key, "REDACTED"))
}
