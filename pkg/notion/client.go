package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

// fallbackAPIVersion is a known-good Notion-Version header value. When the
// configured version is rejected, we retry once with this one.
const fallbackAPIVersion = "2022-06-28"

// Client is the content-fetching capability the walker and mirror builder
// consume. Implementations must be safe for concurrent use.
type Client interface {
	// Search enumerates every page or database shared with the integration.
	Search(ctx context.Context, objectType string) ([]Object, error)

	// GetPage fetches the current metadata for a page.
	GetPage(ctx context.Context, pageID string) (Object, error)

	// GetDatabase fetches the current metadata for a database.
	GetDatabase(ctx context.Context, databaseID string) (Object, error)

	// QueryDatabase lists the member pages of a database.
	QueryDatabase(ctx context.Context, databaseID string) ([]Object, error)

	// ListBlockChildren lists the direct child blocks of a page or block.
	ListBlockChildren(ctx context.Context, blockID string) ([]Block, error)
}

// APIError is a non-2xx response from the Notion API.
type APIError struct {
	StatusCode int
	Body       string
}

func (err APIError) Error() string {
	return fmt.Sprintf("notion api error %d: %s", err.StatusCode, err.Body)
}

// Transient returns whether the request may succeed if retried.
func (err APIError) Transient() bool {
	switch err.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Options configures the HTTP client. Zero values get sensible defaults.
type Options struct {
	BaseURL    string
	Token      string
	APIVersion string
	HTTPClient *http.Client

	// RatePerSecond bounds the request rate across all callers. Notion's
	// public limit is an average of 3 requests per second per integration.
	RatePerSecond int

	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// HTTPClient talks to the Notion REST API. All requests go through a single
// shared rate limiter, so concurrent walker workers can't exceed the
// integration's quota between them.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	// apiVersion can be rewritten by the fallback while concurrent walker
	// workers are reading it, so access goes through the mutex.
	mu         sync.Mutex
	apiVersion string
}

// NewHTTPClient creates a Notion API client.
func NewHTTPClient(opts Options) *HTTPClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.notion.com"
	}
	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = fallbackAPIVersion
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	ratePerSecond := opts.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 3
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 8
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	return &HTTPClient{
		baseURL:    baseURL,
		token:      opts.Token,
		apiVersion: apiVersion,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond),
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   maxDelay,
	}
}

type listResponse struct {
	Results    []json.RawMessage `json:"results"`
	HasMore    bool              `json:"has_more"`
	NextCursor string            `json:"next_cursor"`
}

// Search implements Client.
func (c *HTTPClient) Search(ctx context.Context, objectType string) ([]Object, error) {
	// The search filter expects "data_source" for databases on current API
	// versions. Fall back to "database" if the server rejects it.
	filterValue := objectType
	if objectType == ObjectDatabase {
		filterValue = "data_source"
	}

	objects, err := c.searchWithFilter(ctx, filterValue)
	if apiErr, ok := err.(APIError); ok && filterValue == "data_source" &&
		apiErr.StatusCode == http.StatusBadRequest {
		// Older API versions only accept "database" here.
		objects, err = c.searchWithFilter(ctx, ObjectDatabase)
	}
	return objects, err
}

func (c *HTTPClient) searchWithFilter(ctx context.Context, filterValue string) ([]Object, error) {
	var objects []Object
	cursor := ""
	for {
		payload := map[string]interface{}{
			"page_size": 100,
			"filter":    map[string]string{"property": "object", "value": filterValue},
		}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		var page listResponse
		if err := c.request(ctx, http.MethodPost, "/v1/search", payload, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Results {
			var obj Object
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, errors.WithContext(err, "decode search result")
			}
			objects = append(objects, obj)
		}

		if !page.HasMore {
			return objects, nil
		}
		cursor = page.NextCursor
	}
}

// GetPage implements Client.
func (c *HTTPClient) GetPage(ctx context.Context, pageID string) (Object, error) {
	var obj Object
	err := c.request(ctx, http.MethodGet, "/v1/pages/"+pageID, nil, &obj)
	return obj, err
}

// GetDatabase implements Client.
func (c *HTTPClient) GetDatabase(ctx context.Context, databaseID string) (Object, error) {
	var obj Object
	err := c.request(ctx, http.MethodGet, "/v1/databases/"+databaseID, nil, &obj)
	return obj, err
}

// QueryDatabase implements Client.
func (c *HTTPClient) QueryDatabase(ctx context.Context, databaseID string) ([]Object, error) {
	var pages []Object
	cursor := ""
	for {
		payload := map[string]interface{}{"page_size": 100}
		if cursor != "" {
			payload["start_cursor"] = cursor
		}

		var page listResponse
		path := "/v1/databases/" + databaseID + "/query"
		if err := c.request(ctx, http.MethodPost, path, payload, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Results {
			var obj Object
			if err := json.Unmarshal(raw, &obj); err != nil {
				return nil, errors.WithContext(err, "decode query result")
			}
			pages = append(pages, obj)
		}

		if !page.HasMore {
			return pages, nil
		}
		cursor = page.NextCursor
	}
}

// ListBlockChildren implements Client.
func (c *HTTPClient) ListBlockChildren(ctx context.Context, blockID string) ([]Block, error) {
	var blocks []Block
	cursor := ""
	for {
		path := "/v1/blocks/" + blockID + "/children?page_size=100"
		if cursor != "" {
			path += "&start_cursor=" + cursor
		}

		var page listResponse
		if err := c.request(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}

		for _, raw := range page.Results {
			var block Block
			if err := json.Unmarshal(raw, &block); err != nil {
				return nil, errors.WithContext(err, "decode block")
			}
			blocks = append(blocks, block)
		}

		if !page.HasMore {
			return blocks, nil
		}
		cursor = page.NextCursor
	}
}

// request performs one API call with rate limiting and bounded retries.
// Transient failures (429 and 5xx) back off exponentially, honoring the
// server's Retry-After when it's longer. An invalid Notion-Version header is
// repaired once by falling back to a known-good version.
func (c *HTTPClient) request(ctx context.Context, method, path string, payload, result interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return errors.WithContext(err, "marshal request")
		}
	}

	delay := c.baseDelay
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		apiVersion := c.currentAPIVersion()
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return errors.WithContext(err, "build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", apiVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
			delay = nextDelay(delay, c.maxDelay)
			continue
		}

		var respBody bytes.Buffer
		_, readErr := respBody.ReadFrom(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return errors.WithContext(readErr, "read response")
		}

		if resp.StatusCode == http.StatusBadRequest &&
			strings.Contains(respBody.String(), "Notion-Version") &&
			apiVersion != fallbackAPIVersion {
			c.repairAPIVersion()
			continue
		}

		apiErr := APIError{StatusCode: resp.StatusCode, Body: respBody.String()}
		if apiErr.Transient() {
			if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > delay {
				delay = retryAfter
			}
			if err := sleepContext(ctx, delay); err != nil {
				return err
			}
			delay = nextDelay(delay, c.maxDelay)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return apiErr
		}

		if result == nil {
			return nil
		}
		if err := json.Unmarshal(respBody.Bytes(), result); err != nil {
			return errors.WithContext(err, "decode response")
		}
		return nil
	}

	return errors.SourceUnavailable{
		Op:  fmt.Sprintf("%s %s", method, path),
		Err: errors.New("request failed after retries"),
	}
}

func (c *HTTPClient) currentAPIVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.apiVersion
}

func (c *HTTPClient) repairAPIVersion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiVersion = fallbackAPIVersion
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.ParseFloat(header, 64)
	if err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func nextDelay(delay, max time.Duration) time.Duration {
	delay *= 2
	if delay > max {
		return max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
