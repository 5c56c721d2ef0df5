package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notionmirror/notionmirror/pkg/errors"
)

func newTestClient(server *httptest.Server) *HTTPClient {
	return NewHTTPClient(Options{
		BaseURL:       server.URL,
		Token:         "test-token",
		APIVersion:    "2022-06-28",
		RatePerSecond: 1000,
		MaxRetries:    3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
	})
}

func TestSearchPaginates(t *testing.T) {
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/search", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		cursor, _ := payload["start_cursor"].(string)
		cursors = append(cursors, cursor)

		if cursor == "" {
			writeJSON(w, map[string]interface{}{
				"results":     []map[string]string{{"id": "page-1", "object": "page"}},
				"has_more":    true,
				"next_cursor": "abc",
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"results":  []map[string]string{{"id": "page-2", "object": "page"}},
			"has_more": false,
		})
	}))
	defer server.Close()

	objects, err := newTestClient(server).Search(context.Background(), ObjectPage)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "page-1", objects[0].ID)
	assert.Equal(t, "page-2", objects[1].ID)
	assert.Equal(t, []string{"", "abc"}, cursors)
}

func TestSearchDatabaseFilterFallback(t *testing.T) {
	var filters []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Filter map[string]string `json:"filter"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		filters = append(filters, payload.Filter["value"])

		if payload.Filter["value"] == "data_source" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message": "filter value data_source is invalid"}`))
			return
		}
		writeJSON(w, map[string]interface{}{
			"results":  []map[string]string{{"id": "db-1", "object": "database"}},
			"has_more": false,
		})
	}))
	defer server.Close()

	objects, err := newTestClient(server).Search(context.Background(), ObjectDatabase)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, []string{"data_source", "database"}, filters)
}

func TestRequestRetriesTransientErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.Header().Set("Retry-After", "0.001")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, map[string]string{"id": "page-1", "object": "page"})
	}))
	defer server.Close()

	obj, err := newTestClient(server).GetPage(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-1", obj.ID)
	assert.Equal(t, 3, attempts)
}

func TestRequestExhaustsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server).GetPage(context.Background(), "page-1")
	require.Error(t, err)

	var unavailable errors.SourceUnavailable
	assert.True(t, errors.As(err, &unavailable))
}

func TestRequestDoesNotRetryForbidden(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message": "restricted"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).GetPage(context.Background(), "page-1")
	require.Error(t, err)

	apiErr, ok := err.(APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, apiErr.Transient())
	assert.Equal(t, 1, attempts)
}

func TestRequestRepairsAPIVersion(t *testing.T) {
	var versions []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := r.Header.Get("Notion-Version")
		versions = append(versions, version)
		if version != fallbackAPIVersion {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message": "Notion-Version header is invalid"}`))
			return
		}
		writeJSON(w, map[string]string{"id": "page-1", "object": "page"})
	}))
	defer server.Close()

	client := NewHTTPClient(Options{
		BaseURL:       server.URL,
		APIVersion:    "2099-01-01",
		RatePerSecond: 1000,
		BaseDelay:     time.Millisecond,
	})
	obj, err := client.GetPage(context.Background(), "page-1")
	require.NoError(t, err)
	assert.Equal(t, "page-1", obj.ID)
	assert.Equal(t, []string{"2099-01-01", fallbackAPIVersion}, versions)
}

func TestRequestRepairsAPIVersionConcurrently(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Notion-Version") != fallbackAPIVersion {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message": "Notion-Version header is invalid"}`))
			return
		}
		writeJSON(w, map[string]string{"id": "page-1", "object": "page"})
	}))
	defer server.Close()

	client := NewHTTPClient(Options{
		BaseURL:       server.URL,
		APIVersion:    "2099-01-01",
		RatePerSecond: 1000,
		BaseDelay:     time.Millisecond,
	})

	// Several walker-style workers all hit the bad version at once; each one
	// must recover through the shared fallback without tripping the race
	// detector.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := client.GetPage(context.Background(), "page-1")
			assert.NoError(t, err)
			assert.Equal(t, "page-1", obj.ID)
		}()
	}
	wg.Wait()
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	assert.Equal(t, 2*time.Second, parseRetryAfter("2"))
	assert.Equal(t, 1500*time.Millisecond, parseRetryAfter("1.5"))
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
