package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDoReturnsErrorStatusesWithoutRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := NewClientWithLogger(zap.NewNop())
	resp, err := c.Get(context.Background(), srv.URL, nil)
	require.NoError(t, err, "status codes are responses, not errors")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), attempts.Load(), "the caller owns status-code policy")
}

func TestDoRetriesDroppedConnections(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			// Kill the connection mid-flight to fake a transient network
			// failure.
			conn, _, err := w.(http.Hijacker).Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, "ok")
	}))
	t.Cleanup(srv.Close)

	c := NewClientWithLogger(zap.NewNop())
	resp, err := c.Do(RequestOptions{
		Method:          http.MethodGet,
		URL:             srv.URL,
		InitialInterval: time.Millisecond,
		MaxElapsed:      5 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(resp.Body))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDoTimeoutIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClientWithLogger(zap.NewNop())
	start := time.Now()
	_, err := c.Get(ctx, srv.URL, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout), "deadline errors carry the timeout sentinel")
	assert.Less(t, time.Since(start), 5*time.Second, "timeouts must not sit in the retry loop")
}

func TestDoSendsJSONBodyByDefault(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
	}))
	t.Cleanup(srv.Close)

	c := NewClientWithLogger(zap.NewNop())
	_, err := c.Post(context.Background(), srv.URL, nil, map[string]string{"grant_type": "client_credentials"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"grant_type":"client_credentials"}`, gotBody)
}

func TestBuildURL(t *testing.T) {
	u, err := BuildURL("https://rest.example.com", "/asset/v1/content/assets", map[string]string{"$page": "2"})
	require.NoError(t, err)
	assert.Equal(t, "https://rest.example.com/asset/v1/content/assets?%24page=2", u)
}

func TestBuildURLPreservesBasePath(t *testing.T) {
	u, err := BuildURL("https://host.example.com/prefix/", "v2/token", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://host.example.com/prefix/v2/token", u)
}
