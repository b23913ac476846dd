package sfmc

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/natserract/sfmc/pkg/config"
	"go.uber.org/zap"
)

// newTestClient wires a client against httptest fakes. Empty URLs are
// fine for tests that never touch that protocol.
func newTestClient(t *testing.T, authURL, soapURL, restURL string) *Client {
	t.Helper()
	cfg := &config.Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		AuthURL:      authURL,
		RestBaseURL:  restURL,
		SoapEndpoint: soapURL,
	}
	return NewWithLogger(cfg, zap.NewNop())
}

// newAuthServer fakes the token endpoint. Every exchange increments
// exchanges and mints a distinct token, so tests can count refreshes and
// observe token rotation.
func newAuthServer(t *testing.T, exchanges *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/token" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		n := exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":1200}`, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// expireToken forces the cached token past its expiry without waiting.
func expireToken(c *Client) {
	c.tokenCache.mu.Lock()
	c.tokenCache.expiresAt = time.Now().Add(-time.Minute)
	c.tokenCache.mu.Unlock()
}
