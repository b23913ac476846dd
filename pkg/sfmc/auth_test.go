package sfmc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCachedWithinValidity(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	client := newTestClient(t, auth.URL, "", "")

	ctx := context.Background()
	first, err := client.Token(ctx)
	require.NoError(t, err)
	require.Equal(t, "tok-1", first)

	for i := 0; i < 5; i++ {
		tok, err := client.Token(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, tok)
	}

	assert.Equal(t, int32(1), exchanges.Load(), "calls within validity must not re-exchange")
}

func TestTokenRefreshedAfterExpiry(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	client := newTestClient(t, auth.URL, "", "")

	ctx := context.Background()
	first, err := client.Token(ctx)
	require.NoError(t, err)

	expireToken(client)

	second, err := client.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, int32(2), exchanges.Load(), "expiry must trigger exactly one refresh")
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	var exchanges atomic.Int32
	auth := newAuthServer(t, &exchanges)
	client := newTestClient(t, auth.URL, "", "")

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = client.Token(context.Background())
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-1", tokens[i], "all callers must observe the same token")
	}
	assert.Equal(t, int32(1), exchanges.Load(), "concurrent callers must not trigger duplicate refreshes")
}

func TestAuthErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client"}`, http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, "", "")

	_, err := client.Token(context.Background())
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Contains(t, authErr.Body, "invalid_client")
}

func TestAuthErrorOnMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, "", "")

	_, err := client.Token(context.Background())
	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
}

func TestAuthErrorOnMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token_type":"Bearer","expires_in":1200}`))
	}))
	t.Cleanup(srv.Close)

	client := newTestClient(t, srv.URL, "", "")

	_, err := client.Token(context.Background())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
}
