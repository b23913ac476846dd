package sfmc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Tokens are valid for 20 minutes; we refresh one minute before the
// server-declared expiry to avoid dispatching with a nearly-dead token.
const (
	defaultTokenLifetime = 1200 * time.Second
	tokenSafetyMargin    = 60 * time.Second
)

// AuthResponse represents the OAuth token response
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// AuthRequest represents the OAuth client-credentials token request
type AuthRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	AccountID    string `json:"account_id,omitempty"`
}

// Token returns a valid access token, using the cache if available.
// Readers of a still-valid token never block; expired readers serialize
// behind a single exchange, so at most one refresh is in flight at a time.
func (c *Client) Token(ctx context.Context) (string, error) {
	c.tokenCache.mu.RLock()
	if c.tokenCache.accessToken != "" && time.Now().Before(c.tokenCache.expiresAt) {
		token := c.tokenCache.accessToken
		remaining := time.Until(c.tokenCache.expiresAt)
		c.tokenCache.mu.RUnlock()
		c.logger.Debug("Using cached access token", zap.Duration("remaining", remaining))
		return token, nil
	}
	c.tokenCache.mu.RUnlock()

	c.tokenCache.mu.Lock()
	defer c.tokenCache.mu.Unlock()

	// Re-check under the write lock: a racer may have refreshed while we
	// waited for it.
	if c.tokenCache.accessToken != "" && time.Now().Before(c.tokenCache.expiresAt) {
		return c.tokenCache.accessToken, nil
	}

	c.logger.Info("Access token expired or not available, authenticating")
	authResp, err := c.Authenticate(ctx)
	if err != nil {
		c.logger.Error("Failed to authenticate", zap.Error(err))
		return "", err
	}

	expiresIn := time.Duration(authResp.ExpiresIn) * time.Second
	if expiresIn == 0 {
		expiresIn = defaultTokenLifetime
	}

	c.tokenCache.accessToken = authResp.AccessToken
	c.tokenCache.tokenType = authResp.TokenType
	c.tokenCache.expiresAt = time.Now().Add(expiresIn - tokenSafetyMargin)

	c.logger.Info("Successfully authenticated and cached access token",
		zap.Duration("expires_in", expiresIn),
		zap.Time("expires_at", c.tokenCache.expiresAt))

	return authResp.AccessToken, nil
}

// invalidateToken drops the cached token, but only if it is still the
// one the caller used. After a 401 every racer calls this with the token
// it sent; only the first actually clears the cache, so a single stale
// token triggers at most one forced refresh.
func (c *Client) invalidateToken(used string) {
	c.tokenCache.mu.Lock()
	defer c.tokenCache.mu.Unlock()
	if c.tokenCache.accessToken == used {
		c.tokenCache.accessToken = ""
		c.tokenCache.expiresAt = time.Time{}
	}
}

// Authenticate performs the OAuth2 client-credentials exchange. Callers
// normally go through Token; this is exported for credential checks.
func (c *Client) Authenticate(ctx context.Context) (*AuthResponse, error) {
	url := fmt.Sprintf("%s/v2/token", c.config.AuthURL)
	c.logger.Info("Authenticating with Marketing Cloud", zap.String("url", url))

	authReq := AuthRequest{
		GrantType:    "client_credentials",
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
	}
	if c.config.AccountID != "" {
		authReq.AccountID = c.config.AccountID
	}

	headers := map[string]string{
		"Content-Type": "application/json",
	}

	resp, err := c.httpClient.Post(ctx, url, headers, authReq)
	if err != nil {
		c.logger.Error("Authentication request failed", zap.Error(err), zap.String("url", url))
		return nil, &AuthError{Err: wrapTimeout("token exchange", err)}
	}

	if resp.StatusCode != 200 {
		c.logger.Error("Authentication failed",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(resp.Body)))
		return nil, &AuthError{Status: resp.StatusCode, Body: string(resp.Body)}
	}

	var authResp AuthResponse
	if err := json.Unmarshal(resp.Body, &authResp); err != nil {
		c.logger.Error("Failed to parse authentication response", zap.Error(err))
		return nil, &AuthError{Err: fmt.Errorf("failed to parse authentication response: %w", err)}
	}
	if authResp.AccessToken == "" {
		return nil, &AuthError{Err: fmt.Errorf("authentication response carried no access_token")}
	}

	c.logger.Info("Successfully authenticated",
		zap.String("token_type", authResp.TokenType),
		zap.Int("expires_in", authResp.ExpiresIn))

	return &authResp, nil
}
