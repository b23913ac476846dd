// Package sfmc provides a client for the Salesforce Marketing Cloud
// (ExactTarget) platform, which exposes two heterogeneous API surfaces:
//
//   - the legacy SOAP partner API (DataExtension, DataFolder,
//     QueryDefinition and friends), an XML remote-procedure protocol with
//     MoreDataAvailable/ContinueRequest paging, and
//   - the modern REST API (Content Builder assets, automations,
//     journeys), plain HTTP+JSON with $page/$pagesize paging.
//
// One Client drives both over a single cached OAuth2 bearer token. A
// static catalog maps logical object names to their protocol and
// wire-level identifiers so that the generic fetch and copy operations
// need no per-object code.
package sfmc

import (
	"sync"
	"time"

	"github.com/natserract/sfmc/pkg/config"
	httpclient "github.com/natserract/sfmc/pkg/http"
	"go.uber.org/zap"
)

// Client is the unified Marketing Cloud client. One instance serves one
// account; independent calls may run concurrently and share the token
// cache.
type Client struct {
	config     *config.Config
	httpClient *httpclient.Client
	tokenCache *tokenCache
	catalog    *Catalog
	logger     *zap.Logger
}

// tokenCache manages the OAuth access token with thread-safe access.
// The write lock is held across the exchange so that concurrent callers
// observing an expired token block behind a single refresh.
type tokenCache struct {
	mu          sync.RWMutex
	accessToken string
	tokenType   string
	expiresAt   time.Time
}

// New creates a new client with the default production logger.
func New(cfg *config.Config) *Client {
	logger, _ := zap.NewProduction()
	if cfg != nil && cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}
	return NewWithLogger(cfg, logger)
}

// NewWithLogger creates a new client with a custom logger.
func NewWithLogger(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		config:     cfg,
		httpClient: httpclient.NewClientWithLogger(logger),
		tokenCache: &tokenCache{},
		catalog:    DefaultCatalog(),
		logger:     logger,
	}
}

// WithCatalog replaces the embedded default catalog, e.g. with one loaded
// from disk via LoadCatalogDir.
func (c *Client) WithCatalog(cat *Catalog) *Client {
	c.catalog = cat
	return c
}

// Catalog returns the object catalog in use.
func (c *Client) Catalog() *Catalog {
	return c.catalog
}
