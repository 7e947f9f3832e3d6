package ecommerce

import (
	"errors"
	"time"

	"github.com/pricecycle/backend/internal/infrastructure/config"
)

// GraphQL endpoints of the storefront
const (
	OfficialEndpoint = "https://api.mercari-shops.com/v1/graphql"
	SandboxEndpoint  = "https://api.mercari-shops-sandbox.com/v1/graphql"
	WebEndpoint      = "https://mercari-shops.com/graphql"
)

// Endpoint modes
const (
	ModeOfficial = config.PlatformOfficial
	ModeWeb      = config.PlatformWeb
)

const (
	defaultPageSize         = 100
	defaultTimeout          = 30 * time.Second
	defaultEmulatedBatchGap = 100 * time.Millisecond
	defaultClientName       = "pricecycle"
)

// Errors for GraphQL configuration
var (
	ErrConfigInvalidMode  = errors.New("graphql: mode must be official or web")
	ErrConfigMissingToken = errors.New("graphql: access token is required")
)

// GraphQLConfig holds configuration for the storefront GraphQL adapter
type GraphQLConfig struct {
	// Mode selects the official token API or the seller web endpoint
	Mode string
	// Endpoint overrides the default URL of the mode
	Endpoint string
	// Token is the bearer token (official) or the session id_token cookie (web)
	Token string
	// ShopID skips shop discovery in web mode
	ShopID string
	// Sandbox selects the official sandbox endpoint
	Sandbox bool
	// PageSize is the listing page size
	PageSize int
	// Timeout is the HTTP request timeout
	Timeout time.Duration
	// EmulatedBatchGap separates the sequential calls of a web mode batch
	EmulatedBatchGap time.Duration
	// ClientName and Version form the User-Agent of official calls
	ClientName string
	Version    string
}

// NewGraphQLConfig maps the platform section of the application config
func NewGraphQLConfig(cfg config.PlatformConfig, emulatedBatchGap time.Duration) *GraphQLConfig {
	return &GraphQLConfig{
		Mode:             cfg.Mode,
		Endpoint:         cfg.Endpoint,
		Token:            cfg.Token,
		ShopID:           cfg.ShopID,
		Sandbox:          cfg.Sandbox,
		PageSize:         cfg.PageSize,
		Timeout:          cfg.Timeout,
		EmulatedBatchGap: emulatedBatchGap,
	}
}

// Validate validates the configuration and fills defaults
func (c *GraphQLConfig) Validate() error {
	if c.Mode != ModeOfficial && c.Mode != ModeWeb {
		return ErrConfigInvalidMode
	}
	if c.Token == "" {
		return ErrConfigMissingToken
	}
	if c.PageSize <= 0 || c.PageSize > defaultPageSize {
		c.PageSize = defaultPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.EmulatedBatchGap <= 0 {
		c.EmulatedBatchGap = defaultEmulatedBatchGap
	}
	if c.ClientName == "" {
		c.ClientName = defaultClientName
	}
	if c.Version == "" {
		c.Version = "1.0.0"
	}
	return nil
}

// URL returns the endpoint of the configured mode
func (c *GraphQLConfig) URL() string {
	switch {
	case c.Endpoint != "":
		return c.Endpoint
	case c.Mode == ModeWeb:
		return WebEndpoint
	case c.Sandbox:
		return SandboxEndpoint
	default:
		return OfficialEndpoint
	}
}
