// Package client manages authenticated HTTP client creation for the Fabric REST API.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"evalgo.org/dataflowmigrator/internal/domain"
	"evalgo.org/dataflowmigrator/internal/helpers"
)

// Auth modes
const (
	AuthModeClientCredentials = "client_credentials"
	AuthModeToken             = "token"
)

// AuthConfig describes how bearer tokens are obtained.
type AuthConfig struct {
	Mode         string
	TenantID     string
	ClientID     string
	ClientSecret string
	// TokenURL wins over Issuer; with neither set the token URL is derived
	// from TenantID.
	TokenURL string
	// Issuer enables OIDC discovery of the token endpoint.
	Issuer string
	Scopes []string
	// Token is a pre-acquired access token for AuthModeToken.
	Token string
}

// Validate checks the fields the selected mode needs.
func (c AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeToken:
		if strings.TrimSpace(c.Token) == "" {
			return domain.NewValidationError("auth.token", "required when auth.mode is token")
		}
	case AuthModeClientCredentials:
		if c.ClientID == "" || c.ClientSecret == "" {
			return domain.NewValidationError("auth.client_id", "client id and secret are required for client_credentials")
		}
		if c.TokenURL == "" && c.Issuer == "" && c.TenantID == "" {
			return domain.NewValidationError("auth.tenant_id", "one of tenant_id, token_url or issuer is required")
		}
	default:
		return domain.NewValidationError("auth.mode", fmt.Sprintf("unknown mode %q", c.Mode))
	}
	return nil
}

// Manager handles authenticated API client creation and caching
type Manager struct {
	auth    AuthConfig
	timeout time.Duration
	debug   bool
	cache   map[string]*cachedAPI
	mu      sync.RWMutex
}

type cachedAPI struct {
	api    *API
	source oauth2.TokenSource
}

// NewManager creates a new client manager
func NewManager(auth AuthConfig, timeout time.Duration, debug bool) *Manager {
	return &Manager{
		auth:    auth,
		timeout: timeout,
		debug:   debug,
		cache:   make(map[string]*cachedAPI),
	}
}

// GetAPI returns an authenticated API client for baseURL.
// Clients are cached so token sources and discovery results are reused.
func (m *Manager) GetAPI(ctx context.Context, baseURL string) (*API, error) {
	entry, err := m.get(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	return entry.api, nil
}

// Identity returns the claims of the token currently used for baseURL.
func (m *Manager) Identity(ctx context.Context, baseURL string) (TokenInfo, error) {
	entry, err := m.get(ctx, baseURL)
	if err != nil {
		return TokenInfo{}, err
	}
	tok, err := entry.source.Token()
	if err != nil {
		return TokenInfo{}, fmt.Errorf("acquire token: %w", err)
	}
	return InspectToken(tok.AccessToken)
}

// ClearCache clears the cached clients
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]*cachedAPI)
	m.mu.Unlock()
}

func (m *Manager) get(ctx context.Context, baseURL string) (*cachedAPI, error) {
	baseURL = helpers.NormalizeURL(baseURL)

	m.mu.RLock()
	if cached, exists := m.cache[baseURL]; exists {
		m.mu.RUnlock()
		return cached, nil
	}
	m.mu.RUnlock()

	if err := m.auth.Validate(); err != nil {
		return nil, err
	}

	base := &http.Client{Timeout: m.timeout}
	if m.debug {
		base = helpers.EnableHTTPDebugLogging(base)
	}

	source, err := m.tokenSource(ctx, base)
	if err != nil {
		return nil, err
	}

	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	authed := &http.Client{
		Timeout:   m.timeout,
		Transport: &oauth2.Transport{Source: source, Base: transport},
	}

	entry := &cachedAPI{api: NewAPI(baseURL, authed, m.timeout), source: source}

	m.mu.Lock()
	m.cache[baseURL] = entry
	m.mu.Unlock()

	return entry, nil
}

// tokenSource builds a reusing token source for the configured mode. The
// base client carries the debug transport into token endpoint calls.
func (m *Manager) tokenSource(ctx context.Context, base *http.Client) (oauth2.TokenSource, error) {
	if m.auth.Mode == AuthModeToken {
		return oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: strings.TrimSpace(m.auth.Token),
			TokenType:   "Bearer",
		}), nil
	}

	tokenURL, err := m.resolveTokenURL(ctx, base)
	if err != nil {
		return nil, err
	}

	scopes := m.auth.Scopes
	if len(scopes) == 0 {
		scopes = []string{helpers.DefaultFabricScope}
	}

	cc := clientcredentials.Config{
		ClientID:     m.auth.ClientID,
		ClientSecret: m.auth.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	// Token refreshes outlive the ctx of the first call.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	return oauth2.ReuseTokenSource(nil, cc.TokenSource(tokenCtx)), nil
}

func (m *Manager) resolveTokenURL(ctx context.Context, base *http.Client) (string, error) {
	if m.auth.TokenURL != "" {
		return m.auth.TokenURL, nil
	}
	if m.auth.Issuer != "" {
		provider, err := oidc.NewProvider(oidc.ClientContext(ctx, base), m.auth.Issuer)
		if err != nil {
			return "", domain.NewOperationError("oidc-discovery", "failed to discover token endpoint", err)
		}
		return provider.Endpoint().TokenURL, nil
	}
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", helpers.DefaultAuthorityURL, m.auth.TenantID), nil
}
