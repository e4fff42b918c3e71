// pkg/sdk/auth.go
package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultAuthorityHost is the Entra ID login host.
	DefaultAuthorityHost = "login.microsoftonline.com"
	// DefaultGraphAPIURL is the v1.0 production Graph endpoint.
	DefaultGraphAPIURL = "https://graph.microsoft.com/v1.0"

	// BackendOAuth2 acquires tokens with golang.org/x/oauth2/clientcredentials.
	BackendOAuth2 = "oauth2"
	// BackendAzureIdentity acquires tokens with azidentity.ClientSecretCredential.
	BackendAzureIdentity = "azidentity"
)

// TokenProvider yields a freshly issued access token on every call.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

// TokenProviderConfig configures a TokenProvider.
type TokenProviderConfig struct {
	Account ServiceAccount

	// AuthorityHost is the identity provider host, with or without scheme.
	// Defaults to DefaultAuthorityHost.
	AuthorityHost string

	// Scope requested for the token, e.g. "https://graph.microsoft.com/.default".
	Scope string

	// HTTPClient overrides the client used for the token request.
	HTTPClient *http.Client

	Logger *zap.SugaredLogger
}

// NewTokenProvider returns the TokenProvider implementation for backend.
// An empty backend selects BackendOAuth2.
func NewTokenProvider(backend string, cfg TokenProviderConfig) (TokenProvider, error) {
	if err := cfg.Account.Validate(); err != nil {
		return nil, err
	}
	if cfg.Scope == "" {
		return nil, &ConfigurationError{Reason: "token scope is required"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	switch backend {
	case "", BackendOAuth2:
		return NewClientCredentialsProvider(cfg), nil
	case BackendAzureIdentity:
		return NewAzureIdentityProvider(cfg), nil
	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown credential_backend %q (expected %q or %q)", backend, BackendOAuth2, BackendAzureIdentity)}
	}
}

// AuthorityURL returns https://<host>/<tenant-id>.
func AuthorityURL(host, tenantID string) string {
	if host == "" {
		host = DefaultAuthorityHost
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return strings.TrimRight(host, "/") + "/" + tenantID
}

// TokenURL returns the v2.0 token endpoint for the tenant.
func TokenURL(host, tenantID string) string {
	return AuthorityURL(host, tenantID) + "/oauth2/v2.0/token"
}

// DefaultScope derives "<api-root>/.default" from the API base URL,
// so "https://graph.microsoft.com/v1.0" yields "https://graph.microsoft.com/.default".
func DefaultScope(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", &ConfigurationError{Reason: "invalid graph_api_url", Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &ConfigurationError{Reason: fmt.Sprintf("graph_api_url %q must be an absolute URL", apiURL)}
	}
	return u.Scheme + "://" + u.Host + "/.default", nil
}

// ClientCredentialsProvider performs one OAuth2 client-credentials grant per Token call.
// It never reuses a previously issued token.
type ClientCredentialsProvider struct {
	config     clientcredentials.Config
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClientCredentialsProvider builds a provider against the tenant's v2.0 token endpoint.
func NewClientCredentialsProvider(cfg TokenProviderConfig) *ClientCredentialsProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ClientCredentialsProvider{
		config: clientcredentials.Config{
			ClientID:     cfg.Account.ClientID,
			ClientSecret: cfg.Account.ClientSecret,
			TokenURL:     TokenURL(cfg.AuthorityHost, cfg.Account.TenantID),
			Scopes:       []string{cfg.Scope},
			// Entra ID accepts credentials in the form body; this avoids
			// the auto-detect probe issuing a second request on failure.
			AuthStyle: oauth2.AuthStyleInParams,
		},
		httpClient: cfg.HTTPClient,
		logger:     logger,
	}
}

// Token exchanges the client credentials for a new access token.
func (p *ClientCredentialsProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	start := time.Now()
	// Config.Token always hits the token endpoint; TokenSource would cache.
	token, err := p.config.Token(ctx)
	if err != nil {
		p.logger.Debugw("token request failed", "backend", BackendOAuth2, "token_url", p.config.TokenURL, "error", err)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &AuthenticationError{
				Code:        retrieveErr.ErrorCode,
				Description: retrieveErr.ErrorDescription,
				Err:         err,
			}
		}
		return nil, &AuthenticationError{Err: err}
	}
	if token.AccessToken == "" {
		return nil, &AuthenticationError{Err: errors.New("token response did not include an access token")}
	}

	p.logger.Debugw("acquired access token",
		"backend", BackendOAuth2,
		"scopes", p.config.Scopes,
		"expires_at", token.Expiry,
		"duration", time.Since(start),
	)
	return token, nil
}

// AzureIdentityProvider acquires tokens through azidentity.ClientSecretCredential.
// A new credential is built for every call so its internal cache is never reused.
// Instance discovery is disabled and tenant metadata is answered locally, so each
// Token call sends only the token request.
type AzureIdentityProvider struct {
	account       ServiceAccount
	authorityHost string
	scope         string
	httpClient    *http.Client
	logger        *zap.SugaredLogger
}

// NewAzureIdentityProvider builds an azidentity-backed provider.
func NewAzureIdentityProvider(cfg TokenProviderConfig) *AzureIdentityProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AzureIdentityProvider{
		account:       cfg.Account,
		authorityHost: strings.TrimSuffix(AuthorityURL(cfg.AuthorityHost, ""), "/") + "/",
		scope:         cfg.Scope,
		httpClient:    cfg.HTTPClient,
		logger:        logger,
	}
}

// Token requests a new access token for the configured scope.
func (p *AzureIdentityProvider) Token(ctx context.Context) (*oauth2.Token, error) {
	var next policy.Transporter = http.DefaultClient
	if p.httpClient != nil {
		next = p.httpClient
	}
	opts := &azidentity.ClientSecretCredentialOptions{
		ClientOptions: azcore.ClientOptions{
			Cloud:     cloud.Configuration{ActiveDirectoryAuthorityHost: p.authorityHost},
			Transport: &authorityMetadataTransport{authorityHost: p.authorityHost, next: next},
		},
		DisableInstanceDiscovery: true,
	}

	cred, err := azidentity.NewClientSecretCredential(p.account.TenantID, p.account.ClientID, p.account.ClientSecret, opts)
	if err != nil {
		return nil, &AuthenticationError{Err: fmt.Errorf("failed to create client secret credential: %w", err)}
	}

	start := time.Now()
	accessToken, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{p.scope}})
	if err != nil {
		p.logger.Debugw("token request failed", "backend", BackendAzureIdentity, "authority", p.authorityHost, "error", err)
		return nil, &AuthenticationError{Err: err}
	}
	if accessToken.Token == "" {
		return nil, &AuthenticationError{Err: errors.New("token response did not include an access token")}
	}

	p.logger.Debugw("acquired access token",
		"backend", BackendAzureIdentity,
		"scopes", []string{p.scope},
		"expires_at", accessToken.ExpiresOn,
		"duration", time.Since(start),
	)
	return &oauth2.Token{
		AccessToken: accessToken.Token,
		TokenType:   "Bearer",
		Expiry:      accessToken.ExpiresOn,
	}, nil
}

const openIDConfigurationSuffix = "/v2.0/.well-known/openid-configuration"

// authorityMetadataTransport answers tenant OpenID metadata lookups for the
// configured authority from the fixed v2.0 endpoint layout and passes every
// other request through.
type authorityMetadataTransport struct {
	authorityHost string
	next          policy.Transporter
}

func (t *authorityMetadataTransport) Do(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || !strings.HasSuffix(req.URL.Path, openIDConfigurationSuffix) {
		return t.next.Do(req)
	}
	authority, err := url.Parse(t.authorityHost)
	if err != nil || !strings.EqualFold(authority.Host, req.URL.Host) {
		return t.next.Do(req)
	}

	tenantID := strings.Trim(strings.TrimSuffix(req.URL.Path, openIDConfigurationSuffix), "/")
	base := AuthorityURL(req.URL.Scheme+"://"+req.URL.Host, tenantID)
	body, err := json.Marshal(map[string]string{
		"issuer":                 base + "/v2.0",
		"authorization_endpoint": base + "/oauth2/v2.0/authorize",
		"token_endpoint":         base + "/oauth2/v2.0/token",
	})
	if err != nil {
		return nil, err
	}

	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": []string{"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
