package client

import (
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/castillorm/graphctl/cmd/graphctl/internal/config"
	"github.com/castillorm/graphctl/pkg/sdk"
)

// Provider yields an SDK client wired from the loaded configuration.
// The client is built once; tokens are still acquired per request.
type Provider struct {
	cfg        *config.Config
	logger     *zap.SugaredLogger
	httpClient *http.Client

	sdkOnce   sync.Once
	sdkClient *sdk.Client
	sdkErr    error
}

// NewProvider constructs a new Provider bound to cfg.
func NewProvider(cfg *config.Config, logger *zap.SugaredLogger) *Provider {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Provider{cfg: cfg, logger: logger}
}

// SetHTTPClient overrides the HTTP client for both token and directory requests (for testing).
func (p *Provider) SetHTTPClient(httpClient *http.Client) {
	p.httpClient = httpClient
}

// SDKClient returns the directory client, constructing it on first use.
func (p *Provider) SDKClient() (*sdk.Client, error) {
	p.sdkOnce.Do(func() {
		scope, err := sdk.DefaultScope(p.cfg.GraphAPIURL)
		if err != nil {
			p.sdkErr = err
			return
		}

		tokens, err := sdk.NewTokenProvider(p.cfg.CredentialBackend, sdk.TokenProviderConfig{
			Account:       p.cfg.ServiceAccount(),
			AuthorityHost: p.cfg.AuthorityHost,
			Scope:         scope,
			HTTPClient:    p.httpClient,
			Logger:        p.logger,
		})
		if err != nil {
			p.sdkErr = err
			return
		}

		opts := []sdk.ClientOption{
			sdk.WithTenantDomain(p.cfg.TenantDomain),
			sdk.WithLogger(p.logger),
		}
		if p.httpClient != nil {
			opts = append(opts, sdk.WithHTTPClient(p.httpClient))
		}
		p.sdkClient = sdk.NewClient(p.cfg.GraphAPIURL, tokens, opts...)
	})

	if p.sdkErr != nil {
		return nil, p.sdkErr
	}
	return p.sdkClient, nil
}
