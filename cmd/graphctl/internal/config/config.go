package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/castillorm/graphctl/pkg/sdk"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "config.json"

// EnvPrefix is the prefix for environment overrides, e.g. GRAPHCTL_TENANT_ID.
const EnvPrefix = "GRAPHCTL"

// Configuration keys.
const (
	KeyTenantID          = "tenant_id"
	KeyClientID          = "client_id"
	KeyClientSecret      = "client_secret"
	KeyGraphAPIURL       = "graph_api_url"
	KeyTenantDomain      = "tenant_domain"
	KeyAuthorityHost     = "authority_host"
	KeyCredentialBackend = "credential_backend"
	KeyRequestTimeout    = "request_timeout"
)

const defaultRequestTimeout = 30 * time.Second

// Config holds the settings loaded once at startup.
// It is treated as immutable after Load returns.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// GraphAPIURL is the directory API root (default https://graph.microsoft.com/v1.0)
	GraphAPIURL string

	// TenantDomain builds principal names for new accounts; only create requires it.
	TenantDomain string

	AuthorityHost     string
	CredentialBackend string
	RequestTimeout    time.Duration
}

// ServiceAccount returns the application identity used for the client-credentials grant.
func (c *Config) ServiceAccount() sdk.ServiceAccount {
	return sdk.ServiceAccount{
		TenantID:     c.TenantID,
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// Validate checks required fields and enumerates every missing key.
func (c *Config) Validate() error {
	if err := c.ServiceAccount().Validate(); err != nil {
		return err
	}
	if _, err := sdk.DefaultScope(c.GraphAPIURL); err != nil {
		return err
	}
	switch c.CredentialBackend {
	case sdk.BackendOAuth2, sdk.BackendAzureIdentity:
	default:
		return &sdk.ConfigurationError{Reason: fmt.Sprintf("unknown %s %q", KeyCredentialBackend, c.CredentialBackend)}
	}
	if c.RequestTimeout <= 0 {
		return &sdk.ConfigurationError{Reason: fmt.Sprintf("%s must be positive", KeyRequestTimeout)}
	}
	return nil
}

// Load reads configuration from path (or DefaultFile when empty), a .env file in the
// working directory and GRAPHCTL_* environment variables. Environment values take
// precedence over the file. A missing explicit path is an error; a missing default
// file is not, so environment-only setups work.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range []string{
		KeyTenantID, KeyClientID, KeyClientSecret, KeyGraphAPIURL,
		KeyTenantDomain, KeyAuthorityHost, KeyCredentialBackend, KeyRequestTimeout,
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, &sdk.ConfigurationError{Reason: "failed to bind environment", Err: err}
		}
	}
	v.SetDefault(KeyGraphAPIURL, sdk.DefaultGraphAPIURL)
	v.SetDefault(KeyAuthorityHost, sdk.DefaultAuthorityHost)
	v.SetDefault(KeyCredentialBackend, sdk.BackendOAuth2)
	v.SetDefault(KeyRequestTimeout, defaultRequestTimeout.String())

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if explicit || !isNotExist(err) {
			return nil, &sdk.ConfigurationError{Reason: fmt.Sprintf("failed to read %s", path), Err: err}
		}
	}

	cfg := &Config{
		TenantID:          v.GetString(KeyTenantID),
		ClientID:          v.GetString(KeyClientID),
		ClientSecret:      v.GetString(KeyClientSecret),
		GraphAPIURL:       v.GetString(KeyGraphAPIURL),
		TenantDomain:      v.GetString(KeyTenantDomain),
		AuthorityHost:     v.GetString(KeyAuthorityHost),
		CredentialBackend: v.GetString(KeyCredentialBackend),
	}

	timeout, err := time.ParseDuration(v.GetString(KeyRequestTimeout))
	if err != nil {
		return nil, &sdk.ConfigurationError{Reason: fmt.Sprintf("invalid %s", KeyRequestTimeout), Err: err}
	}
	cfg.RequestTimeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err)
}

type contextKey string

const configKey contextKey = "graphctl-config"

// InjectConfig adds config to the cobra command context.
// This should be called in the root command's PersistentPreRunE.
func InjectConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from the cobra command context.
// Returns (nil, false) if config is not present.
func FromContext(ctx context.Context) (*Config, bool) {
	cfg, ok := ctx.Value(configKey).(*Config)
	return cfg, ok
}

// MustFromContext retrieves config from context or panics.
// This should only be used in command RunE functions where we know
// the config has been injected by the root command.
func MustFromContext(ctx context.Context) *Config {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("graphctl: config not found in context - this is a bug in graphctl")
	}
	return cfg
}
