package remote

// #region imports
import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// #endregion imports

// #region factory

// BackendConfig selects and configures one backend.
type BackendConfig struct {
	Provider string // gemini | openai | grpc | none
	APIKey   string
	BaseURL  string
	Model    string
	Addr     string
}

// NewBackend builds the configured backend. An empty or "none" provider, or a
// provider missing its credential, yields ErrNoBackend.
func NewBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none", "disabled":
		return nil, ErrNoBackend
	case "gemini":
		return NewGeminiBackend(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAIBackend(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "grpc":
		return DialGRPCBackend(cfg.Addr, cfg.Model)
	default:
		return nil, errors.Errorf("unknown remote provider %q", cfg.Provider)
	}
}

// NewFromConfig builds a ready client. Any backend construction failure yields
// a permanently disabled client rather than an error.
func NewFromConfig(ctx context.Context, bcfg BackendConfig, cfg Config, opts ...Option) *Client {
	backend, err := NewBackend(ctx, bcfg)
	if err != nil {
		c := NewDisabledClient(err.Error(), opts...)
		c.logger.Warn().Err(err).Str("provider", bcfg.Provider).Msg("remote model disabled")
		return c
	}
	return NewClient(backend, cfg, opts...)
}

// #endregion factory
