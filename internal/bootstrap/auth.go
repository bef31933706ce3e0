package bootstrap

import (
	"context"
	"log/slog"

	"github.com/target/opsdesk/config"
	"github.com/target/opsdesk/internal/adapters/oidc"
	httpx "github.com/target/opsdesk/internal/http"
)

// BuildVerifier creates the API bearer verifier for the configured auth mode.
// Returns nil (open API) when auth is disabled. A misconfigured oidc mode is an error.
func BuildVerifier(ctx context.Context, cfg config.AuthConfig, logger *slog.Logger) (httpx.TokenVerifier, error) {
	if cfg.Mode != config.AuthModeOIDC {
		if logger != nil {
			logger.Warn("API authentication disabled", "mode", cfg.Mode)
		}
		return nil, nil
	}

	v, err := oidc.NewVerifier(ctx, oidc.VerifierConfig{
		IssuerURL:     cfg.OIDC.IssuerURL,
		Audience:      cfg.OIDC.Audience,
		RequiredGroup: cfg.OIDC.RequiredGroup,
	})
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("API bearer authentication enabled", "issuer", cfg.OIDC.IssuerURL)
	}
	return v, nil
}
