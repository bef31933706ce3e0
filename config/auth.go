package config

import (
	"fmt"
	"strings"
)

// AuthMode represents the API authentication mode.
type AuthMode string

const (
	// AuthModeNone accepts every request; intended for local use behind a trusted network.
	AuthModeNone AuthMode = "none"
	// AuthModeOIDC requires a bearer ID token issued by the configured provider.
	AuthModeOIDC AuthMode = "oidc"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "none", "oidc":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: none, oidc)", v)
	}
}

// OIDCConfig configures bearer token verification.
type OIDCConfig struct {
	IssuerURL string `env:"ISSUER_URL"`
	// Audience is the expected client id in the token's aud claim.
	Audience string `env:"AUDIENCE" envDefault:"opsdesk"`
	// RequiredGroup, when set, must appear in the token's groups claim.
	RequiredGroup string `env:"REQUIRED_GROUP"`
}

// AuthConfig groups API authentication configuration.
type AuthConfig struct {
	Mode AuthMode   `env:"AUTH_MODE" envDefault:"none"`
	OIDC OIDCConfig `envPrefix:"AUTH_OIDC_"`
}

// Sanitize falls back to no authentication when OIDC is selected without an issuer.
func (c *AuthConfig) Sanitize() {
	c.OIDC.IssuerURL = strings.TrimSpace(c.OIDC.IssuerURL)
	c.OIDC.Audience = strings.TrimSpace(c.OIDC.Audience)
	c.OIDC.RequiredGroup = strings.TrimSpace(c.OIDC.RequiredGroup)
	if c.Mode == "" {
		c.Mode = AuthModeNone
	}
}

// Enabled reports whether bearer verification is configured.
func (c *AuthConfig) Enabled() bool {
	return c.Mode == AuthModeOIDC && c.OIDC.IssuerURL != ""
}
