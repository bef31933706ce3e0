// Package oidc verifies bearer ID tokens issued by an OIDC provider.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/opsdesk/internal/domain/model"
)

var (
	// ErrMissingGroup is returned when a valid token lacks the required group.
	ErrMissingGroup = errors.New("token is missing required group")
	// ErrEmptyToken is returned for a blank bearer value.
	ErrEmptyToken = errors.New("bearer token is required")
)

// VerifierConfig holds configuration for the bearer token verifier.
type VerifierConfig struct {
	IssuerURL     string
	Audience      string
	RequiredGroup string
	HTTPClient    *http.Client // Optional, defaults to a 30s client

	// KeySet skips discovery and verifies signatures against a fixed key set.
	KeySet gooidc.KeySet
	// Now overrides the clock used for expiry checks.
	Now func() time.Time
}

// Verifier checks ID tokens and maps their claims to a model.Principal.
type Verifier struct {
	verifier      *gooidc.IDTokenVerifier
	requiredGroup string
}

// NewVerifier builds a verifier. Without a KeySet it fetches the provider's discovery
// document once using ctx.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	issuer := strings.TrimSuffix(strings.TrimSpace(cfg.IssuerURL), "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	if issuer == "" {
		return nil, errors.New("issuer URL is required")
	}
	if cfg.Audience == "" {
		return nil, errors.New("audience is required")
	}

	oidcCfg := &gooidc.Config{ClientID: cfg.Audience, Now: cfg.Now}

	if cfg.KeySet != nil {
		return &Verifier{
			verifier:      gooidc.NewVerifier(issuer, cfg.KeySet, oidcCfg),
			requiredGroup: cfg.RequiredGroup,
		}, nil
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return &Verifier{
		verifier:      op.Verifier(oidcCfg),
		requiredGroup: cfg.RequiredGroup,
	}, nil
}

// Verify validates raw and returns the caller identity.
func (v *Verifier) Verify(ctx context.Context, raw string) (model.Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return model.Principal{}, ErrEmptyToken
	}
	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return model.Principal{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims tokenClaims
	if err := tok.Claims(&claims); err != nil {
		return model.Principal{}, fmt.Errorf("parse id_token claims: %w", err)
	}

	p := mapClaims(claims)
	if v.requiredGroup != "" && !p.InGroup(v.requiredGroup) {
		return model.Principal{}, ErrMissingGroup
	}
	return p, nil
}

// tokenClaims is a superset of standard OIDC and AD/ADFS claim shapes.
type tokenClaims struct {
	Sub            string   `json:"sub"`
	SamAccountName string   `json:"samaccountname"`
	Email          string   `json:"email"`
	Mail           string   `json:"mail"`
	Groups         []string `json:"groups"`
	MemberOf       []string `json:"memberof"`
}

func mapClaims(c tokenClaims) model.Principal {
	groups := c.MemberOf
	if len(groups) == 0 {
		groups = c.Groups
	}
	return model.Principal{
		Subject: firstNonEmpty(c.SamAccountName, c.Sub),
		Email:   firstNonEmpty(c.Mail, c.Email),
		Groups:  groups,
	}
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
