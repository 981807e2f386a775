package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid identity token")

// IdentityClaims is what the service trusts from a verified ID token.
type IdentityClaims struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

// TokenVerifier checks a bearer token issued by the identity provider.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (IdentityClaims, error)
}

type OIDCVerifierConfig struct {
	IssuerURL string
	ClientID  string
}

// providerHTTPTimeout bounds discovery and JWKS fetches.
const providerHTTPTimeout = 15 * time.Second

type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, cfg OIDCVerifierConfig) (*OIDCVerifier, error) {
	if strings.TrimSpace(cfg.IssuerURL) == "" {
		return nil, errors.New("issuer url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("client id is required")
	}

	// go-oidc refreshes keys with ctx, so it must outlive the verifier.
	ctx = oidc.ClientContext(ctx, &http.Client{Timeout: providerHTTPTimeout})
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering oidc provider: %w", err)
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func newOIDCVerifierFromKeySet(issuer string, keys oidc.KeySet, config *oidc.Config) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keys, config)}
}

// Verify checks signature, issuer, audience and expiry. The subject claim
// must be the user's UUID.
func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (IdentityClaims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return IdentityClaims{}, fmt.Errorf("%w: parsing claims: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return IdentityClaims{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	return IdentityClaims{UserID: userID, Email: claims.Email, Name: claims.Name}, nil
}
