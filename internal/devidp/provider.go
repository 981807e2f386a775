// Package devidp is a minimal OpenID provider for local development and
// tests. It publishes discovery metadata and a JWKS, and mints RS256 ID
// tokens for any user id it is asked about. Never expose it publicly.
package devidp

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const tokenTTL = time.Hour

// User is the identity a token is issued for.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
	Name  string    `json:"name,omitempty"`
}

type Provider struct {
	issuer     string
	clientID   string
	privateKey *rsa.PrivateKey
	keyID      string
	now        func() time.Time
}

// New creates a provider with a fresh signing key. issuer must be the URL
// the provider is reachable at, since verifiers compare it to the token.
func New(issuer, clientID string) (*Provider, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	kid := make([]byte, 8)
	if _, err := rand.Read(kid); err != nil {
		return nil, fmt.Errorf("generating key id: %w", err)
	}
	return &Provider{
		issuer:     strings.TrimRight(issuer, "/"),
		clientID:   clientID,
		privateKey: privateKey,
		keyID:      hex.EncodeToString(kid),
		now:        time.Now,
	}, nil
}

func (p *Provider) Issuer() string {
	return p.issuer
}

// SetIssuer is for httptest servers whose URL is only known after start.
func (p *Provider) SetIssuer(issuer string) {
	p.issuer = strings.TrimRight(issuer, "/")
}

func (p *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleWellKnown)
	mux.HandleFunc("GET /keys", p.handleKeys)
	mux.HandleFunc("POST /token", p.handleToken)
	return mux
}

// IssueToken signs an ID token for user, valid for an hour.
func (p *Provider) IssueToken(user User) (string, error) {
	if user.ID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	now := p.now()
	claims := map[string]any{
		"iss": p.issuer,
		"sub": user.ID.String(),
		"aud": p.clientID,
		"exp": now.Add(tokenTTL).Unix(),
		"iat": now.Unix(),
	}
	if user.Email != "" {
		claims["email"] = user.Email
		claims["email_verified"] = true
	}
	if user.Name != "" {
		claims["name"] = user.Name
	}
	header := map[string]any{
		"alg": "RS256",
		"typ": "JWT",
		"kid": p.keyID,
	}
	return signJWT(header, claims, p.privateKey)
}

func (p *Provider) handleWellKnown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.issuer,
		"authorization_endpoint":                p.issuer + "/authorize",
		"token_endpoint":                        p.issuer + "/token",
		"jwks_uri":                              p.issuer + "/keys",
		"response_types_supported":              []string{"id_token"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"scopes_supported":                      []string{"openid", "email", "profile"},
	})
}

func (p *Provider) handleKeys(w http.ResponseWriter, r *http.Request) {
	pub := p.privateKey.PublicKey
	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]any{{
			"kty": "RSA",
			"use": "sig",
			"alg": "RS256",
			"kid": p.keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// handleToken mints a token for the posted user. A missing id gets a random
// one so a fresh account can be created with an empty body.
func (p *Provider) handleToken(w http.ResponseWriter, r *http.Request) {
	var user User
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	token, err := p.IssueToken(user)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id_token":   token,
		"token_type": "Bearer",
		"expires_in": int(tokenTTL.Seconds()),
		"user_id":    user.ID,
	})
}

func signJWT(header, claims map[string]any, key *rsa.PrivateKey) (string, error) {
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) + "." +
		base64.RawURLEncoding.EncodeToString(claimsJSON)

	hash := sha256.Sum256([]byte(signingInput))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, hash[:])
	if err != nil {
		return "", err
	}
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(signature), nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
