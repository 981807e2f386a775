package devidp

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New("http://idp.local/", "petpals")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func decodeSegment(t *testing.T, seg string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		t.Fatalf("decoding segment: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal segment: %v", err)
	}
	return out
}

func TestIssueToken_Claims(t *testing.T) {
	p := newTestProvider(t)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	id := uuid.New()
	token, err := p.IssueToken(User{ID: id, Email: "a@example.com", Name: "Ada"})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("expected 3 token parts, got %d", len(parts))
	}

	header := decodeSegment(t, parts[0])
	if header["alg"] != "RS256" || header["kid"] != p.keyID {
		t.Fatalf("unexpected header %v", header)
	}

	claims := decodeSegment(t, parts[1])
	if claims["iss"] != "http://idp.local" {
		t.Fatalf("expected trimmed issuer, got %v", claims["iss"])
	}
	if claims["sub"] != id.String() || claims["aud"] != "petpals" {
		t.Fatalf("unexpected subject/audience %v", claims)
	}
	if claims["email"] != "a@example.com" || claims["name"] != "Ada" {
		t.Fatalf("unexpected profile claims %v", claims)
	}
	if int64(claims["exp"].(float64)) != fixed.Add(tokenTTL).Unix() {
		t.Fatalf("unexpected exp %v", claims["exp"])
	}
}

func TestIssueToken_RequiresUser(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.IssueToken(User{}); err == nil {
		t.Fatal("expected error for nil user id")
	}
}

func TestHandler_Discovery(t *testing.T) {
	p := newTestProvider(t)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var doc map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc["issuer"] != "http://idp.local" || doc["jwks_uri"] != "http://idp.local/keys" {
		t.Fatalf("unexpected discovery document %v", doc)
	}
}

func TestHandler_Keys(t *testing.T) {
	p := newTestProvider(t)
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/keys", nil))

	var body struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Keys) != 1 || body.Keys[0]["kid"] != p.keyID || body.Keys[0]["e"] != "AQAB" {
		t.Fatalf("unexpected keys %v", body.Keys)
	}
}

func TestHandler_Token(t *testing.T) {
	p := newTestProvider(t)
	id := uuid.New()

	payload, _ := json.Marshal(User{ID: id, Name: "Bo"})
	rr := httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", bytes.NewReader(payload)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		IDToken string    `json:"id_token"`
		UserID  uuid.UUID `json:"user_id"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.UserID != id || resp.IDToken == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	rr = httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty body, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	p.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/token", strings.NewReader("{")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", rr.Code)
	}
}
