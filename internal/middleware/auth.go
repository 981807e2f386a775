package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/petpals/internal/handlers"
	"github.com/HammerMeetNail/petpals/internal/models"
	"github.com/HammerMeetNail/petpals/internal/services"
)

// DevUserHeader carries a user id in place of a token when the development
// verifier is enabled.
const DevUserHeader = "X-Dev-User-ID"

type profileEnsurer interface {
	Ensure(ctx context.Context, id uuid.UUID, fullName string) (*models.Profile, error)
}

type AuthMiddleware struct {
	verifier  services.TokenVerifier
	profiles  profileEnsurer
	devHeader bool
}

// NewAuthMiddleware authenticates requests with verifier. devHeader enables
// DevUserHeader and must only be set in development.
func NewAuthMiddleware(verifier services.TokenVerifier, profiles profileEnsurer, devHeader bool) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, profiles: profiles, devHeader: devHeader}
}

// Authenticate attaches the caller to the request context. Requests without
// credentials pass through anonymously; handlers decide whether that is
// allowed.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok, err := m.identify(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if _, err := m.profiles.Ensure(r.Context(), claims.UserID, claims.Name); err != nil {
			log.Printf("Error ensuring profile for %s: %v", claims.UserID, err)
			if ge, ok := services.AsGatewayError(err); ok && ge.Retryable() {
				writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		user := &models.User{ID: claims.UserID, Email: claims.Email, FullName: claims.Name}
		next.ServeHTTP(w, r.WithContext(handlers.SetUserInContext(r.Context(), user)))
	})
}

// RequireAuth rejects anonymous requests.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handlers.GetUserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) identify(r *http.Request) (services.IdentityClaims, bool, error) {
	if m.devHeader {
		if raw := strings.TrimSpace(r.Header.Get(DevUserHeader)); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return services.IdentityClaims{}, false, errors.New("invalid dev user id")
			}
			return services.IdentityClaims{UserID: id}, true, nil
		}
	}

	token := bearerToken(r)
	if token == "" {
		return services.IdentityClaims{}, false, nil
	}
	if m.verifier == nil {
		return services.IdentityClaims{}, false, services.ErrInvalidToken
	}
	claims, err := m.verifier.Verify(r.Context(), token)
	if err != nil {
		return services.IdentityClaims{}, false, err
	}
	return claims, true, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
