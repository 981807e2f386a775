// Command devidp runs the development identity provider so the server can
// be exercised with real bearer tokens. Point OIDC_ISSUER_URL at it.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/HammerMeetNail/petpals/internal/devidp"
	"github.com/HammerMeetNail/petpals/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Error("devidp error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	addr := getEnv("DEVIDP_ADDR", ":5555")
	issuer := getEnv("OIDC_ISSUER_URL", "http://localhost:5555")
	clientID := getEnv("OIDC_CLIENT_ID", "petpals-dev")

	provider, err := devidp.New(issuer, clientID)
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           provider.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	logger.Warn("Development identity provider listening", map[string]interface{}{
		"addr":      addr,
		"issuer":    provider.Issuer(),
		"client_id": clientID,
	})
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
