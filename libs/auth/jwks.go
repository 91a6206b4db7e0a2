package auth

import (
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc"
)

// FetchJWKS loads the key set once and keeps it fresh in the background.
// Unknown kids trigger a rate-limited refresh so key rotation does not need a restart.
func FetchJWKS(url string, refresh time.Duration, logger *slog.Logger) (*keyfunc.JWKS, error) {
	if refresh <= 0 {
		refresh = 5 * time.Minute
	}
	return keyfunc.Get(url, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshRateLimit:  10 * time.Second,
		RefreshTimeout:    5 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			if logger != nil {
				logger.Warn("jwks refresh failed", "url", url, "err", err)
			}
		},
	})
}
