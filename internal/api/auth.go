package api

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"tillsync/internal/config"
)

var errUnauthorized = errors.New("invalid or missing API key")

// HTTPAuth guards the control API with static per-client keys and a
// per-key rate limit. Health and metrics stay open for probes.
type HTTPAuth struct {
	cfg     config.APIConfig
	keys    map[string]config.APIClientKey
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	keys := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		keys[k.Key] = k
	}
	return &HTTPAuth{
		cfg:     cfg,
		keys:    keys,
		limiter: newRateLimiter(cfg.RateLimit),
	}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get(a.cfg.Auth.HeaderAPIKey)
		if a.cfg.Auth.Enabled {
			if err := a.checkKey(key); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if a.cfg.RateLimit.RPS > 0 && !a.limiter.getLimiter(key).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *HTTPAuth) checkKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errUnauthorized
	}
	for stored := range a.keys {
		if subtle.ConstantTimeCompare([]byte(stored), []byte(key)) == 1 {
			return nil
		}
	}
	return errUnauthorized
}
