package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/zeusync/skygraph/internal/core/observability/log"
)

// TokenAuth guards feed connections with a shared token, passed either as
// the token query parameter (browsers cannot set headers on WebSocket
// requests) or as a bearer Authorization header. An empty token disables
// the check.
type TokenAuth struct {
	token  string
	logger log.Log
}

func NewTokenAuth(token string, logger log.Log) *TokenAuth {
	if logger == nil {
		logger = log.NewNop()
	}
	return &TokenAuth{token: token, logger: logger}
}

func (a *TokenAuth) Name() string { return "TokenAuth" }

// Check reports whether the request carries the expected token.
func (a *TokenAuth) Check(r *http.Request) error {
	if a.token == "" {
		return nil
	}
	got := r.URL.Query().Get("token")
	if got == "" {
		got = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Wrap rejects unauthorized requests before they reach next.
func (a *TokenAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Check(r); err != nil {
			a.logger.Warn("rejected feed client",
				log.String("remote_addr", r.RemoteAddr),
				log.Error(err))
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
