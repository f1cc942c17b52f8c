package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const userIDKey contextKey = "userID"

// GetUserID returns the authenticated user ID from the request context, or
// "" when the request carries none.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// BearerAuth validates static bearer keys on the learner routes. Session
// management lives upstream; this service only checks the shared key and
// trusts the X-User-Id header the upstream proxy sets.
//
// Keys come from a comma-separated list (COACH_API_KEYS). An empty list
// disables the check for local development.
type BearerAuth struct {
	keys    []string
	enabled bool
}

// NewBearerAuth creates bearer-key middleware from a comma-separated key list.
func NewBearerAuth(keyList string) *BearerAuth {
	a := &BearerAuth{}
	for _, key := range strings.Split(keyList, ",") {
		if key = strings.TrimSpace(key); key != "" {
			a.keys = append(a.keys, key)
			a.enabled = true
		}
	}
	return a
}

// RequireUser enforces the bearer key (when configured) and a user
// identity, placing the user ID on the request context.
func (a *BearerAuth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.enabled && !a.validateKey(bearerToken(r)) {
			respondUnauthorized(w, "valid bearer key required")
			return
		}

		userID := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if userID == "" {
			respondUnauthorized(w, "X-User-Id header required")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *BearerAuth) validateKey(candidate string) bool {
	if candidate == "" {
		return false
	}
	for _, key := range a.keys {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1 {
			return true
		}
	}
	return false
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mathquest"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "unauthorized",
		"message": msg,
	})
}
