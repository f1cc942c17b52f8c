package middleware

import (
	"net/http"
	"strings"
)

// realIPHeaders are consulted in order when X-Forwarded-For is absent.
var realIPHeaders = []string{"X-Real-Ip", "Cf-Connecting-Ip", "True-Client-Ip"}

// ClientIdentity derives the rate-limit identity for a request: the first
// entry of the X-Forwarded-For chain, then the alternate real-IP headers,
// then the "anonymous" sentinel. It is a lookup key, not a stored entity.
func ClientIdentity(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	for _, h := range realIPHeaders {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			return v
		}
	}
	return "anonymous"
}
