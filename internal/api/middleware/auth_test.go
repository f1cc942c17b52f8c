package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func userEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestRequireUser_ValidKey(t *testing.T) {
	auth := NewBearerAuth("key-one, key-two")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/streaks", nil)
	req.Header.Set("Authorization", "Bearer key-two")
	req.Header.Set("X-User-Id", "u1")
	w := httptest.NewRecorder()
	auth.RequireUser(userEcho()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.String() != "u1" {
		t.Errorf("user id on context = %q, want u1", w.Body.String())
	}
}

func TestRequireUser_RejectsBadKey(t *testing.T) {
	auth := NewBearerAuth("key-one")

	for name, header := range map[string]string{
		"wrong key": "Bearer nope",
		"no scheme": "key-one",
		"no header": "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		req.Header.Set("X-User-Id", "u1")
		w := httptest.NewRecorder()
		auth.RequireUser(userEcho()).ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", name, w.Code)
		}
		if got := w.Header().Get("WWW-Authenticate"); got == "" {
			t.Errorf("%s: missing WWW-Authenticate header", name)
		}
	}
}

func TestRequireUser_RequiresUserHeader(t *testing.T) {
	auth := NewBearerAuth("key-one")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer key-one")
	w := httptest.NewRecorder()
	auth.RequireUser(userEcho()).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without X-User-Id", w.Code)
	}
}

func TestRequireUser_DisabledWithoutKeys(t *testing.T) {
	auth := NewBearerAuth("  ,  ")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", "u1")
	w := httptest.NewRecorder()
	auth.RequireUser(userEcho()).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no keys configured", w.Code)
	}
}

func TestGetUserID_MissingReturnsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := GetUserID(req.Context()); got != "" {
		t.Errorf("GetUserID() = %q, want empty", got)
	}
}
