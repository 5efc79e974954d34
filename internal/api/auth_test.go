package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func adminProbe(t *testing.T, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	handler := adminAuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("POST", "/v1/admin/backfill", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestAdminAuth_DisabledWithoutConfig(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("ADMIN_JWT_SECRET", "")

	if rr := adminProbe(t, "Bearer anything"); rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestAdminAuth_StaticToken(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "secret-token")
	t.Setenv("ADMIN_JWT_SECRET", "")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid token", header: "Bearer secret-token", want: http.StatusOK},
		{name: "valid token without scheme", header: "secret-token", want: http.StatusOK},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "missing header", header: "", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := adminProbe(t, tt.header); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestAdminAuth_JWT(t *testing.T) {
	t.Setenv("ADMIN_TOKEN", "")
	t.Setenv("ADMIN_JWT_SECRET", "jwt-secret")

	sign := func(secret string, method jwtlib.SigningMethod) string {
		token := jwtlib.NewWithClaims(method, jwtlib.MapClaims{
			"sub": "admin",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		s, err := token.SignedString([]byte(secret))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if rr := adminProbe(t, "Bearer "+sign("jwt-secret", jwtlib.SigningMethodHS256)); rr.Code != http.StatusOK {
		t.Errorf("valid JWT: status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr := adminProbe(t, "Bearer "+sign("wrong-secret", jwtlib.SigningMethodHS256)); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong secret: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	expired := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub": "admin",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	s, err := expired.SignedString([]byte("jwt-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rr := adminProbe(t, "Bearer "+s); rr.Code != http.StatusUnauthorized {
		t.Errorf("expired JWT: status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
