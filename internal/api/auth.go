package api

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// adminAuthMiddleware guards the /v1/admin routes. It accepts either
// the static ADMIN_TOKEN or, when ADMIN_JWT_SECRET is set, an HS256
// bearer JWT issued by the surrounding product.
func adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			next.ServeHTTP(w, r)
			return
		}

		token := os.Getenv("ADMIN_TOKEN")
		jwtSecret := os.Getenv("ADMIN_JWT_SECRET")
		if token == "" && jwtSecret == "" {
			writeAPIError(w, http.StatusForbidden, "admin API is disabled (no ADMIN_TOKEN or ADMIN_JWT_SECRET configured)")
			return
		}

		auth := r.Header.Get("Authorization")
		auth = strings.TrimPrefix(auth, "Bearer ")
		auth = strings.TrimSpace(auth)
		if auth == "" {
			writeAPIError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}

		if token != "" && auth == token {
			next.ServeHTTP(w, r)
			return
		}

		if jwtSecret != "" {
			if err := verifyAdminJWT(auth, []byte(jwtSecret)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		writeAPIError(w, http.StatusUnauthorized, "invalid admin credentials")
	})
}

func verifyAdminJWT(tokenStr string, secret []byte) error {
	token, err := jwtlib.Parse(tokenStr, func(token *jwtlib.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return fmt.Errorf("invalid JWT: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid JWT")
	}
	return nil
}
