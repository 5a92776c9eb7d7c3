package auth

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"keygate/internal/models"
)

// JWTAuth authenticates admin requests. A valid signature is not enough:
// the token's jti must match a sessions row that is neither revoked nor
// past its expiry, so logout takes effect immediately.
func JWTAuth(db *gorm.DB, signer *Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "token_missing", "missing bearer token")
				return
			}
			raw := strings.TrimPrefix(h, "Bearer ")
			claims, err := signer.Verify(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "token_invalid", "invalid token")
				return
			}
			var sess models.Session
			if claims.JWTID == "" || db.First(&sess, "jti = ?", claims.JWTID).Error != nil {
				writeError(w, http.StatusUnauthorized, "session_not_found", "session not found")
				return
			}
			if sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) {
				writeError(w, http.StatusUnauthorized, "session_expired", "session expired or revoked")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !FromContext(r.Context()).HasRole(role) {
				writeError(w, http.StatusForbidden, "forbidden", "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}
