package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const MerchantIDKey contextKey = "merchant_id"

// Claims identifies the merchant application calling the gateway API.
type Claims struct {
	MerchantID string `json:"merchant_id"`
	jwt.RegisteredClaims
}

// RequireAuth rejects requests without a valid HMAC-signed bearer token.
// The callback route must never sit behind this; Daraja carries no token.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header", "auth_required")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, "invalid authorization scheme", "auth_invalid_scheme")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})

			if err != nil || !token.Valid {
				writeAuthError(w, "invalid token", "auth_invalid")
				return
			}

			ctx := context.WithValue(r.Context(), MerchantIDKey, claims.MerchantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetMerchantID returns the authenticated merchant ID, if any.
func GetMerchantID(ctx context.Context) (string, bool) {
	merchantID, ok := ctx.Value(MerchantIDKey).(string)
	return merchantID, ok
}

func writeAuthError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
