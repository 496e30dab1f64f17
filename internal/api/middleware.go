/**
 * @description
 * This file contains the actor-extraction middleware. Authentication itself
 * lives in the gateway; what arrives here is a signed token whose subject and
 * tenant claims become the explicit Actor every core operation requires. The
 * core never reads ambient session state.
 *
 * @dependencies
 * - net/http, strings: Standard Go libraries.
 * - github.com/golang-jwt/jwt/v5: token parsing and validation.
 */

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koperasi/coop-core-service/internal/domain"
)

// actorContextKey is a custom type for the context key to avoid collisions.
type actorContextKey string

const actorKey actorContextKey = "actor"

// actorClaims are the claims the core cares about: subject (the operator's
// id) and the tenant the request acts on.
type actorClaims struct {
	Tenant string `json:"tenant"`
	jwt.RegisteredClaims
}

// ActorAuthMiddleware validates the HMAC-signed bearer token and stores the
// resulting Actor in the request context.
func ActorAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims := &actorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				http.Error(w, "Token subject required", http.StatusUnauthorized)
				return
			}

			actor := domain.Actor{ID: claims.Subject, Tenant: claims.Tenant}
			if tenant := strings.TrimSpace(r.Header.Get("X-Tenant-ID")); tenant != "" {
				actor.Tenant = tenant
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext retrieves the Actor stored by the middleware.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}
