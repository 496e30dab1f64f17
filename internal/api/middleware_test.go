package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koperasi/coop-core-service/internal/domain"
)

const testSecret = "unit-test-secret"

func mintToken(t *testing.T, secret, subject, tenant string) string {
	t.Helper()
	claims := actorClaims{
		Tenant: tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func runMiddleware(t *testing.T, authHeader, tenantHeader string) (*httptest.ResponseRecorder, domain.Actor, bool) {
	t.Helper()

	var gotActor domain.Actor
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, gotOK = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/members/123", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if tenantHeader != "" {
		req.Header.Set("X-Tenant-ID", tenantHeader)
	}
	rec := httptest.NewRecorder()

	ActorAuthMiddleware(testSecret)(next).ServeHTTP(rec, req)
	return rec, gotActor, gotOK
}

func TestActorAuthMiddleware_ValidToken(t *testing.T) {
	token := mintToken(t, testSecret, "teller-1", "coop-jaya")

	rec, actor, ok := runMiddleware(t, "Bearer "+token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ok {
		t.Fatal("expected actor in context")
	}
	if actor.ID != "teller-1" || actor.Tenant != "coop-jaya" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestActorAuthMiddleware_TenantHeaderOverride(t *testing.T) {
	token := mintToken(t, testSecret, "teller-1", "coop-jaya")

	rec, actor, _ := runMiddleware(t, "Bearer "+token, "coop-makmur")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if actor.Tenant != "coop-makmur" {
		t.Fatalf("expected tenant override, got %q", actor.Tenant)
	}
}

func TestActorAuthMiddleware_MissingHeader(t *testing.T) {
	rec, _, ok := runMiddleware(t, "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ok {
		t.Fatal("expected no actor in context")
	}
}

func TestActorAuthMiddleware_WrongSecret(t *testing.T) {
	token := mintToken(t, "some-other-secret", "teller-1", "coop-jaya")

	rec, _, _ := runMiddleware(t, "Bearer "+token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestActorAuthMiddleware_MissingSubject(t *testing.T) {
	token := mintToken(t, testSecret, "", "coop-jaya")

	rec, _, _ := runMiddleware(t, "Bearer "+token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestActorAuthMiddleware_MalformedHeader(t *testing.T) {
	rec, _, _ := runMiddleware(t, "Token abc123", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
