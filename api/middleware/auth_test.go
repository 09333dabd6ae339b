package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/giftmarket/giftmarket-backend/pkg/auth"
	"github.com/giftmarket/giftmarket-backend/pkg/config"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

var testJWT = config.JWTConfig{
	Secret:            "test-secret-test-secret-test-1234",
	Issuer:            "giftmarket-test",
	ExpirationMinutes: 60,
}

func newAuthLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func mintToken(t *testing.T, accountID uuid.UUID, role enums.AccountRole) string {
	t.Helper()
	token, err := pkgauth.MintAccessToken(testJWT, time.Now(), pkgauth.AccessTokenPayload{
		AccountID: accountID,
		Role:      role,
		JTI:       uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestAuthSeedsAccountContext(t *testing.T) {
	accountID := uuid.New()
	token := mintToken(t, accountID, enums.AccountRoleBuyer)

	var gotAccount, gotRole string
	handler := Auth(testJWT, newAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount = AccountIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if gotAccount != accountID.String() {
		t.Fatalf("expected account %s, got %q", accountID, gotAccount)
	}
	if gotRole != string(enums.AccountRoleBuyer) {
		t.Fatalf("unexpected role %q", gotRole)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	handler := Auth(testJWT, newAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsGarbageToken(t *testing.T) {
	handler := Auth(testJWT, newAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	other := testJWT
	other.Secret = "some-other-secret-some-other-sec"
	token := mintToken(t, uuid.New(), enums.AccountRoleBuyer)

	handler := Auth(other, newAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestRequireRoleBlocksOtherRoles(t *testing.T) {
	handler := RequireRole("admin", newAuthLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/accounts", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.AccountRoleBuyer)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestRequireAnyRoleAllowsListedRole(t *testing.T) {
	called := false
	handler := RequireAnyRole(newAuthLogger(), "admin", "ops")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/accounts", nil)
	req = req.WithContext(WithRole(req.Context(), string(enums.AccountRoleOps)))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if !called {
		t.Fatal("expected handler to run")
	}
}
