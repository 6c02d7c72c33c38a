package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func newTestIssuer() *TokenIssuer {
	return NewTokenIssuer(testSigningKey, "chr-test", time.Hour)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, UserIDFromContext(c.Request().Context())+"|"+RoleFromContext(c.Request().Context()))
}

func runMiddleware(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	return rec, mw(okHandler)(c)
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d error, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	_, err := runMiddleware(t, JWTMiddleware(newTestIssuer()), "")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runMiddleware(t, JWTMiddleware(newTestIssuer()), tt.header)
			expectStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	issuer := newTestIssuer()
	token, err := issuer.Issue(Subject{ID: "rep_1700000000000", NationalID: "123456789012", Role: RoleRepresentative})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec, err := runMiddleware(t, JWTMiddleware(issuer), "Bearer "+token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Body.String(); got != "rep_1700000000000|representative" {
		t.Errorf("unexpected context values %q", got)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	other := NewTokenIssuer([]byte("another-key-another-key-another-k"), "chr-test", time.Hour)
	token, _ := other.Issue(Subject{ID: "rep_1", Role: RoleRepresentative})

	_, err := runMiddleware(t, JWTMiddleware(newTestIssuer()), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	issuer := newTestIssuer()
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _ := issuer.Issue(Subject{ID: "rep_1", Role: RoleRepresentative})

	_, err := runMiddleware(t, JWTMiddleware(newTestIssuer()), "Bearer "+token)
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestDevAuthMiddleware(t *testing.T) {
	issuer := newTestIssuer()

	rec, err := runMiddleware(t, DevAuthMiddleware(issuer), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "dev-user|admin" {
		t.Errorf("expected dev admin defaults, got %q", rec.Body.String())
	}

	_, err = runMiddleware(t, DevAuthMiddleware(issuer), "Bearer garbage")
	expectStatus(t, err, http.StatusUnauthorized)
}

func TestRequireRole(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(WithUser(req.Context(), "rep_1", RoleRepresentative))
	c := e.NewContext(req, httptest.NewRecorder())

	err := RequireRole(RoleAdmin)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)

	req = req.WithContext(WithUser(req.Context(), "admin", RoleAdmin))
	c = e.NewContext(req, httptest.NewRecorder())
	if err := RequireRole(RoleAdmin)(okHandler)(c); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
}
