package auth

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/domain"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

// guardFixture wires a Guard into a fiber app with a minimal error
// handler that surfaces DomainError codes, plus probe routes for each
// route class.
type guardFixture struct {
	app   *fiber.App
	codec *TokenCodec
	clock *time.Time
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()

	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec, clock := testCodecAt(t, issuedAt)
	transport := NewCredentialTransport(false, testAccessTTL, testRefreshTTL)
	guard := NewGuard(codec, transport, GuardConfig{
		ProtectedAPIPrefixes:  []string{"/api/account", "/api/catalog"},
		AdminPrefixes:         []string{"/api/admin"},
		ProtectedPagePrefixes: []string{"/app"},
		LoginPath:             "/login",
	}, zap.NewNop())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).JSON(fiber.Map{
				"success": false,
				"message": de.Message,
				"error":   fiber.Map{"code": de.Code},
			})
		},
	})
	app.Use(guard.Handle)

	echo := func(c *fiber.Ctx) error {
		principal, _ := PrincipalFromContext(c)
		body := fiber.Map{
			"headerUserID":   c.Get(HeaderUserID),
			"headerUserRole": c.Get(HeaderUserRole),
		}
		if principal != nil {
			body["principalID"] = principal.UserID
			body["principalRole"] = string(principal.Role)
		}
		return c.JSON(body)
	}
	app.Get("/public", echo)
	app.Get("/api/account/me", echo)
	app.Get("/api/admin/users", echo)
	app.Get("/app/dashboard", echo)

	return &guardFixture{app: app, codec: codec, clock: clock}
}

func (f *guardFixture) request(t *testing.T, path string, mutate func(*http.Request)) *http.Response {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if mutate != nil {
		mutate(req)
	}
	resp, err := f.app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return body
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := decodeBody(t, resp)
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestGuardPublicRoutePassesWithoutCredentials(t *testing.T) {
	f := newGuardFixture(t)
	resp := f.request(t, "/public", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGuardStripsSpoofedTrustedHeaders(t *testing.T) {
	f := newGuardFixture(t)
	resp := f.request(t, "/public", func(req *http.Request) {
		req.Header.Set(HeaderUserID, "spoofed")
		req.Header.Set(HeaderUserRole, "ADMIN")
	})
	body := decodeBody(t, resp)
	if body["headerUserID"] != "" || body["headerUserRole"] != "" {
		t.Errorf("spoofed headers survived: %v", body)
	}
}

func TestGuardMissingCredential(t *testing.T) {
	f := newGuardFixture(t)
	resp := f.request(t, "/api/account/me", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != CodeMissingCredential {
		t.Errorf("code = %q, want %q", code, CodeMissingCredential)
	}
}

func TestGuardValidAccessTokenEnrichesRequest(t *testing.T) {
	f := newGuardFixture(t)
	token, _, err := f.codec.Issue(testPrincipal(), TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
		// a spoofing attempt alongside real credentials is overwritten
		req.Header.Set(HeaderUserID, "spoofed")
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["principalID"] != "user-1" || body["headerUserID"] != "user-1" {
		t.Errorf("enrichment mismatch: %v", body)
	}
	if body["headerUserRole"] != string(domain.RoleSupplier) {
		t.Errorf("role header = %v", body["headerUserRole"])
	}
}

func TestGuardAccessCookieWithinTTL(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}

	*f.clock = f.clock.Add(14 * time.Minute)

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: pair.AccessToken})
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with access cookie alone", resp.StatusCode)
	}
}

func TestGuardRefreshFallbackOnExpiredAccess(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}

	// 16 minutes on: the access token is dead, the refresh token lives.
	*f.clock = f.clock.Add(16 * time.Minute)

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: pair.AccessToken})
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: pair.RefreshToken})
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 via refresh fallback", resp.StatusCode)
	}

	body := decodeBody(t, resp)
	if body["principalID"] != "user-1" {
		t.Errorf("fallback principal = %v", body["principalID"])
	}

	// The fallback re-issues and attaches a fresh pair.
	access := findCookie(resp, AccessCookieName)
	refresh := findCookie(resp, RefreshCookieName)
	if access == nil || refresh == nil {
		t.Fatal("fallback did not attach new credentials")
	}
	if access.Value == pair.AccessToken || refresh.Value == pair.RefreshToken {
		t.Error("fallback reused the old tokens")
	}
	if _, err := f.codec.Verify(access.Value, TokenClassAccess); err != nil {
		t.Errorf("re-issued access token invalid: %v", err)
	}
}

func TestGuardExpiredAccessWithoutRefresh(t *testing.T) {
	f := newGuardFixture(t)
	token, _, err := f.codec.Issue(testPrincipal(), TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}

	*f.clock = f.clock.Add(16 * time.Minute)

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: token})
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != CodeTokenExpired {
		t.Errorf("code = %q, want %q", code, CodeTokenExpired)
	}
}

func TestGuardBothTokensExpired(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}

	// 8 days on: both halves of the pair are dead.
	*f.clock = f.clock.Add(8 * 24 * time.Hour)

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: pair.AccessToken})
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: pair.RefreshToken})
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGuardMalformedAccessSkipsRefreshFallback(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "garbage"})
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: pair.RefreshToken})
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: malformed tokens are never retried", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != CodeTokenMalformed {
		t.Errorf("code = %q, want %q", code, CodeTokenMalformed)
	}
}

func TestGuardRefreshTokenRejectedAsAccess(t *testing.T) {
	f := newGuardFixture(t)
	pair, err := f.codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}

	resp := f.request(t, "/api/account/me", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != CodeTokenClassMismatch {
		t.Errorf("code = %q, want %q", code, CodeTokenClassMismatch)
	}
}

func TestGuardAdminRoute(t *testing.T) {
	f := newGuardFixture(t)

	supplierToken, _, err := f.codec.Issue(testPrincipal(), TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}
	adminToken, _, err := f.codec.Issue(&Principal{
		UserID: "admin-1", Email: "root@example.com", Role: domain.RoleAdmin, Name: "Root",
	}, TokenClassAccess)
	if err != nil {
		t.Fatal(err)
	}

	resp := f.request(t, "/api/admin/users", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+supplierToken)
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", resp.StatusCode)
	}
	if code := errorCode(t, resp); code != CodeInsufficientRole {
		t.Errorf("code = %q, want %q (forbidden, not unauthorized)", code, CodeInsufficientRole)
	}

	resp = f.request(t, "/api/admin/users", func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+adminToken)
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", resp.StatusCode)
	}
}

func TestGuardPageRouteRedirectsToLogin(t *testing.T) {
	f := newGuardFixture(t)
	resp := f.request(t, "/app/dashboard", nil)
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/login" {
		t.Errorf("Location = %q, want /login", loc)
	}
}

// A rotated-away refresh token still verifies cryptographically: there
// is no server-side blacklist. Rotation only changes which token the
// legitimate client presents. Known limitation, asserted on purpose.
func TestSupersededRefreshTokenStillVerifies(t *testing.T) {
	codec, _ := testCodecAt(t, time.Now())
	first, err := codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}
	second, err := codec.IssuePair(testPrincipal())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := codec.Verify(first.RefreshToken, TokenClassRefresh); err != nil {
		t.Errorf("superseded refresh token: %v", err)
	}
	if _, err := codec.Verify(second.RefreshToken, TokenClassRefresh); err != nil {
		t.Errorf("current refresh token: %v", err)
	}
}

func TestRequireRoleAndPermissionGates(t *testing.T) {
	policy := NewPolicyTable(DefaultGrants())

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})

	asRole := func(role domain.Role) fiber.Handler {
		return func(c *fiber.Ctx) error {
			c.Locals(principalKey, &Principal{UserID: "u", Role: role})
			return c.Next()
		}
	}
	ok := func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) }

	app.Get("/editor-gate", asRole(domain.RoleUser), RequireRole(domain.RoleSupplier), ok)
	app.Get("/write-gate", asRole(domain.RoleUser),
		RequirePermission(policy, PermissionProductsWrite, "own"), ok)
	app.Get("/both-gates", asRole(domain.RoleSupplier), RequireRole(domain.RoleSupplier),
		RequirePermission(policy, PermissionProductsWrite, "own"), ok)
	app.Get("/anonymous-gate", RequireRole(domain.RoleUser), ok)

	cases := []struct {
		path string
		want int
	}{
		{"/editor-gate", http.StatusForbidden},
		{"/write-gate", http.StatusForbidden},
		{"/both-gates", http.StatusOK},
		{"/anonymous-gate", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != tc.want {
			t.Errorf("%s status = %d, want %d", tc.path, resp.StatusCode, tc.want)
		}
	}
}
