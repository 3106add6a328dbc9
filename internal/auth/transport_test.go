package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	testAccessTTL  = 15 * time.Minute
	testRefreshTTL = 7 * 24 * time.Hour
)

func doRequest(t *testing.T, handler fiber.Handler, mutate func(*http.Request)) *http.Response {
	t.Helper()
	app := fiber.New()
	app.Get("/", handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if mutate != nil {
		mutate(req)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSetCredentialPairCookieAttributes(t *testing.T) {
	tr := NewCredentialTransport(false, testAccessTTL, testRefreshTTL)
	resp := doRequest(t, func(c *fiber.Ctx) error {
		tr.SetCredentialPair(c, &CredentialPair{AccessToken: "acc-token", RefreshToken: "ref-token"})
		return c.SendStatus(http.StatusOK)
	}, nil)

	access := findCookie(resp, AccessCookieName)
	if access == nil {
		t.Fatal("access cookie not set")
	}
	refresh := findCookie(resp, RefreshCookieName)
	if refresh == nil {
		t.Fatal("refresh cookie not set")
	}

	if access.Value != "acc-token" || refresh.Value != "ref-token" {
		t.Errorf("cookie values = %q / %q", access.Value, refresh.Value)
	}
	if access.MaxAge != 900 {
		t.Errorf("access MaxAge = %d, want 900", access.MaxAge)
	}
	if refresh.MaxAge != 604800 {
		t.Errorf("refresh MaxAge = %d, want 604800", refresh.MaxAge)
	}
	for _, cookie := range []*http.Cookie{access, refresh} {
		if !cookie.HttpOnly {
			t.Errorf("%s not HttpOnly", cookie.Name)
		}
		if cookie.SameSite != http.SameSiteStrictMode {
			t.Errorf("%s SameSite = %v, want Strict", cookie.Name, cookie.SameSite)
		}
		if cookie.Path != "/" {
			t.Errorf("%s Path = %q, want /", cookie.Name, cookie.Path)
		}
		if cookie.Secure {
			t.Errorf("%s Secure set outside production mode", cookie.Name)
		}
	}
}

func TestSetCredentialPairSecureInProduction(t *testing.T) {
	tr := NewCredentialTransport(true, testAccessTTL, testRefreshTTL)
	resp := doRequest(t, func(c *fiber.Ctx) error {
		tr.SetCredentialPair(c, &CredentialPair{AccessToken: "a", RefreshToken: "r"})
		return c.SendStatus(http.StatusOK)
	}, nil)

	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		cookie := findCookie(resp, name)
		if cookie == nil || !cookie.Secure {
			t.Errorf("%s must be Secure in production", name)
		}
	}
}

func TestExtractAccessTokenPrefersHeader(t *testing.T) {
	tr := NewCredentialTransport(false, testAccessTTL, testRefreshTTL)

	var got string
	var ok bool
	handler := func(c *fiber.Ctx) error {
		got, ok = tr.ExtractAccessToken(c)
		return c.SendStatus(http.StatusOK)
	}

	doRequest(t, handler, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer header-token")
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "cookie-token"})
	})
	if !ok || got != "header-token" {
		t.Errorf("got %q ok=%v, want header-token", got, ok)
	}

	doRequest(t, handler, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "cookie-token"})
	})
	if !ok || got != "cookie-token" {
		t.Errorf("got %q ok=%v, want cookie fallback", got, ok)
	}

	doRequest(t, handler, func(req *http.Request) {
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	})
	if ok {
		t.Errorf("non-bearer scheme yielded a token: %q", got)
	}

	doRequest(t, handler, nil)
	if ok {
		t.Error("empty request yielded a token")
	}
}

func TestExtractRefreshTokenCookieOnly(t *testing.T) {
	tr := NewCredentialTransport(false, testAccessTTL, testRefreshTTL)

	var got string
	var ok bool
	handler := func(c *fiber.Ctx) error {
		got, ok = tr.ExtractRefreshToken(c)
		return c.SendStatus(http.StatusOK)
	}

	doRequest(t, handler, func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "refresh-cookie"})
	})
	if !ok || got != "refresh-cookie" {
		t.Errorf("got %q ok=%v, want refresh-cookie", got, ok)
	}

	// A refresh token offered via the bearer header is never accepted.
	doRequest(t, handler, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer refresh-by-header")
	})
	if ok {
		t.Errorf("refresh token accepted via header: %q", got)
	}
}

func TestRotateRefreshReplacesOnlyRefreshCookie(t *testing.T) {
	tr := NewCredentialTransport(false, testAccessTTL, testRefreshTTL)
	resp := doRequest(t, func(c *fiber.Ctx) error {
		tr.RotateRefresh(c, "rotation-1")
		tr.RotateRefresh(c, "rotation-2")
		return c.SendStatus(http.StatusOK)
	}, nil)

	refresh := findCookie(resp, RefreshCookieName)
	if refresh == nil {
		t.Fatal("refresh cookie not set")
	}
	if refresh.Value != "rotation-2" {
		t.Errorf("refresh cookie = %q, want the latest rotation", refresh.Value)
	}
	if access := findCookie(resp, AccessCookieName); access != nil {
		t.Errorf("rotation touched the access cookie: %+v", access)
	}
}

func TestClearCredentials(t *testing.T) {
	tr := NewCredentialTransport(false, testAccessTTL, testRefreshTTL)
	resp := doRequest(t, func(c *fiber.Ctx) error {
		tr.ClearCredentials(c)
		return c.SendStatus(http.StatusOK)
	}, nil)

	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		cookie := findCookie(resp, name)
		if cookie == nil {
			t.Fatalf("%s not cleared", name)
		}
		if cookie.Value != "" {
			t.Errorf("%s still carries a value: %q", name, cookie.Value)
		}
		if cookie.MaxAge >= 0 && cookie.Expires.After(time.Now()) {
			t.Errorf("%s not expired: MaxAge=%d Expires=%v", name, cookie.MaxAge, cookie.Expires)
		}
	}
}
