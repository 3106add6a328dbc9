package auth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Cookie and header carrier names. The refresh token travels only by
// cookie; accepting it via header would expose the long-lived secret to
// request logs and URL captures.
const (
	AccessCookieName    = "accessToken"
	RefreshCookieName   = "refreshToken"
	headerAuthorization = "Authorization"
	bearerPrefix        = "Bearer"
)

// CredentialTransport moves tokens between client and server across the
// bearer header and the two http-only cookies. It is the only component
// allowed to serialize a raw token onto a response.
type CredentialTransport struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCredentialTransport builds a transport. secure marks cookies
// Secure and should be true in production.
func NewCredentialTransport(secure bool, accessTTL, refreshTTL time.Duration) *CredentialTransport {
	return &CredentialTransport{secure: secure, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// ExtractAccessToken reads the access token, preferring the bearer
// header over the cookie. Programmatic clients manage the header
// themselves; the server never writes it.
func (t *CredentialTransport) ExtractAccessToken(c *fiber.Ctx) (string, bool) {
	if header := c.Get(headerAuthorization); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], bearerPrefix) && parts[1] != "" {
			return parts[1], true
		}
	}
	if cookie := c.Cookies(AccessCookieName); cookie != "" {
		return cookie, true
	}
	return "", false
}

// ExtractRefreshToken reads the refresh token from its cookie only.
func (t *CredentialTransport) ExtractRefreshToken(c *fiber.Ctx) (string, bool) {
	if cookie := c.Cookies(RefreshCookieName); cookie != "" {
		return cookie, true
	}
	return "", false
}

// SetCredentialPair writes both cookies with their class attributes.
func (t *CredentialTransport) SetCredentialPair(c *fiber.Ctx, pair *CredentialPair) {
	c.Cookie(t.cookie(AccessCookieName, pair.AccessToken, t.accessTTL))
	c.Cookie(t.cookie(RefreshCookieName, pair.RefreshToken, t.refreshTTL))
}

// RotateRefresh overwrites only the refresh cookie. The superseded
// token keeps verifying cryptographically until its expiry; rotation is
// observable purely as the legitimate client no longer presenting it.
func (t *CredentialTransport) RotateRefresh(c *fiber.Ctx, refreshToken string) {
	c.Cookie(t.cookie(RefreshCookieName, refreshToken, t.refreshTTL))
}

// ClearCredentials deletes both cookies.
func (t *CredentialTransport) ClearCredentials(c *fiber.Ctx) {
	c.Cookie(t.expiredCookie(AccessCookieName))
	c.Cookie(t.expiredCookie(RefreshCookieName))
}

func (t *CredentialTransport) cookie(name, value string, ttl time.Duration) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HTTPOnly: true,
		Secure:   t.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
}

func (t *CredentialTransport) expiredCookie(name string) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   t.secure,
		SameSite: fiber.CookieSameSiteStrictMode,
	}
}
