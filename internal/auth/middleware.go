package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/domain"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Rejection codes surfaced in 401/403 envelopes.
const (
	CodeMissingCredential  = "MISSING_CREDENTIAL"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeTokenMalformed     = "TOKEN_MALFORMED"
	CodeTokenClassMismatch = "TOKEN_CLASS_MISMATCH"
	CodeInsufficientRole   = "INSUFFICIENT_ROLE"
	CodeInsufficientPerm   = "INSUFFICIENT_PERMISSION"
)

// Trusted metadata headers set for downstream handlers. They are
// deleted from every inbound request before classification so only this
// middleware can populate them.
const (
	HeaderUserID    = "x-user-id"
	HeaderUserEmail = "x-user-email"
	HeaderUserRole  = "x-user-role"
	HeaderUserName  = "x-user-name"
)

type routeClass int

const (
	routePublic routeClass = iota
	routeProtectedAPI
	routeProtectedPage
	routeAdmin
)

// GuardConfig is the immutable route-classification policy, built once
// at startup and injected into the Guard. An empty page-prefix list
// leaves browser-navigable pages ungated; that is a deliberate knob.
type GuardConfig struct {
	ProtectedAPIPrefixes  []string
	AdminPrefixes         []string
	ProtectedPagePrefixes []string
	LoginPath             string
}

// Guard enforces authentication and authorization at the routing
// boundary: classify, extract, verify (with one refresh fallback),
// authorize, enrich.
type Guard struct {
	codec     *TokenCodec
	transport *CredentialTransport
	cfg       GuardConfig
	logger    *zap.Logger
}

// NewGuard constructs the middleware.
func NewGuard(codec *TokenCodec, transport *CredentialTransport, cfg GuardConfig, logger *zap.Logger) *Guard {
	return &Guard{codec: codec, transport: transport, cfg: cfg, logger: logger}
}

// Handle runs the authorization state machine for one request.
func (g *Guard) Handle(c *fiber.Ctx) error {
	stripTrustedHeaders(c)

	class := g.classify(c.Path())
	if class == routePublic {
		return c.Next()
	}

	token, ok := g.transport.ExtractAccessToken(c)
	if !ok {
		return g.reject(c, class, apperrors.NewUnauthorizedCode(CodeMissingCredential, "authentication required"))
	}

	claims, err := g.codec.Verify(token, TokenClassAccess)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			claims, err = g.refreshFallback(c)
		}
		if err != nil {
			return g.reject(c, class, unauthorizedFor(err))
		}
	}

	principal := claims.Principal()
	if !principal.Role.Valid() {
		return g.reject(c, class, unauthorizedFor(ErrTokenMalformed))
	}

	if class == routeAdmin && !Dominates(principal.Role, domain.RoleAdmin) {
		return apperrors.NewForbiddenCode(CodeInsufficientRole, "admin access required")
	}

	enrich(c, principal)
	return c.Next()
}

// refreshFallback is the single retry permitted on an expired access
// token: verify the refresh cookie and, on success, mint and attach a
// fresh credential pair. The current request proceeds on the refresh
// claims even when re-issuance fails.
func (g *Guard) refreshFallback(c *fiber.Ctx) (*Claims, error) {
	refresh, ok := g.transport.ExtractRefreshToken(c)
	if !ok {
		return nil, ErrTokenExpired
	}
	claims, err := g.codec.Verify(refresh, TokenClassRefresh)
	if err != nil {
		return nil, err
	}

	pair, issueErr := g.codec.IssuePair(claims.Principal())
	if issueErr != nil {
		g.logger.Warn("re-issuing credentials after refresh fallback failed", zap.Error(issueErr))
	} else {
		g.transport.SetCredentialPair(c, pair)
	}
	return claims, nil
}

func (g *Guard) classify(path string) routeClass {
	if matchesPrefix(path, g.cfg.AdminPrefixes) {
		return routeAdmin
	}
	if matchesPrefix(path, g.cfg.ProtectedAPIPrefixes) {
		return routeProtectedAPI
	}
	if matchesPrefix(path, g.cfg.ProtectedPagePrefixes) {
		return routeProtectedPage
	}
	return routePublic
}

// reject surfaces a structured 401 for API routes and redirects page
// routes to the login screen instead.
func (g *Guard) reject(c *fiber.Ctx, class routeClass, err error) error {
	if class == routeProtectedPage && g.cfg.LoginPath != "" {
		return c.Redirect(g.cfg.LoginPath, http.StatusFound)
	}
	return err
}

func unauthorizedFor(err error) error {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apperrors.NewUnauthorizedCode(CodeTokenExpired, "credentials expired")
	case errors.Is(err, ErrTokenClassMismatch):
		return apperrors.NewUnauthorizedCode(CodeTokenClassMismatch, "token presented for wrong purpose")
	default:
		return apperrors.NewUnauthorizedCode(CodeTokenMalformed, "invalid credentials")
	}
}

func matchesPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func stripTrustedHeaders(c *fiber.Ctx) {
	c.Request().Header.Del(HeaderUserID)
	c.Request().Header.Del(HeaderUserEmail)
	c.Request().Header.Del(HeaderUserRole)
	c.Request().Header.Del(HeaderUserName)
}

// enrich attaches the verified principal for downstream consumers: in
// Locals for in-process handlers and as request headers for anything
// the request is proxied to. Both are only ever written here.
func enrich(c *fiber.Ctx, principal *Principal) {
	c.Locals(principalKey, principal)
	c.Request().Header.Set(HeaderUserID, principal.UserID)
	c.Request().Header.Set(HeaderUserEmail, principal.Email)
	c.Request().Header.Set(HeaderUserRole, string(principal.Role))
	c.Request().Header.Set(HeaderUserName, principal.Name)
}

// PrincipalFromContext retrieves the authenticated identity attached by
// the Guard. The zero return means the route was not protected.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

// RequireRole gates a route on the role hierarchy: the caller must hold
// a role at or above min.
func RequireRole(min domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorizedCode(CodeMissingCredential, "authentication required")
		}
		if !Dominates(principal.Role, min) {
			return apperrors.NewForbiddenCode(CodeInsufficientRole, "insufficient role")
		}
		return c.Next()
	}
}

// RequirePermission gates a route on the capability table. Combine with
// RequireRole when a route needs both checks; all gates must pass.
func RequirePermission(policy *PolicyTable, permission Permission, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorizedCode(CodeMissingCredential, "authentication required")
		}
		if !policy.CanPerform(principal.Role, permission, resource) {
			return apperrors.NewForbiddenCode(CodeInsufficientPerm, "insufficient permission")
		}
		return c.Next()
	}
}
