package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/storefront-auth/internal/api/dto"
	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/domain"
	"github.com/spec-kit/storefront-auth/internal/service"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

// AuthHandler exposes registration, login and credential lifecycle
// endpoints. All cookie writes go through the credential transport.
type AuthHandler struct {
	auth      *service.AuthService
	transport *auth.CredentialTransport
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authService *service.AuthService, transport *auth.CredentialTransport) *AuthHandler {
	return &AuthHandler{auth: authService, transport: transport}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("name, email, password required")
	}

	user, pair, err := h.auth.RegisterUser(c.UserContext(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}

	h.transport.SetCredentialPair(c, pair)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(user),
			"auth": dto.AuthResponse{AccessToken: pair.AccessToken, AccessExpiresAt: pair.AccessExpiresAt},
		},
	})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required")
	}

	user, pair, err := h.auth.Login(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		return err
	}

	h.transport.SetCredentialPair(c, pair)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(user),
			"auth": dto.AuthResponse{AccessToken: pair.AccessToken, AccessExpiresAt: pair.AccessExpiresAt},
		},
	})
}

// Refresh handles POST /api/auth/refresh: explicit rotation. The
// refresh token is read from its cookie only, never from a header.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refreshToken, ok := h.transport.ExtractRefreshToken(c)
	if !ok {
		return apperrors.NewUnauthorizedCode(auth.CodeMissingCredential, "refresh token required")
	}

	user, pair, err := h.auth.Refresh(c.UserContext(), refreshToken, c.IP())
	if err != nil {
		return refreshError(err)
	}

	h.transport.SetCredentialPair(c, pair)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": userResponse(user),
			"auth": dto.AuthResponse{AccessToken: pair.AccessToken, AccessExpiresAt: pair.AccessExpiresAt},
		},
	})
}

// Logout handles POST /api/auth/logout. Cookie deletion is the whole
// revocation; there is no server-side token state to clear.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if principal, ok := auth.PrincipalFromContext(c); ok {
		h.auth.Logout(c.UserContext(), principal, c.IP())
	}
	h.transport.ClearCredentials(c)
	return c.JSON(fiber.Map{"data": fiber.Map{"loggedOut": true}})
}

// Me handles GET /api/account/me, echoing the enriched principal.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorizedCode(auth.CodeMissingCredential, "authentication required")
	}
	return c.JSON(fiber.Map{
		"data": dto.UserResponse{
			ID:    principal.UserID,
			Name:  principal.Name,
			Email: principal.Email,
			Role:  string(principal.Role),
		},
	})
}

func refreshError(err error) error {
	switch err {
	case auth.ErrTokenExpired:
		return apperrors.NewUnauthorizedCode(auth.CodeTokenExpired, "refresh token expired")
	case auth.ErrTokenMalformed:
		return apperrors.NewUnauthorizedCode(auth.CodeTokenMalformed, "invalid refresh token")
	case auth.ErrTokenClassMismatch:
		return apperrors.NewUnauthorizedCode(auth.CodeTokenClassMismatch, "token presented for wrong purpose")
	default:
		return err
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:    user.ID,
		Name:  user.Name,
		Email: user.Email,
		Role:  string(user.Role),
	}
}
