package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/storefront-auth/internal/auth"
	"github.com/spec-kit/storefront-auth/internal/config"
	"github.com/spec-kit/storefront-auth/internal/domain"
	"github.com/spec-kit/storefront-auth/internal/events"
	"github.com/spec-kit/storefront-auth/internal/ratelimit"
	apperrors "github.com/spec-kit/storefront-auth/pkg/util/errorutil"
)

// AuthService coordinates registration, login and credential refresh.
type AuthService struct {
	users      AuthUserStore
	codec      *auth.TokenCodec
	limiter    LoginLimiter
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
}

// AuthUserStore is the slice of the user repository the auth flows need.
type AuthUserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// LoginLimiter throttles login attempts per client IP.
type LoginLimiter interface {
	Allow(ctx context.Context, ip string) bool
	Reset(ctx context.Context, ip string)
}

var _ LoginLimiter = (*ratelimit.LoginLimiter)(nil)

// AuthDependencies encapsulates collaborator requirements.
type AuthDependencies struct {
	Users      AuthUserStore
	Codec      *auth.TokenCodec
	Limiter    LoginLimiter
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.Users,
		codec:      deps.Codec,
		limiter:    deps.Limiter,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// RegisterUser creates a new account with the USER role and issues its
// first credential pair.
func (s *AuthService) RegisterUser(ctx context.Context, name, email, password string) (*domain.User, *auth.CredentialPair, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, nil, apperrors.NewConflict("email already registered")
	} else if err != pgx.ErrNoRows {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, nil, err
	}

	pair, err := s.codec.IssuePair(principalOf(user))
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.EventUserRegistered, user, "", nil)
	return user, pair, nil
}

// Login authenticates an account and mints a credential pair. Attempts
// are throttled per client IP before any credential comparison runs.
func (s *AuthService) Login(ctx context.Context, email, password, clientIP string) (*domain.User, *auth.CredentialPair, error) {
	if s.limiter != nil && !s.limiter.Allow(ctx, clientIP) {
		return nil, nil, apperrors.NewTooManyRequests("too many login attempts")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if err == pgx.ErrNoRows {
			s.publishFailure(ctx, email, clientIP, "unknown email")
			return nil, nil, apperrors.NewUnauthorized("invalid credentials")
		}
		return nil, nil, err
	}
	if user.Status != domain.UserStatusActive {
		s.publishFailure(ctx, email, clientIP, "account suspended")
		return nil, nil, apperrors.NewUnauthorized("account suspended")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		s.publishFailure(ctx, email, clientIP, "wrong password")
		return nil, nil, apperrors.NewUnauthorized("invalid credentials")
	}

	pair, err := s.codec.IssuePair(principalOf(user))
	if err != nil {
		return nil, nil, err
	}

	if s.limiter != nil {
		s.limiter.Reset(ctx, clientIP)
	}
	s.publish(ctx, events.EventLoginSucceeded, user, clientIP, nil)
	return user, pair, nil
}

// Refresh verifies a refresh token and rotates the credential pair. The
// account is reloaded so role or status changes take effect on the new
// tokens rather than being carried forward from stale claims.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, clientIP string) (*domain.User, *auth.CredentialPair, error) {
	claims, err := s.codec.Verify(refreshToken, auth.TokenClassRefresh)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil, apperrors.NewUnauthorized("account no longer exists")
		}
		return nil, nil, err
	}
	if user.Status != domain.UserStatusActive {
		return nil, nil, apperrors.NewUnauthorized("account suspended")
	}

	pair, err := s.codec.IssuePair(principalOf(user))
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, events.EventTokenRefreshed, user, clientIP,
		events.TokenRefreshedPayload{AccessExpiresAt: pair.AccessExpiresAt})
	return user, pair, nil
}

// Logout records the credential clearing; the tokens themselves are
// stateless, so the cookie deletion done by the transport is the whole
// revocation.
func (s *AuthService) Logout(ctx context.Context, principal *auth.Principal, clientIP string) {
	s.publish(ctx, events.EventCredentialsCleared, &domain.User{
		ID:    principal.UserID,
		Email: principal.Email,
		Role:  principal.Role,
	}, clientIP, nil)
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, user *domain.User, clientIP string, payload interface{}) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ClientIP:  clientIP,
		Timestamp: time.Now(),
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("publish security event", zap.Error(err))
	}
}

func (s *AuthService) publishFailure(ctx context.Context, email, clientIP, reason string) {
	if s.dispatcher == nil {
		return
	}
	err := s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventLoginFailed,
		Email:     email,
		ClientIP:  clientIP,
		Timestamp: time.Now(),
		Payload:   events.LoginFailedPayload{Reason: reason},
	})
	if err != nil {
		s.logger.Warn("publish security event", zap.Error(err))
	}
}

func principalOf(user *domain.User) *auth.Principal {
	return &auth.Principal{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		Name:   user.Name,
	}
}
