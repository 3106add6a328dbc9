package events

import (
	"time"

	"github.com/spec-kit/storefront-auth/internal/domain"
)

// EventType enumerates supported security event identifiers.
type EventType string

const (
	EventUserRegistered     EventType = "user_registered"
	EventLoginSucceeded     EventType = "login_succeeded"
	EventLoginFailed        EventType = "login_failed"
	EventTokenRefreshed     EventType = "token_refreshed"
	EventCredentialsCleared EventType = "credentials_cleared"
)

// Event represents a security event emitted by the auth service.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
	ClientIP  string      `json:"client_ip,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// LoginFailedPayload carries the failure reason without echoing
// credentials.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// TokenRefreshedPayload records a rotation.
type TokenRefreshedPayload struct {
	AccessExpiresAt time.Time `json:"access_expires_at"`
}
