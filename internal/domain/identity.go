package domain

import (
	"context"
	"time"
)

// Identity is the authenticated credential issued by the identity
// provider. It is replaced wholesale on token refresh and cleared on
// sign-out; the application never mutates it field by field.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionEventKind enumerates the provider events the gateway reacts to.
type SessionEventKind string

const (
	EventSignedIn       SessionEventKind = "SIGNED_IN"
	EventSignedOut      SessionEventKind = "SIGNED_OUT"
	EventTokenRefreshed SessionEventKind = "TOKEN_REFRESHED"
)

// SessionEvent is delivered by the identity provider on every session
// transition. Identity is nil for SIGNED_OUT.
type SessionEvent struct {
	Kind     SessionEventKind
	Identity *Identity
}

// SignUpResult reports the outcome of a provider sign-up.
// Session is nil when the user still has to confirm their email.
type SignUpResult struct {
	Identity *Identity
	Session  *Identity
}

// IdentityProvider is the port to the external auth service. Exactly one
// subscriber receives session events at a time; Subscribe returns the
// matching unsubscribe func.
type IdentityProvider interface {
	// CurrentSession resolves a previously established session, refreshing
	// tokens if needed. Returns (nil, nil) when no session exists.
	CurrentSession(ctx context.Context) (*Identity, error)

	Subscribe(fn func(SessionEvent)) (unsubscribe func())

	SignInWithPassword(ctx context.Context, email, password string) (*Identity, error)
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)
	SignOut(ctx context.Context) error
	SendPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdatePassword(ctx context.Context, newPassword string) error
	SetSession(ctx context.Context, accessToken, refreshToken string) (*Identity, error)
}
