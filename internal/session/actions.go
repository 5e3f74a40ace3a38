package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/luxclinic/sessiond/internal/domain"
)

// SignUpInput contains everything needed to register a new clinic.
type SignUpInput struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	FullName         string `json:"full_name"`
	OrganizationName string `json:"organization_name"`
}

// SignUpOutcome distinguishes "ready to use" from "confirm your email".
type SignUpOutcome struct {
	ConfirmationRequired bool                 `json:"confirmation_required"`
	Organization         *domain.Organization `json:"organization"`
}

// SignIn delegates to the provider. Failures propagate to the caller
// without touching session state; on success the provider's SIGNED_IN
// event drives the profile load, so nothing is fetched here.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if _, err := m.provider.SignInWithPassword(ctx, email, password); err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	m.notices.Success("Signed in.")
	return nil
}

// SignUp creates the identity, then registers Organization + Profile +
// default Settings through one atomic procedure. Partial creation is
// impossible from this side: either the whole registration lands or the
// caller gets an error.
func (m *Manager) SignUp(ctx context.Context, in SignUpInput) (*SignUpOutcome, error) {
	m.mu.Lock()
	m.registering = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.registering = false
		m.mu.Unlock()
	}()

	res, err := m.provider.SignUp(ctx, in.Email, in.Password)
	if err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	if res.Identity == nil {
		return nil, errors.New("sign up: provider returned no identity")
	}

	slug := UniqueSlug(in.OrganizationName)
	log.Printf("session: registering organization %q as %s", in.OrganizationName, slug)

	org, err := m.registrar.RegisterUserWithOrganization(ctx, domain.Registration{
		UserID:           res.Identity.ID,
		FullName:         in.FullName,
		OrganizationName: in.OrganizationName,
		Slug:             slug,
	})
	if err != nil {
		if res.Session != nil {
			// The provider already holds a live session for an identity
			// whose profile will never exist; tear it down instead of
			// leaving it half registered until the next provider event.
			m.forceSignOut()
		}
		return nil, fmt.Errorf("register organization: %w", err)
	}

	outcome := &SignUpOutcome{
		ConfirmationRequired: res.Session == nil,
		Organization:         org,
	}
	if res.Session != nil {
		// The SIGNED_IN event was held back above; load the freshly
		// registered profile now that it exists.
		go m.load(res.Identity.ID, true)
	}
	if outcome.ConfirmationRequired {
		m.notices.Success("Account created. Check your email to confirm it.")
	} else {
		m.notices.Success("Account created.")
	}
	return outcome, nil
}

// SignOut signs out at the provider and clears local state + cache no
// matter what the provider said. A benign "session missing" error is
// swallowed; anything else is returned after the local clear.
func (m *Manager) SignOut(ctx context.Context) error {
	err := m.provider.SignOut(ctx)

	m.mu.Lock()
	m.invalidateLoadsLocked()
	m.identity = nil
	m.profile = nil
	m.organization = nil
	m.loading = false
	m.mu.Unlock()
	if cerr := m.cache.Clear(ctx); cerr != nil {
		log.Printf("session: clearing snapshot cache: %v", cerr)
	}

	if err != nil && !errors.Is(err, domain.ErrSessionMissing) {
		m.notices.Error("Sign out failed at the provider; local session cleared.")
		return fmt.Errorf("sign out: %w", err)
	}
	m.notices.Success("Signed out.")
	return nil
}

// RequestPasswordReset asks the provider to send a recovery email with
// the configured redirect target. Session state is untouched.
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	if err := m.provider.SendPasswordReset(ctx, email, m.resetRedirectURL); err != nil {
		return fmt.Errorf("password reset: %w", err)
	}
	m.notices.Success("Recovery email sent.")
	return nil
}

// UpdatePassword sets a new password for the signed-in user.
func (m *Manager) UpdatePassword(ctx context.Context, newPassword string) error {
	if m.Identity() == nil {
		return domain.ErrNoIdentity
	}
	if err := m.provider.UpdatePassword(ctx, newPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// RecoverSession adopts a token pair delivered out of band (the
// password-recovery redirect). The provider emits SIGNED_IN afterwards.
func (m *Manager) RecoverSession(ctx context.Context, accessToken, refreshToken string) error {
	if _, err := m.provider.SetSession(ctx, accessToken, refreshToken); err != nil {
		return fmt.Errorf("recover session: %w", err)
	}
	return nil
}

// Reload force-refreshes the current identity's data. No-op when signed
// out. Runs synchronously so callers observe the refreshed state.
func (m *Manager) Reload(ctx context.Context) error {
	ident := m.Identity()
	if ident == nil {
		return nil
	}
	m.load(ident.ID, true)
	return nil
}
