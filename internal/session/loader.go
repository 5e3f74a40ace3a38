package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/luxclinic/sessiond/internal/domain"
)

// load fetches the Profile/Organization pair for an identity id.
//
// At most one load is in flight per identity id: a duplicate non-forced
// call is dropped, a forced call or a call for a different id cancels
// the in-flight load. Every resume point after a network call re-checks
// the sequence tag before committing, so a superseded load can never
// overwrite the state of its successor.
func (m *Manager) load(id string, force bool) {
	m.mu.Lock()
	if m.activeCancel != nil && m.activeID == id && !force {
		m.mu.Unlock()
		log.Printf("session: duplicate load ignored for %s", id)
		return
	}
	if m.activeCancel != nil {
		m.activeCancel()
	}
	m.seq++
	seq := m.seq
	ctx, cancel := context.WithCancel(m.rootCtx)
	m.activeID, m.activeSeq, m.activeCancel = id, seq, cancel

	// Only show the spinner on the very first load; later loads keep the
	// previous data visible while fresh data arrives.
	if m.profile == nil && !m.initialDone {
		m.loading = true
	}
	if force {
		m.profile = nil
		m.organization = nil
	}
	m.mu.Unlock()

	// Safety net: never leave the UI behind a permanent spinner if this
	// load stalls without resolving.
	guard := time.AfterFunc(m.loadTimeout, func() {
		log.Printf("session: load for %s exceeded %s, releasing loading flag", id, m.loadTimeout)
		m.mu.Lock()
		m.loading = false
		m.initialDone = true
		m.mu.Unlock()
	})

	defer func() {
		guard.Stop()
		m.mu.Lock()
		if m.activeSeq == seq {
			m.activeID, m.activeSeq, m.activeCancel = "", 0, nil
			m.loading = false
			m.initialDone = true
		}
		m.mu.Unlock()
		cancel()
	}()

	if force {
		// Drop the cached snapshot too, so a failed refresh cannot keep
		// serving stale data indefinitely.
		if err := m.cache.Clear(ctx); err != nil {
			log.Printf("session: clearing snapshot cache: %v", err)
		}
	}

	if m.superseded(ctx, seq) {
		return
	}

	profile, err := m.profiles.GetByID(ctx, id)
	if m.superseded(ctx, seq) {
		return
	}
	if errors.Is(err, domain.ErrNotFound) {
		// Authenticated identity without a profile is a consistency
		// violation; the session cannot continue.
		m.forceSignOut()
		return
	}
	if err != nil {
		log.Printf("session: loading profile %s: %v", id, err)
		if !m.hasUsableCache(ctx, id) {
			m.mu.Lock()
			if m.seq == seq {
				m.profile = nil
				m.organization = nil
			}
			m.mu.Unlock()
		}
		return
	}

	m.mu.Lock()
	if m.seq != seq {
		m.mu.Unlock()
		return
	}
	m.profile = profile
	m.profileLoadedAt = time.Now()
	m.mu.Unlock()

	if err := m.cache.SetProfile(ctx, profile); err != nil {
		log.Printf("session: caching profile %s: %v", profile.ID, err)
	}

	if profile.IsSuperAdmin || profile.OrganizationID == "" {
		// Super admins have no organization; a possibly stale cached one
		// must not survive.
		m.mu.Lock()
		if m.seq == seq {
			m.organization = nil
		}
		m.mu.Unlock()
		if err := m.cache.RemoveOrganization(ctx); err != nil {
			log.Printf("session: removing cached organization: %v", err)
		}
		return
	}

	if m.superseded(ctx, seq) {
		return
	}

	org, err := m.orgs.GetByID(ctx, profile.OrganizationID)
	if m.superseded(ctx, seq) {
		return
	}
	if err != nil {
		// A missing organization is not grounds for a forced logout; the
		// profile stays valid and the next trigger retries.
		log.Printf("session: loading organization %s: %v", profile.OrganizationID, err)
		return
	}

	m.mu.Lock()
	if m.seq != seq {
		m.mu.Unlock()
		return
	}
	m.organization = org
	m.mu.Unlock()

	if err := m.cache.SetOrganization(ctx, org); err != nil {
		log.Printf("session: caching organization %s: %v", org.ID, err)
	}
}

// invalidateLoadsLocked cancels the in-flight load and advances the
// sequence tag so any result it still produces can no longer commit.
// Callers must hold mu.
func (m *Manager) invalidateLoadsLocked() {
	if m.activeCancel != nil {
		m.activeCancel()
	}
	m.seq++
	m.activeID, m.activeSeq, m.activeCancel = "", 0, nil
}

// superseded reports whether this load was cancelled or a newer load has
// been issued since it started.
func (m *Manager) superseded(ctx context.Context, seq uint64) bool {
	if ctx.Err() != nil {
		return true
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seq != seq
}

// hasUsableCache reports whether the snapshot cache holds a profile for
// the given identity id.
func (m *Manager) hasUsableCache(ctx context.Context, id string) bool {
	cached, err := m.cache.Profile(ctx)
	return err == nil && cached != nil && cached.ID == id
}

// forceSignOut handles the profile-missing outcome: sign out at the
// provider, clear everything, tell the user. Guarded so overlapping load
// attempts that hit the same condition sign out exactly once.
func (m *Manager) forceSignOut() {
	m.mu.Lock()
	if m.signingOut {
		m.mu.Unlock()
		return
	}
	m.signingOut = true
	m.mu.Unlock()

	// The provider call must not be cancelled by a superseding load.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Printf("session: profile missing for authenticated identity, signing out")
	if err := m.provider.SignOut(ctx); err != nil && !errors.Is(err, domain.ErrSessionMissing) {
		log.Printf("session: provider sign-out: %v", err)
	}

	m.mu.Lock()
	m.identity = nil
	m.profile = nil
	m.organization = nil
	m.loading = false
	m.initialDone = true
	m.mu.Unlock()

	if err := m.cache.Clear(ctx); err != nil {
		log.Printf("session: clearing snapshot cache: %v", err)
	}
	m.notices.Error("Profile not found. Please contact support.")
}
