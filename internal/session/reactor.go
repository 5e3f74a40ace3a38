package session

import (
	"context"
	"log"
	"time"

	"github.com/luxclinic/sessiond/internal/domain"
)

// run is the event reactor: it consumes provider events strictly in
// delivery order on a single goroutine. Identity and loading transitions
// are applied synchronously per event; only the Profile/Organization
// fetch runs concurrently, and the loader's supersession rule resolves
// any race that produces.
func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.rootCtx.Done():
			return
		case ev := <-m.events:
			m.handleEvent(ev)
		}
	}
}

func (m *Manager) handleEvent(ev domain.SessionEvent) {
	switch ev.Kind {
	case domain.EventSignedOut:
		m.mu.Lock()
		m.signingOut = false
		// A load still in flight would otherwise resurrect the session
		// once its fetch resolves.
		m.invalidateLoadsLocked()
		m.identity = nil
		m.profile = nil
		m.organization = nil
		m.loading = false
		m.initialDone = true
		m.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.cache.Clear(ctx); err != nil {
			log.Printf("session: clearing snapshot cache: %v", err)
		}

	case domain.EventSignedIn:
		if ev.Identity == nil {
			m.clearLoadedData()
			return
		}
		m.mu.Lock()
		if m.signingOut {
			m.mu.Unlock()
			return
		}
		m.identity = ev.Identity
		if m.registering {
			// Sign-up is still inserting the profile; loading now would
			// observe a missing profile and tear the session down. The
			// registration path issues its own load once the insert lands.
			m.mu.Unlock()
			return
		}
		id := ev.Identity.ID
		m.mu.Unlock()
		// A real (re-)login must never reuse possibly stale data, even
		// for the same user.
		go m.load(id, true)

	case domain.EventTokenRefreshed:
		if ev.Identity == nil {
			m.clearLoadedData()
			return
		}
		m.mu.Lock()
		if m.signingOut {
			m.mu.Unlock()
			return
		}
		m.identity = ev.Identity
		profile := m.profile
		age := time.Since(m.profileLoadedAt)
		m.mu.Unlock()

		// Refreshes fire on every tab refocus; skip the refetch when the
		// loaded profile already belongs to this identity and is still
		// within the configured age.
		if profile != nil && profile.ID == ev.Identity.ID &&
			(m.maxProfileAge <= 0 || age < m.maxProfileAge) {
			log.Printf("session: token refresh for %s, profile current, skipping reload", ev.Identity.ID)
			return
		}
		id := ev.Identity.ID
		go m.load(id, false)

	default:
		// Unknown provider events never clear state speculatively.
	}
}

// clearLoadedData drops Profile/Organization when an event arrives
// without an identity attached.
func (m *Manager) clearLoadedData() {
	m.mu.Lock()
	m.profile = nil
	m.organization = nil
	m.loading = false
	m.mu.Unlock()
}
