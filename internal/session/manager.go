package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/luxclinic/sessiond/internal/domain"
)

const defaultLoadTimeout = 10 * time.Second

// Options tunes the Manager. The zero value is usable.
type Options struct {
	// LoadTimeout bounds how long the loading flag may stay set while a
	// background load is unresolved. Defaults to 10s.
	LoadTimeout time.Duration

	// MaxProfileAge forces a refetch on TOKEN_REFRESHED when the loaded
	// profile is older than this, even if its id matches the event's
	// identity. Zero disables the age check (id match alone suffices).
	MaxProfileAge time.Duration

	// ResetRedirectURL is the return target for password-reset emails.
	ResetRedirectURL string

	// Notifier receives user-visible notices. Defaults to the log.
	Notifier Notifier
}

// Manager owns the session state for the gateway process: it bootstraps
// the session once at startup, reacts to provider events, loads the
// Profile/Organization pair for the confirmed identity, and exposes the
// session actions. All mutation goes through its enumerated transitions.
type Manager struct {
	provider  domain.IdentityProvider
	profiles  domain.ProfileRepository
	orgs      domain.OrganizationRepository
	cache     domain.SnapshotCache
	registrar domain.Registrar

	loadTimeout      time.Duration
	maxProfileAge    time.Duration
	resetRedirectURL string
	notices          Notifier

	mu              sync.RWMutex
	identity        *domain.Identity
	profile         *domain.Profile
	organization    *domain.Organization
	loading         bool
	initialDone     bool
	signingOut      bool // one-shot guard for the profile-missing sign-out
	registering     bool // SIGNED_IN loads wait while sign-up still inserts the profile
	profileLoadedAt time.Time

	// Loader bookkeeping. seq tags every load; a load commits a result
	// only while its tag is still the latest. activeID/activeCancel track
	// the single in-flight load so duplicates can be dropped and
	// superseded loads cancelled.
	seq          uint64
	activeID     string
	activeSeq    uint64
	activeCancel context.CancelFunc

	rootCtx     context.Context
	rootCancel  context.CancelFunc
	events      chan domain.SessionEvent
	unsubscribe func()
	started     bool
	wg          sync.WaitGroup
}

// NewManager creates a session manager. Start must be called before use.
func NewManager(
	provider domain.IdentityProvider,
	profiles domain.ProfileRepository,
	orgs domain.OrganizationRepository,
	cache domain.SnapshotCache,
	registrar domain.Registrar,
	opts Options,
) *Manager {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.Notifier == nil {
		opts.Notifier = logNotifier{}
	}
	return &Manager{
		provider:         provider,
		profiles:         profiles,
		orgs:             orgs,
		cache:            cache,
		registrar:        registrar,
		loadTimeout:      opts.LoadTimeout,
		maxProfileAge:    opts.MaxProfileAge,
		resetRedirectURL: opts.ResetRedirectURL,
		notices:          opts.Notifier,
		loading:          true,
		events:           make(chan domain.SessionEvent, 16),
	}
}

// Start subscribes to provider events and bootstraps the session in the
// background. It runs at most once per Manager; repeat calls are no-ops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("session: manager already started")
	}
	m.started = true
	m.rootCtx, m.rootCancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.unsubscribe = m.provider.Subscribe(func(ev domain.SessionEvent) {
		select {
		case m.events <- ev:
		case <-m.rootCtx.Done():
		}
	})

	m.wg.Add(2)
	go m.run()
	go func() {
		defer m.wg.Done()
		m.bootstrap(m.rootCtx)
	}()
	return nil
}

// Close releases the event subscription and cancels any pending load.
// Subsequent state mutation is suppressed via the cancelled root context.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.started || m.rootCancel == nil {
		m.mu.Unlock()
		return
	}
	cancel := m.rootCancel
	m.rootCancel = nil
	m.mu.Unlock()

	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	cancel()
	m.wg.Wait()
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{
		Identity:     m.identity,
		Profile:      m.profile,
		Organization: m.organization,
		Loading:      m.loading,
	}
}

// Identity returns the current identity, or nil when signed out.
func (m *Manager) Identity() *domain.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity
}

// bootstrap resolves a prior session exactly once at startup. Provider
// failures degrade silently to the logged-out state so a backend outage
// never blocks the UI.
func (m *Manager) bootstrap(ctx context.Context) {
	ident, err := m.provider.CurrentSession(ctx)
	if err != nil {
		log.Printf("session: restoring session: %v", err)
		m.mu.Lock()
		m.loading = false
		m.initialDone = true
		m.mu.Unlock()
		return
	}
	if ident == nil {
		m.mu.Lock()
		m.identity = nil
		m.loading = false
		m.initialDone = true
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.identity = ident
	m.mu.Unlock()

	// Paint from the snapshot cache when it belongs to this user, so the
	// UI unblocks before the server round trip. Server truth still wins:
	// the load below always runs.
	cached, err := m.cache.Profile(ctx)
	switch {
	case err != nil:
		log.Printf("session: reading snapshot cache: %v", err)
		if err := m.cache.Clear(ctx); err != nil {
			log.Printf("session: clearing snapshot cache: %v", err)
		}
	case cached != nil && cached.ID == ident.ID:
		org, orgErr := m.cache.Organization(ctx)
		if orgErr != nil {
			log.Printf("session: reading cached organization: %v", orgErr)
			org = nil
		}
		m.mu.Lock()
		m.profile = cached
		m.organization = org
		m.loading = false
		m.initialDone = true
		m.mu.Unlock()
		log.Printf("session: painted cached profile %s", cached.ID)
	case cached != nil:
		// Cache belongs to a different user; discard it.
		if err := m.cache.Clear(ctx); err != nil {
			log.Printf("session: clearing stale snapshot cache: %v", err)
		}
	}

	m.load(ident.ID, false)
}
