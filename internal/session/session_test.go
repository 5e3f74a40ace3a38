package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxclinic/sessiond/internal/domain"
)

// fakeProvider is an in-memory identity provider for manager tests.
type fakeProvider struct {
	mu           sync.Mutex
	session      *domain.Identity
	sessionErr   error
	signInErr    error
	signUpRes    *domain.SignUpResult
	signUpErr    error
	signOutErr   error
	signOutCalls int
	resetCalls   []string
	subscriber   func(domain.SessionEvent)
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (*domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, p.sessionErr
}

func (p *fakeProvider) Subscribe(fn func(domain.SessionEvent)) func() {
	p.mu.Lock()
	p.subscriber = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.subscriber = nil
		p.mu.Unlock()
	}
}

func (p *fakeProvider) emit(ev domain.SessionEvent) {
	p.mu.Lock()
	fn := p.subscriber
	p.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	ident := &domain.Identity{ID: "user-" + email, Email: email}
	p.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: ident})
	return ident, nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password string) (*domain.SignUpResult, error) {
	if p.signUpErr != nil {
		return nil, p.signUpErr
	}
	// Auto-confirmed sign-ups announce the live session immediately,
	// before the caller has registered a profile.
	if p.signUpRes != nil && p.signUpRes.Session != nil {
		p.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: p.signUpRes.Identity})
	}
	return p.signUpRes, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOutCalls++
	return p.signOutErr
}

func (p *fakeProvider) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetCalls = append(p.resetCalls, email+"|"+redirectURL)
	return nil
}

func (p *fakeProvider) UpdatePassword(ctx context.Context, newPassword string) error { return nil }

func (p *fakeProvider) SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Identity, error) {
	return nil, nil
}

// fakeProfiles implements domain.ProfileRepository. A gate registered for
// an id blocks GetByID until the gate closes or the context is cancelled,
// which lets tests hold a load in flight.
type fakeProfiles struct {
	mu    sync.Mutex
	byID  map[string]*domain.Profile
	err   error
	gates map[string]chan struct{}
	calls int
}

func newFakeProfiles(profiles ...*domain.Profile) *fakeProfiles {
	f := &fakeProfiles{byID: map[string]*domain.Profile{}, gates: map[string]chan struct{}{}}
	for _, p := range profiles {
		f.byID[p.ID] = p
	}
	return f
}

func (f *fakeProfiles) gate(id string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakeProfiles) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	f.mu.Lock()
	f.calls++
	gate := f.gates[id]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfiles) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProfiles) Create(ctx context.Context, p *domain.Profile) error { return nil }
func (f *fakeProfiles) Update(ctx context.Context, p *domain.Profile) error { return nil }
func (f *fakeProfiles) Delete(ctx context.Context, id string) error         { return nil }
func (f *fakeProfiles) CountByOrganization(ctx context.Context, orgID string) (int64, error) {
	return 0, nil
}

// fakeOrgs implements domain.OrganizationRepository.
type fakeOrgs struct {
	mu    sync.Mutex
	byID  map[string]*domain.Organization
	err   error
	calls int
}

func newFakeOrgs(orgs ...*domain.Organization) *fakeOrgs {
	f := &fakeOrgs{byID: map[string]*domain.Organization{}}
	for _, o := range orgs {
		f.byID[o.ID] = o
	}
	return f
}

func (f *fakeOrgs) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	o, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrgs) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeOrgs) GetAll(ctx context.Context) ([]*domain.Organization, error) { return nil, nil }
func (f *fakeOrgs) Update(ctx context.Context, o *domain.Organization) error   { return nil }
func (f *fakeOrgs) Delete(ctx context.Context, id string) error                { return nil }

// fakeCache implements domain.SnapshotCache in memory.
type fakeCache struct {
	mu      sync.Mutex
	profile *domain.Profile
	org     *domain.Organization
}

func (c *fakeCache) Profile(ctx context.Context) (*domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile, nil
}

func (c *fakeCache) Organization(ctx context.Context) (*domain.Organization, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.org, nil
}

func (c *fakeCache) SetProfile(ctx context.Context, p *domain.Profile) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = p
	return nil
}

func (c *fakeCache) SetOrganization(ctx context.Context, o *domain.Organization) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.org = o
	return nil
}

func (c *fakeCache) RemoveOrganization(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.org = nil
	return nil
}

func (c *fakeCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = nil
	c.org = nil
	return nil
}

func (c *fakeCache) snapshot() (*domain.Profile, *domain.Organization) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile, c.org
}

// fakeRegistrar records the registration it received.
type fakeRegistrar struct {
	mu  sync.Mutex
	reg domain.Registration
	err error
}

func (r *fakeRegistrar) RegisterUserWithOrganization(ctx context.Context, reg domain.Registration) (*domain.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reg = reg
	if r.err != nil {
		return nil, r.err
	}
	return &domain.Organization{ID: "org-new", Name: reg.OrganizationName, Slug: reg.Slug, IsActive: true}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Success(msg string) {}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

// startManager builds and starts a manager over the fakes and waits for
// the bootstrap to settle.
func startManager(t *testing.T, provider *fakeProvider, profiles *fakeProfiles, orgs *fakeOrgs, cache *fakeCache, opts Options) *Manager {
	t.Helper()
	if opts.LoadTimeout == 0 {
		opts.LoadTimeout = 2 * time.Second
	}
	m := NewManager(provider, profiles, orgs, cache, &fakeRegistrar{}, opts)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(m.Close)
	return m
}

func waitSettled(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !m.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond, "session never settled")
}
