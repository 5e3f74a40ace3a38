package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxclinic/sessiond/internal/domain"
)

func TestSignedInAlwaysForcesRefresh(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""))
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{}, Options{})
	require.Eventually(t, func() bool {
		return m.Snapshot().Profile != nil
	}, 2*time.Second, 5*time.Millisecond)
	before := profiles.callCount()

	// Same identity signing in again must still refetch.
	provider.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: identity("u1")})

	require.Eventually(t, func() bool {
		return profiles.callCount() == before+1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTokenRefreshedIsIdempotentForLoadedProfile(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""))
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{}, Options{})
	require.Eventually(t, func() bool {
		return m.Snapshot().Profile != nil && !m.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond)
	before := profiles.callCount()

	provider.emit(domain.SessionEvent{Kind: domain.EventTokenRefreshed, Identity: identity("u1")})
	provider.emit(domain.SessionEvent{Kind: domain.EventTokenRefreshed, Identity: identity("u1")})

	// Give the reactor time to (wrongly) schedule loads before asserting.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, profiles.callCount(), "refresh with a loaded matching profile must not refetch")
}

func TestTokenRefreshedRefetchesForDifferentIdentity(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""), profileFor("u2", ""))
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{}, Options{})
	require.Eventually(t, func() bool {
		return m.Snapshot().Profile != nil && !m.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond)

	provider.emit(domain.SessionEvent{Kind: domain.EventTokenRefreshed, Identity: identity("u2")})

	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Profile != nil && st.Profile.ID == "u2"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTokenRefreshedRefetchesWhenProfileAged(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""))
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{},
		Options{MaxProfileAge: 10 * time.Millisecond})
	require.Eventually(t, func() bool {
		return m.Snapshot().Profile != nil && !m.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond)
	before := profiles.callCount()

	time.Sleep(20 * time.Millisecond)
	provider.emit(domain.SessionEvent{Kind: domain.EventTokenRefreshed, Identity: identity("u1")})

	require.Eventually(t, func() bool {
		return profiles.callCount() == before+1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSignedOutClearsEverything(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", "org-1"))
	orgs := newFakeOrgs(&domain.Organization{ID: "org-1", Name: "Clinic One"})
	cache := &fakeCache{}
	m := startManager(t, provider, profiles, orgs, cache, Options{})
	require.Eventually(t, func() bool {
		return m.Snapshot().Organization != nil
	}, 2*time.Second, 5*time.Millisecond)

	provider.emit(domain.SessionEvent{Kind: domain.EventSignedOut})

	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Identity == nil && st.Profile == nil && st.Organization == nil && !st.Loading
	}, 2*time.Second, 5*time.Millisecond)

	cp, co := cache.snapshot()
	assert.Nil(t, cp)
	assert.Nil(t, co)
}

func TestSignedOutInvalidatesInFlightLoad(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""))
	gate := profiles.gate("u1")
	cache := &fakeCache{}
	m := startManager(t, provider, profiles, newFakeOrgs(), cache, Options{})

	// Hold the bootstrap load open, then sign out underneath it.
	require.Eventually(t, func() bool {
		return profiles.callCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	provider.emit(domain.SessionEvent{Kind: domain.EventSignedOut})
	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Identity == nil && !st.Loading
	}, 2*time.Second, 5*time.Millisecond)

	close(gate)
	time.Sleep(20 * time.Millisecond)
	st := m.Snapshot()
	assert.Nil(t, st.Profile, "a load in flight at sign-out must not resurrect the session")
	cp, _ := cache.snapshot()
	assert.Nil(t, cp, "the cleared snapshot cache must stay cleared")
}

func TestUnknownEventIsIgnored(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""))
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{}, Options{})
	require.Eventually(t, func() bool {
		return m.Snapshot().Profile != nil && !m.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond)

	provider.emit(domain.SessionEvent{Kind: "PASSWORD_RECOVERY", Identity: identity("u1")})

	time.Sleep(20 * time.Millisecond)
	st := m.Snapshot()
	assert.NotNil(t, st.Profile, "unknown events must not clear state speculatively")
}

func TestProfileAlwaysMatchesLatestIdentity(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""), profileFor("u2", ""))
	gate1 := profiles.gate("u1")
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{}, Options{})

	// u1's bootstrap load is held open when u2 signs in.
	require.Eventually(t, func() bool {
		return profiles.callCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	provider.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: identity("u2")})

	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Profile != nil && st.Profile.ID == "u2"
	}, 2*time.Second, 5*time.Millisecond)

	close(gate1)
	time.Sleep(20 * time.Millisecond)
	st := m.Snapshot()
	assert.Equal(t, "u2", st.Profile.ID, "cross-identity leakage")
	assert.Equal(t, "u2", st.Identity.ID)
}
