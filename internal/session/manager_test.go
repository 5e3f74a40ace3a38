package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxclinic/sessiond/internal/domain"
)

func identity(id string) *domain.Identity {
	return &domain.Identity{ID: id, Email: id + "@clinic.test", ExpiresAt: time.Now().Add(time.Hour)}
}

func profileFor(id, orgID string) *domain.Profile {
	return &domain.Profile{ID: id, FullName: "Dr. " + id, Role: domain.RoleAdmin, OrganizationID: orgID, IsActive: true}
}

func TestBootstrapNoSession(t *testing.T) {
	provider := &fakeProvider{}
	m := startManager(t, provider, newFakeProfiles(), newFakeOrgs(), &fakeCache{}, Options{})

	waitSettled(t, m)
	st := m.Snapshot()
	assert.Nil(t, st.Identity)
	assert.Nil(t, st.Profile)
	assert.Nil(t, st.Organization)
	assert.False(t, st.Loading)
}

func TestBootstrapProviderErrorDegradesSilently(t *testing.T) {
	provider := &fakeProvider{sessionErr: errors.New("provider unreachable")}
	m := startManager(t, provider, newFakeProfiles(), newFakeOrgs(), &fakeCache{}, Options{})

	waitSettled(t, m)
	st := m.Snapshot()
	assert.Nil(t, st.Identity)
	assert.False(t, st.Loading)
}

func TestBootstrapLoadsProfileAndOrganization(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", "org-1"))
	orgs := newFakeOrgs(&domain.Organization{ID: "org-1", Name: "Clinic One", IsActive: true})
	cache := &fakeCache{}
	m := startManager(t, provider, profiles, orgs, cache, Options{})

	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Profile != nil && st.Organization != nil
	}, 2*time.Second, 5*time.Millisecond)

	st := m.Snapshot()
	assert.Equal(t, "u1", st.Profile.ID)
	assert.Equal(t, "org-1", st.Organization.ID)
	assert.False(t, st.Loading)

	cp, co := cache.snapshot()
	require.NotNil(t, cp)
	require.NotNil(t, co)
	assert.Equal(t, "u1", cp.ID)
	assert.Equal(t, "org-1", co.ID)
}

func TestBootstrapPaintsMatchingCacheBeforeServer(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", "org-1"))
	gate := profiles.gate("u1")
	orgs := newFakeOrgs(&domain.Organization{ID: "org-1", Name: "Clinic One", IsActive: true})
	cache := &fakeCache{
		profile: profileFor("u1", "org-1"),
		org:     &domain.Organization{ID: "org-1", Name: "Clinic One (cached)", IsActive: true},
	}
	m := startManager(t, provider, profiles, orgs, cache, Options{})

	// UI unblocks from cache while the server fetch is still held open.
	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Profile != nil && !st.Loading
	}, 2*time.Second, 5*time.Millisecond)
	st := m.Snapshot()
	assert.Equal(t, "u1", st.Profile.ID)
	assert.Equal(t, "Clinic One (cached)", st.Organization.Name)

	// Release the server fetch; state reconciles silently.
	close(gate)
	require.Eventually(t, func() bool {
		return m.Snapshot().Organization.Name == "Clinic One"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBootstrapDiscardsMismatchedCache(t *testing.T) {
	provider := &fakeProvider{session: identity("v1")}
	profiles := newFakeProfiles(profileFor("v1", ""))
	cache := &fakeCache{profile: profileFor("u1", "org-1")}
	m := startManager(t, provider, profiles, newFakeOrgs(), cache, Options{})

	require.Eventually(t, func() bool {
		st := m.Snapshot()
		return st.Profile != nil && st.Profile.ID == "v1"
	}, 2*time.Second, 5*time.Millisecond)

	// The foreign user's snapshot must not survive.
	cp, _ := cache.snapshot()
	require.NotNil(t, cp)
	assert.Equal(t, "v1", cp.ID)
}

func TestStartTwiceFails(t *testing.T) {
	provider := &fakeProvider{}
	m := startManager(t, provider, newFakeProfiles(), newFakeOrgs(), &fakeCache{}, Options{})
	waitSettled(t, m)
	assert.Error(t, m.Start(t.Context()))
}

func TestSafetyTimeoutReleasesLoading(t *testing.T) {
	provider := &fakeProvider{session: identity("u1")}
	profiles := newFakeProfiles(profileFor("u1", ""))
	profiles.gate("u1") // never released
	m := startManager(t, provider, profiles, newFakeOrgs(), &fakeCache{},
		Options{LoadTimeout: 50 * time.Millisecond})

	require.Eventually(t, func() bool {
		return !m.Snapshot().Loading
	}, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, m.Snapshot().Profile)
}
