package domain

import "context"

// SnapshotCache is the durable slot pair holding the last known
// Profile/Organization. Writes are last-writer-wins; readers must check
// the embedded profile id against the live identity before trusting it.
type SnapshotCache interface {
	Profile(ctx context.Context) (*Profile, error)
	Organization(ctx context.Context) (*Organization, error)
	SetProfile(ctx context.Context, profile *Profile) error
	SetOrganization(ctx context.Context, org *Organization) error
	RemoveOrganization(ctx context.Context) error
	Clear(ctx context.Context) error
}

// TokenStore persists the provider token pair between process restarts.
type TokenStore interface {
	Load(ctx context.Context) (accessToken, refreshToken string, err error)
	Save(ctx context.Context, accessToken, refreshToken string) error
	Clear(ctx context.Context) error
}
