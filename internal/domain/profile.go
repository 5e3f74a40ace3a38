package domain

import (
	"context"
	"time"
)

// Profile is the application-level record for a user. Its ID always
// equals the identity provider's user id.
type Profile struct {
	ID             string    `bson:"_id" json:"id"`
	FullName       string    `bson:"full_name" json:"full_name"`
	Role           string    `bson:"role" json:"role"`
	OrganizationID string    `bson:"organization_id,omitempty" json:"organization_id,omitempty"`
	IsActive       bool      `bson:"is_active" json:"is_active"`
	IsSuperAdmin   bool      `bson:"is_super_admin" json:"is_super_admin"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

// Role constants
const (
	RoleAdmin     = "admin"
	RoleDoctor    = "doctor"
	RoleAssistant = "assistant"
)

// ProfileRepository defines operations for managing profiles
type ProfileRepository interface {
	Create(ctx context.Context, profile *Profile) error
	GetByID(ctx context.Context, id string) (*Profile, error)
	Update(ctx context.Context, profile *Profile) error
	Delete(ctx context.Context, id string) error
	CountByOrganization(ctx context.Context, orgID string) (int64, error)
}
