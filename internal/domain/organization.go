package domain

import (
	"context"
	"time"
)

// Organization represents a clinic using the platform
type Organization struct {
	ID               string    `bson:"_id,omitempty" json:"id"`
	Name             string    `bson:"name" json:"name"`
	Slug             string    `bson:"slug" json:"slug"`
	IsActive         bool      `bson:"is_active" json:"is_active"`
	SubscriptionPlan string    `bson:"subscription_plan" json:"subscription_plan"`
	LogoURL          string    `bson:"logo_url,omitempty" json:"logo_url,omitempty"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
}

// Settings holds the per-clinic defaults created at registration
type Settings struct {
	ID               string    `bson:"_id,omitempty" json:"id"`
	OrganizationID   string    `bson:"organization_id" json:"organization_id"`
	ClinicName       string    `bson:"clinic_name" json:"clinic_name"`
	DoctorName       string    `bson:"doctor_name" json:"doctor_name"`
	SubscriptionPlan string    `bson:"subscription_plan" json:"subscription_plan"`
	CreatedAt        time.Time `bson:"created_at" json:"created_at"`
}

// DefaultSubscriptionPlan is assigned to newly registered clinics.
const DefaultSubscriptionPlan = "plano_a"

// OrganizationRepository defines operations for managing organizations
type OrganizationRepository interface {
	GetByID(ctx context.Context, id string) (*Organization, error)
	GetAll(ctx context.Context) ([]*Organization, error)
	Update(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, id string) error
}

// Registration is the input to the atomic sign-up procedure.
type Registration struct {
	UserID           string
	FullName         string
	OrganizationName string
	Slug             string
}

// Registrar creates an organization, its admin profile, and default
// settings in a single transaction. Partial creation must be impossible
// from the caller's perspective.
type Registrar interface {
	RegisterUserWithOrganization(ctx context.Context, reg Registration) (*Organization, error)
}
