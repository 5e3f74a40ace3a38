package repository

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/luxclinic/sessiond/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoRegistrar implements domain.Registrar. It inserts the
// organization, the admin profile, and the default settings in order,
// and compensates with deletes when a later insert fails so the caller
// never observes a half-registered clinic.
type MongoRegistrar struct {
	organizations *mongo.Collection
	profiles      *mongo.Collection
	settings      *mongo.Collection
}

func NewMongoRegistrar(db *mongo.Database) *MongoRegistrar {
	return &MongoRegistrar{
		organizations: db.Collection("organizations"),
		profiles:      db.Collection("profiles"),
		settings:      db.Collection("organization_settings"),
	}
}

func (r *MongoRegistrar) RegisterUserWithOrganization(ctx context.Context, reg domain.Registration) (*domain.Organization, error) {
	now := time.Now()
	orgID := primitive.NewObjectID()

	org := &domain.Organization{
		ID:               orgID.Hex(),
		Name:             reg.OrganizationName,
		Slug:             reg.Slug,
		IsActive:         true,
		SubscriptionPlan: domain.DefaultSubscriptionPlan,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := r.organizations.InsertOne(ctx, bson.M{
		"_id":               orgID,
		"name":              org.Name,
		"slug":              org.Slug,
		"is_active":         org.IsActive,
		"subscription_plan": org.SubscriptionPlan,
		"created_at":        now,
		"updated_at":        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	_, err = r.profiles.InsertOne(ctx, bson.M{
		"_id":             reg.UserID,
		"full_name":       reg.FullName,
		"role":            domain.RoleAdmin,
		"organization_id": org.ID,
		"is_active":       true,
		"is_super_admin":  false,
		"created_at":      now,
		"updated_at":      now,
	})
	if err != nil {
		r.compensate(ctx, orgID, "")
		return nil, fmt.Errorf("failed to create admin profile: %w", err)
	}

	_, err = r.settings.InsertOne(ctx, bson.M{
		"_id":               primitive.NewObjectID(),
		"organization_id":   org.ID,
		"clinic_name":       reg.OrganizationName,
		"doctor_name":       reg.FullName,
		"subscription_plan": org.SubscriptionPlan,
		"created_at":        now,
	})
	if err != nil {
		r.compensate(ctx, orgID, reg.UserID)
		return nil, fmt.Errorf("failed to create organization settings: %w", err)
	}

	return org, nil
}

// compensate undoes the earlier inserts of a failed registration. It
// runs on a fresh deadline so a cancelled request context cannot leave
// orphans behind.
func (r *MongoRegistrar) compensate(ctx context.Context, orgID primitive.ObjectID, profileID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if profileID != "" {
		if _, err := r.profiles.DeleteOne(cleanupCtx, bson.M{"_id": profileID}); err != nil {
			log.Printf("registrar: rollback of profile %s failed: %v", profileID, err)
		}
	}
	if _, err := r.organizations.DeleteOne(cleanupCtx, bson.M{"_id": orgID}); err != nil {
		log.Printf("registrar: rollback of organization %s failed: %v", orgID.Hex(), err)
	}
}
