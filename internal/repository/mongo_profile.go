package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/luxclinic/sessiond/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProfileRepository implements domain.ProfileRepository
type MongoProfileRepository struct {
	collection *mongo.Collection
}

func NewMongoProfileRepository(db *mongo.Database) *MongoProfileRepository {
	coll := db.Collection("profiles")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Profile ids come from the identity provider, so _id is already
	// unique; the secondary indexes serve org listings and role checks.
	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "organization_id", Value: 1}}},
		{Keys: bson.D{{Key: "role", Value: 1}}},
		{
			Keys:    bson.D{{Key: "is_super_admin", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})

	return &MongoProfileRepository{
		collection: coll,
	}
}

func (r *MongoProfileRepository) Create(ctx context.Context, profile *domain.Profile) error {
	profile.CreatedAt = time.Now()
	profile.UpdatedAt = time.Now()

	doc := bson.M{
		"_id":            profile.ID,
		"full_name":      profile.FullName,
		"role":           profile.Role,
		"is_active":      profile.IsActive,
		"is_super_admin": profile.IsSuperAdmin,
		"created_at":     profile.CreatedAt,
		"updated_at":     profile.UpdatedAt,
	}
	if profile.OrganizationID != "" {
		doc["organization_id"] = profile.OrganizationID
	}

	_, err := r.collection.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *MongoProfileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return mapBsonToProfile(raw), nil
}

func (r *MongoProfileRepository) Update(ctx context.Context, profile *domain.Profile) error {
	profile.UpdatedAt = time.Now()

	set := bson.M{
		"full_name":      profile.FullName,
		"role":           profile.Role,
		"is_active":      profile.IsActive,
		"is_super_admin": profile.IsSuperAdmin,
		"updated_at":     profile.UpdatedAt,
	}
	if profile.OrganizationID != "" {
		set["organization_id"] = profile.OrganizationID
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": profile.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoProfileRepository) Delete(ctx context.Context, id string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (r *MongoProfileRepository) CountByOrganization(ctx context.Context, orgID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"organization_id": orgID})
	if err != nil {
		return 0, fmt.Errorf("failed to count profiles: %w", err)
	}
	return count, nil
}

func mapBsonToProfile(raw bson.M) *domain.Profile {
	profile := &domain.Profile{}
	if id, ok := raw["_id"].(string); ok {
		profile.ID = id
	}
	if name, ok := raw["full_name"].(string); ok {
		profile.FullName = name
	}
	if role, ok := raw["role"].(string); ok {
		profile.Role = role
	}
	if orgID, ok := raw["organization_id"].(string); ok {
		profile.OrganizationID = orgID
	}
	if active, ok := raw["is_active"].(bool); ok {
		profile.IsActive = active
	}
	if super, ok := raw["is_super_admin"].(bool); ok {
		profile.IsSuperAdmin = super
	}
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		profile.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		profile.UpdatedAt = updated.Time()
	}
	return profile
}
