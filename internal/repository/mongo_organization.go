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

// MongoOrganizationRepository implements domain.OrganizationRepository
type MongoOrganizationRepository struct {
	collection *mongo.Collection
}

func NewMongoOrganizationRepository(db *mongo.Database) *MongoOrganizationRepository {
	coll := db.Collection("organizations")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "is_active", Value: 1}}},
	})

	return &MongoOrganizationRepository{
		collection: coll,
	}
}

func (r *MongoOrganizationRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}

	var raw bson.M
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	return mapBsonToOrganization(raw), nil
}

func (r *MongoOrganizationRepository) GetAll(ctx context.Context) ([]*domain.Organization, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer cursor.Close(ctx)

	var orgs []*domain.Organization
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		orgs = append(orgs, mapBsonToOrganization(raw))
	}
	return orgs, nil
}

func (r *MongoOrganizationRepository) Update(ctx context.Context, org *domain.Organization) error {
	objID, err := primitive.ObjectIDFromHex(org.ID)
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}

	org.UpdatedAt = time.Now()
	set := bson.M{
		"name":              org.Name,
		"slug":              org.Slug,
		"is_active":         org.IsActive,
		"subscription_plan": org.SubscriptionPlan,
		"updated_at":        org.UpdatedAt,
	}
	if org.LogoURL != "" {
		set["logo_url"] = org.LogoURL
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MongoOrganizationRepository) Delete(ctx context.Context, id string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}
	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	return err
}

func mapBsonToOrganization(raw bson.M) *domain.Organization {
	org := &domain.Organization{}
	if oid, ok := raw["_id"].(primitive.ObjectID); ok {
		org.ID = oid.Hex()
	}
	if name, ok := raw["name"].(string); ok {
		org.Name = name
	}
	if slug, ok := raw["slug"].(string); ok {
		org.Slug = slug
	}
	if active, ok := raw["is_active"].(bool); ok {
		org.IsActive = active
	}
	if plan, ok := raw["subscription_plan"].(string); ok {
		org.SubscriptionPlan = plan
	}
	if logo, ok := raw["logo_url"].(string); ok {
		org.LogoURL = logo
	}
	if created, ok := raw["created_at"].(primitive.DateTime); ok {
		org.CreatedAt = created.Time()
	}
	if updated, ok := raw["updated_at"].(primitive.DateTime); ok {
		org.UpdatedAt = updated.Time()
	}
	return org
}
