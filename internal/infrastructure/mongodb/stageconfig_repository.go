package mongodb

import (
	"context"

	"github.com/rms-platform/pipeline-service/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// StageConfigRepository reads stage flow and failure redirect configuration.
// Both collections are operator-maintained and read-only to the service.
type StageConfigRepository struct {
	flows     *mongo.Collection
	redirects *mongo.Collection
}

func NewStageConfigRepository(db *mongo.Database) *StageConfigRepository {
	repo := &StageConfigRepository{
		flows:     db.Collection("stage_flows"),
		redirects: db.Collection("failure_redirects"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *StageConfigRepository) ensureIndexes(ctx context.Context) {
	r.flows.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "productName", Value: 1},
			{Key: "itemType", Value: 1},
			{Key: "currentStage", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	r.redirects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "productName", Value: 1},
			{Key: "itemType", Value: 1},
			{Key: "reason", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
}

func (r *StageConfigRepository) FlowsFor(ctx context.Context, productName string, itemType domain.ItemType) ([]domain.StageFlow, error) {
	cursor, err := r.flows.Find(ctx, bson.M{"productName": productName, "itemType": itemType})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)
	var flows []domain.StageFlow
	err = cursor.All(ctx, &flows)
	return flows, err
}

func (r *StageConfigRepository) RedirectFor(ctx context.Context, productName string, itemType domain.ItemType, reason string) (*domain.FailureRedirect, error) {
	filter := bson.M{"productName": productName, "itemType": itemType, "reason": reason}
	var redirect domain.FailureRedirect
	err := r.redirects.FindOne(ctx, filter).Decode(&redirect)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &redirect, err
}

func (r *StageConfigRepository) HasRedirects(ctx context.Context, productName string, itemType domain.ItemType) (bool, error) {
	filter := bson.M{"productName": productName, "itemType": itemType}
	count, err := r.redirects.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return count > 0, err
}
