package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/civic-report-api/internal/models"
)

const defaultActivityLimit = 50

// ActivityRepository stores the report timeline in MongoDB.
// A nil collection disables the store: writes are dropped and reads return nothing.
type ActivityRepository struct {
	col *mongo.Collection
}

// NewActivityRepository constructs the repository over the given collection.
func NewActivityRepository(col *mongo.Collection) *ActivityRepository {
	return &ActivityRepository{col: col}
}

// Enabled reports whether a backing collection is configured.
func (r *ActivityRepository) Enabled() bool {
	return r != nil && r.col != nil
}

// Append inserts one timeline event.
func (r *ActivityRepository) Append(ctx context.Context, activity *models.ReportActivity) error {
	if !r.Enabled() {
		return nil
	}
	if activity.ID.IsZero() {
		activity.ID = primitive.NewObjectID()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	if _, err := r.col.InsertOne(ctx, activity); err != nil {
		return fmt.Errorf("append report activity: %w", err)
	}
	return nil
}

// ListByReport returns the newest events of a report first.
func (r *ActivityRepository) ListByReport(ctx context.Context, reportID string, limit int) ([]models.ReportActivity, error) {
	activities := make([]models.ReportActivity, 0)
	if !r.Enabled() {
		return activities, nil
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.col.Find(ctx, bson.M{"reportId": reportID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find report activity: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck
	if err := cursor.All(ctx, &activities); err != nil {
		return nil, fmt.Errorf("decode report activity: %w", err)
	}
	return activities, nil
}
