package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActivityAction names a report timeline event.
type ActivityAction string

const (
	ActivityCreated       ActivityAction = "created"
	ActivityUpdated       ActivityAction = "updated"
	ActivityStatusChanged ActivityAction = "status_changed"
	ActivityAssigned      ActivityAction = "assigned"
	ActivityDeleted       ActivityAction = "deleted"
)

// ReportActivity is one document of the report timeline collection.
type ReportActivity struct {
	ID         primitive.ObjectID     `bson:"_id,omitempty" json:"id"`
	ReportID   string                 `bson:"reportId" json:"reportId"`
	Action     ActivityAction         `bson:"action" json:"action"`
	ActorID    string                 `bson:"actorId" json:"actorId"`
	ActorRole  UserRole               `bson:"actorRole" json:"actorRole"`
	FromStatus ReportStatus           `bson:"fromStatus,omitempty" json:"fromStatus,omitempty"`
	ToStatus   ReportStatus           `bson:"toStatus,omitempty" json:"toStatus,omitempty"`
	Details    map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt  time.Time              `bson:"createdAt" json:"createdAt"`
}
