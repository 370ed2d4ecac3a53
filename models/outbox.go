package models

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxStatus is the processing state of an outbound event
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Outbound event types published by the evaluators
const (
	EventValidationMismatch = "cross_validation.mismatch"
	EventSiblingsLinked     = "cross_validation.siblings_linked"
	EventValidationExpired  = "cross_validation.expired"
	EventActionPlanCreated  = "action_plan.created"
	EventActionPlanOverdue  = "action_plan.overdue"
)

// OutboxEvent is the explicit outbound event log. The evaluators publish here
// inside the finalize path; a background processor renders events into in-app,
// email and chat deliveries, so delivery failures never touch the primary path.
type OutboxEvent struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	EventType string         `gorm:"size:100;not null;index" json:"event_type"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null" json:"payload"`

	Status   OutboxStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Attempts int          `gorm:"default:0" json:"attempts"`

	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy *string    `gorm:"size:100" json:"locked_by,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	LastError   *string    `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
