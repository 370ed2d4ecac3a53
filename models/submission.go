package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionStatus is the local queue state of a not-yet-confirmed submission.
// There is no "synced" status: a synced submission is deleted from the queue.
type SubmissionStatus string

const (
	SubmissionStatusPending SubmissionStatus = "pending"
	SubmissionStatusSyncing SubmissionStatus = "syncing"
	SubmissionStatusFailed  SubmissionStatus = "failed"
)

// ChecklistSubmission is a durable queue row for a checklist filled on a device,
// possibly while offline. Responses maps field id -> typed payload and section
// progress is tracked per section id.
type ChecklistSubmission struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID  `gorm:"type:uuid;not null;index" json:"template_id"`
	StoreID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"store_id"`
	SectorID   *uuid.UUID `gorm:"type:uuid" json:"sector_id,omitempty"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`

	Status    SubmissionStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	SyncError *string          `gorm:"type:text" json:"sync_error,omitempty"`

	// Responses: field id (string uuid) -> payload
	Responses JSONMap `gorm:"type:jsonb" json:"responses"`

	// SectionProgress: section id -> {"answered": n, "total": m}
	SectionProgress JSONMap `gorm:"type:jsonb" json:"section_progress,omitempty"`

	// CompletedAt is the device-captured completion time. Offline clients emit
	// loose timestamp formats, hence JSONTime rather than time.Time.
	CompletedAt *JSONTime `gorm:"type:timestamptz" json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChecklistSubmission) TableName() string {
	return "checklist_submissions"
}

func (s *ChecklistSubmission) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Responses == nil {
		s.Responses = JSONMap{}
	}
	return
}
