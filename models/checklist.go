package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ChecklistStatus is the lifecycle state of a server-confirmed checklist
type ChecklistStatus string

const (
	ChecklistStatusInProgress ChecklistStatus = "in_progress"
	ChecklistStatusCompleted  ChecklistStatus = "completed"
)

// Checklist is a server-confirmed checklist instance created at finalize time
type Checklist struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID       `gorm:"type:uuid;not null;index" json:"template_id"`
	StoreID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"store_id"`
	SectorID   *uuid.UUID      `gorm:"type:uuid;index" json:"sector_id,omitempty"`
	UserID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Status     ChecklistStatus `gorm:"size:20;not null;default:'in_progress';index" json:"status"`

	// LocalSubmissionID is the idempotency key: the device-side submission id that
	// produced this checklist. Re-draining the same submission reuses this row
	// instead of creating a duplicate.
	LocalSubmissionID *uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"local_submission_id,omitempty"`

	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Template  *ChecklistTemplate  `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Store     *Store              `gorm:"foreignKey:StoreID" json:"store,omitempty"`
	Responses []ChecklistResponse `gorm:"foreignKey:ChecklistID" json:"responses,omitempty"`
}

func (Checklist) TableName() string {
	return "checklists"
}

func (c *Checklist) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}

// ChecklistResponse is one field's answer inside a checklist. Value carries the
// typed payload whose shape depends on the field's semantic type.
type ChecklistResponse struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ChecklistID uuid.UUID      `gorm:"type:uuid;not null;index" json:"checklist_id"`
	FieldID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"field_id"`
	Value       datatypes.JSON `gorm:"type:jsonb" json:"value"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Field *TemplateField `gorm:"foreignKey:FieldID" json:"field,omitempty"`
}

func (ChecklistResponse) TableName() string {
	return "checklist_responses"
}

func (r *ChecklistResponse) BeforeCreate(tx *gorm.DB) (err error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return
}

// Payload decodes the response value into a generic map; scalar payloads are
// wrapped under "value".
func (r *ChecklistResponse) Payload() JSONMap {
	if len(r.Value) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(r.Value, &m); err == nil {
		return JSONMap(m)
	}
	var scalar interface{}
	if err := json.Unmarshal(r.Value, &scalar); err == nil {
		return JSONMap{"value": scalar}
	}
	return nil
}
