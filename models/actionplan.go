package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Severity is the non-conformity severity ladder
type Severity string

const (
	SeverityBaixa   Severity = "baixa"
	SeverityMedia   Severity = "media"
	SeverityAlta    Severity = "alta"
	SeverityCritica Severity = "critica"
)

var severityLadder = []Severity{SeverityBaixa, SeverityMedia, SeverityAlta, SeverityCritica}

// Escalate returns the severity one tier above, capped at critica
func (s Severity) Escalate() Severity {
	for i, sev := range severityLadder {
		if sev == s {
			if i+1 < len(severityLadder) {
				return severityLadder[i+1]
			}
			return s
		}
	}
	return s
}

// ActionPlanStatus is the remediation task lifecycle
type ActionPlanStatus string

const (
	ActionPlanOpen       ActionPlanStatus = "open"
	ActionPlanInProgress ActionPlanStatus = "in_progress"
	ActionPlanCompleted  ActionPlanStatus = "completed"
	ActionPlanOverdue    ActionPlanStatus = "overdue"
	ActionPlanCancelled  ActionPlanStatus = "cancelled"
)

// ActionPlan is a tracked remediation task created from a non-conforming
// checklist response. Reincidence fields are computed once at creation from a
// lookback over prior plans sharing (field, store, template).
type ActionPlan struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ChecklistID uuid.UUID  `gorm:"type:uuid;not null;index" json:"checklist_id"`
	FieldID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_ap_reincidence" json:"field_id"`
	ConditionID uuid.UUID  `gorm:"type:uuid;not null" json:"condition_id"`
	TemplateID  uuid.UUID  `gorm:"type:uuid;not null;index:idx_ap_reincidence" json:"template_id"`
	StoreID     uuid.UUID  `gorm:"type:uuid;not null;index:idx_ap_reincidence" json:"store_id"`
	SectorID    *uuid.UUID `gorm:"type:uuid" json:"sector_id,omitempty"`

	Title    string           `gorm:"size:500;not null" json:"title"`
	Severity Severity         `gorm:"size:20;not null" json:"severity"`
	Status   ActionPlanStatus `gorm:"size:20;not null;default:'open';index" json:"status"`

	AssignedTo uuid.UUID  `gorm:"type:uuid;not null;index" json:"assigned_to"`
	AssignedBy *uuid.UUID `gorm:"type:uuid" json:"assigned_by,omitempty"`
	CreatedBy  uuid.UUID  `gorm:"type:uuid;not null" json:"created_by"`
	Deadline   time.Time  `gorm:"not null;index" json:"deadline"`

	IsReincidencia     bool       `gorm:"default:false" json:"is_reincidencia"`
	ReincidenciaCount  int        `gorm:"default:0" json:"reincidencia_count"`
	ParentActionPlanID *uuid.UUID `gorm:"type:uuid" json:"parent_action_plan_id,omitempty"`

	// NonConformityValue is the stringified offending response value
	NonConformityValue string `gorm:"type:text" json:"non_conformity_value,omitempty"`

	// Completion evidence, validated against the condition's requirements
	ResolutionText   string      `gorm:"type:text" json:"resolution_text,omitempty"`
	ResolutionPhotos StringArray `gorm:"type:jsonb" json:"resolution_photos,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Condition *FieldCondition `gorm:"foreignKey:ConditionID" json:"condition,omitempty"`
	Field     *TemplateField  `gorm:"foreignKey:FieldID" json:"field,omitempty"`
}

func (ActionPlan) TableName() string {
	return "action_plans"
}

func (a *ActionPlan) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return
}

// IsOpen reports whether the plan still counts against its deadline
func (a *ActionPlan) IsOpen() bool {
	return a.Status == ActionPlanOpen || a.Status == ActionPlanInProgress
}
