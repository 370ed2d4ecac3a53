package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FieldType is the semantic type of a template field
type FieldType string

const (
	FieldTypeText             FieldType = "text"
	FieldTypeNumber           FieldType = "number"
	FieldTypeMonetary         FieldType = "monetary"
	FieldTypeQuantity         FieldType = "quantity"
	FieldTypeDecimal          FieldType = "decimal"
	FieldTypePercentage       FieldType = "percentage"
	FieldTypeYesNo            FieldType = "yes_no"
	FieldTypeRating           FieldType = "rating"
	FieldTypeDropdown         FieldType = "dropdown"
	FieldTypeCheckboxMultiple FieldType = "checkbox_multiple"
	FieldTypeSignature        FieldType = "signature"
	FieldTypeGPS              FieldType = "gps"
	FieldTypePhoto            FieldType = "photo"
)

// IsNumeric reports whether responses for this type carry a numeric value
func (ft FieldType) IsNumeric() bool {
	switch ft {
	case FieldTypeNumber, FieldTypeMonetary, FieldTypeQuantity, FieldTypeDecimal, FieldTypePercentage:
		return true
	}
	return false
}

// FieldCapability tags a field with its role in document reconciliation.
// Keyword matching on the field name remains only as a legacy fallback.
type FieldCapability string

const (
	CapabilityNone           FieldCapability = "none"
	CapabilityDocumentNumber FieldCapability = "document_number"
	CapabilityDocumentValue  FieldCapability = "document_value"
)

// ChecklistTemplate is a design-time checklist definition (receiving, cleaning, ...)
type ChecklistTemplate struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code        string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Fields []TemplateField `gorm:"foreignKey:TemplateID" json:"fields,omitempty"`
}

func (ChecklistTemplate) TableName() string {
	return "checklist_templates"
}

func (t *ChecklistTemplate) BeforeCreate(tx *gorm.DB) (err error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return
}

// TemplateField is one question of a checklist template
type TemplateField struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TemplateID uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`
	SectionID  *string   `gorm:"size:100" json:"section_id,omitempty"`
	Name       string    `gorm:"size:200;not null" json:"name"`
	FieldType  FieldType `gorm:"size:30;not null" json:"field_type"`

	// Capability is the explicit reconciliation role of this field
	Capability FieldCapability `gorm:"size:30;default:'none'" json:"capability"`

	// Options for dropdown / checkbox_multiple fields
	Options StringArray `gorm:"type:jsonb" json:"options,omitempty"`

	Required     bool `gorm:"default:false" json:"required"`
	DisplayOrder int  `gorm:"default:0" json:"display_order"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Conditions []FieldCondition `gorm:"foreignKey:FieldID" json:"conditions,omitempty"`
}

func (TemplateField) TableName() string {
	return "template_fields"
}

func (f *TemplateField) BeforeCreate(tx *gorm.DB) (err error) {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return
}

var (
	documentNumberKeywords = []string{"document number", "doc number", "invoice", "nota fiscal", "numero da nota", "nf"}
	documentValueKeywords  = []string{"value", "valor", "total", "amount"}
)

// MatchesDocumentNumber reports whether this field holds the document number,
// preferring the explicit capability tag over legacy keyword matching.
func (f *TemplateField) MatchesDocumentNumber() bool {
	if f.Capability == CapabilityDocumentNumber {
		return true
	}
	if f.Capability != CapabilityNone && f.Capability != "" {
		return false
	}
	return matchesAnyKeyword(f.Name, documentNumberKeywords)
}

// MatchesDocumentValue reports whether this field holds the declared value
func (f *TemplateField) MatchesDocumentValue() bool {
	if f.Capability == CapabilityDocumentValue {
		return true
	}
	if f.Capability != CapabilityNone && f.Capability != "" {
		return false
	}
	return f.FieldType.IsNumeric() && matchesAnyKeyword(f.Name, documentValueKeywords)
}

func matchesAnyKeyword(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ConditionType is the closed set of non-conformity condition kinds
type ConditionType string

const (
	ConditionEquals      ConditionType = "equals"
	ConditionNotEquals   ConditionType = "not_equals"
	ConditionLessThan    ConditionType = "less_than"
	ConditionGreaterThan ConditionType = "greater_than"
	ConditionBetween     ConditionType = "between"
	ConditionInList      ConditionType = "in_list"
	ConditionNotInList   ConditionType = "not_in_list"
	ConditionEmpty       ConditionType = "empty"
	ConditionOptionSets  ConditionType = "option_sets"
)

// FieldCondition is a design-time rule that flags a non-conforming response.
// ConditionValue's shape depends on the field type: {"value": ...} for equality,
// {"min": .., "max": ..} for numeric bounds, {"options": [...]} for list membership,
// {"required": [...], "forbidden": [...]} for checkbox sets.
type FieldCondition struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	FieldID        uuid.UUID     `gorm:"type:uuid;not null;index" json:"field_id"`
	ConditionType  ConditionType `gorm:"size:30;not null" json:"condition_type"`
	ConditionValue JSONMap       `gorm:"type:jsonb" json:"condition_value"`

	Severity          Severity   `gorm:"size:20;not null;default:'baixa'" json:"severity"`
	DefaultAssigneeID *uuid.UUID `gorm:"type:uuid" json:"default_assignee_id,omitempty"`
	DeadlineDays      int        `gorm:"default:3" json:"deadline_days"`

	// DescriptionTemplate supports {field_name}, {value} and {store_name} placeholders
	DescriptionTemplate string `gorm:"type:text" json:"description_template,omitempty"`

	// Completion requirements enforced when the resulting action plan is closed
	RequirePhoto  bool `gorm:"default:false" json:"require_photo"`
	RequireText   bool `gorm:"default:false" json:"require_text"`
	MaxTextLength int  `gorm:"default:0" json:"max_text_length"`

	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Field *TemplateField `gorm:"foreignKey:FieldID" json:"field,omitempty"`
}

func (FieldCondition) TableName() string {
	return "field_conditions"
}

func (c *FieldCondition) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
