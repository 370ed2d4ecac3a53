package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationRole identifies which leg of a cross validation a submitter fills
type ReconciliationRole string

const (
	RolePrimary   ReconciliationRole = "primary"
	RoleSecondary ReconciliationRole = "secondary"
)

// CrossValidationStatus is the state machine of a reconciliation record.
// "expired" is reachable only from "pending"; once both legs are populated the
// record transitions exactly once into a terminal comparison state.
type CrossValidationStatus string

const (
	ValidationPending         CrossValidationStatus = "pending"
	ValidationMatchedOK       CrossValidationStatus = "matched_ok"
	ValidationMatchedMismatch CrossValidationStatus = "matched_mismatch"
	ValidationSiblingsLinked  CrossValidationStatus = "siblings_linked"
	ValidationExpired         CrossValidationStatus = "expired"
)

// MatchTolerance is the fixed absolute tolerance for value comparison (currency-safe)
var MatchTolerance = decimal.NewFromFloat(0.01)

// CrossValidation pairs two independently-submitted checklist entries that
// describe the same physical document.
type CrossValidation struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID        uuid.UUID  `gorm:"type:uuid;not null;index:idx_cv_store_doc" json:"store_id"`
	SectorID       *uuid.UUID `gorm:"type:uuid;index" json:"sector_id,omitempty"`
	DocumentNumber string     `gorm:"size:100;not null;index:idx_cv_store_doc" json:"document_number"`

	// Primary leg
	PrimaryChecklistID *uuid.UUID          `gorm:"type:uuid" json:"primary_checklist_id,omitempty"`
	PrimaryValue       decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"primary_value,omitempty"`

	// Secondary leg
	SecondaryChecklistID *uuid.UUID          `gorm:"type:uuid" json:"secondary_checklist_id,omitempty"`
	SecondaryValue       decimal.NullDecimal `gorm:"type:numeric(14,2)" json:"secondary_value,omitempty"`

	Difference decimal.NullDecimal   `gorm:"type:numeric(14,2)" json:"difference,omitempty"`
	Status     CrossValidationStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`

	// Sibling linkage (fuzzy match between two distinct document numbers)
	LinkedValidationID *uuid.UUID `gorm:"type:uuid" json:"linked_validation_id,omitempty"`
	MatchReason        string     `gorm:"type:text" json:"match_reason,omitempty"`
	// IsPrimary is set explicitly on every insert; a column default would
	// silently override a false value on create.
	IsPrimary bool `json:"is_primary"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
}

func (CrossValidation) TableName() string {
	return "cross_validations"
}

func (cv *CrossValidation) BeforeCreate(tx *gorm.DB) (err error) {
	if cv.ID == uuid.Nil {
		cv.ID = uuid.New()
	}
	return
}

// LegFilled reports whether the given role's leg is already populated
func (cv *CrossValidation) LegFilled(role ReconciliationRole) bool {
	if role == RoleSecondary {
		return cv.SecondaryChecklistID != nil
	}
	return cv.PrimaryChecklistID != nil
}

// FillLeg populates one role's leg. Each leg is populated by at most one role;
// callers must check LegFilled first.
func (cv *CrossValidation) FillLeg(role ReconciliationRole, checklistID uuid.UUID, value decimal.Decimal) {
	nd := decimal.NullDecimal{Decimal: value, Valid: true}
	if role == RoleSecondary {
		cv.SecondaryChecklistID = &checklistID
		cv.SecondaryValue = nd
	} else {
		cv.PrimaryChecklistID = &checklistID
		cv.PrimaryValue = nd
	}
}

// BothLegsFilled reports whether primary and secondary are both populated
func (cv *CrossValidation) BothLegsFilled() bool {
	return cv.PrimaryChecklistID != nil && cv.SecondaryChecklistID != nil
}

// ComputeDifference sets Difference = |primary - secondary|, treating a missing
// declared value as zero, and returns it.
func (cv *CrossValidation) ComputeDifference() decimal.Decimal {
	primary := decimal.Zero
	if cv.PrimaryValue.Valid {
		primary = cv.PrimaryValue.Decimal
	}
	secondary := decimal.Zero
	if cv.SecondaryValue.Valid {
		secondary = cv.SecondaryValue.Decimal
	}
	diff := primary.Sub(secondary).Abs()
	cv.Difference = decimal.NullDecimal{Decimal: diff, Valid: true}
	return diff
}

// WithinTolerance reports whether the difference is within the match tolerance
func (cv *CrossValidation) WithinTolerance() bool {
	if !cv.Difference.Valid {
		return false
	}
	return cv.Difference.Decimal.LessThanOrEqual(MatchTolerance)
}
