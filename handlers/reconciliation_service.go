package handlers

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/config"
	"github.com/varejoops/checkops/models"
	"github.com/varejoops/checkops/utils"
)

const (
	// siblingWindow bounds how far back the fuzzy "sibling" search looks
	siblingWindow = 30 * time.Minute
	// siblingCloseWindow links any two pending entries regardless of prefix
	siblingCloseWindow = 10 * time.Minute
	// siblingPrefixLen is the number of leading digits compared for prefix matches
	siblingPrefixLen = 3
)

// ReconciliationService pairs two independently-submitted checklist entries
// that reference the same physical document and compares their declared values.
type ReconciliationService struct {
	db     *gorm.DB
	outbox *OutboxService
}

func NewReconciliationService(db *gorm.DB, outbox *OutboxService) *ReconciliationService {
	return &ReconciliationService{db: db, outbox: outbox}
}

// ProcessChecklist runs one reconciliation pass for a completed checklist.
// Missing document number or submitter function is an intentional no-op, never
// an error. The expiry sweep runs after every call, even skipped ones.
func (s *ReconciliationService) ProcessChecklist(checklist *models.Checklist, responses []models.ChecklistResponse, fields []models.TemplateField) error {
	defer s.ExpireStale()

	docNumber, value, ok := s.resolveDocument(responses, fields)
	if !ok {
		log.Printf("📋 Checklist %s has no document number, skipping reconciliation", checklist.ID)
		return nil
	}

	role, sectorID, ok, err := s.resolveSubmitter(checklist)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("📋 Submitter of checklist %s has no function assigned, excluded from reconciliation", checklist.ID)
		return nil
	}

	existing, err := s.findPendingExact(checklist.StoreID, sectorID, docNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.fillLeg(existing, checklist, role, value)
	}

	return s.linkSiblingOrInsert(checklist, role, sectorID, docNumber, value)
}

// resolveDocument locates the document-number and declared-value responses via
// the explicit capability tags, falling back to field-name keywords.
func (s *ReconciliationService) resolveDocument(responses []models.ChecklistResponse, fields []models.TemplateField) (string, decimal.Decimal, bool) {
	byField := make(map[uuid.UUID]*models.ChecklistResponse, len(responses))
	for i := range responses {
		byField[responses[i].FieldID] = &responses[i]
	}

	docNumber := ""
	for i := range fields {
		if !fields[i].MatchesDocumentNumber() {
			continue
		}
		if resp, ok := byField[fields[i].ID]; ok {
			docNumber = strings.TrimSpace(utils.AnswerString(resp.Payload()))
		}
		break
	}
	if docNumber == "" {
		return "", decimal.Zero, false
	}

	value := decimal.Zero
	for i := range fields {
		if !fields[i].MatchesDocumentValue() {
			continue
		}
		if resp, ok := byField[fields[i].ID]; ok {
			if v, ok := utils.NumericValue(resp.Payload()); ok {
				value = v
			}
		}
		break
	}

	return docNumber, value, true
}

// resolveSubmitter derives the reconciliation role from the user's function
// attribute and resolves the sector for this store. Users without a function
// are excluded (ok=false).
func (s *ReconciliationService) resolveSubmitter(checklist *models.Checklist) (models.ReconciliationRole, *uuid.UUID, bool, error) {
	var user models.User
	if err := s.db.Preload("StoreSectors").First(&user, "id = ?", checklist.UserID).Error; err != nil {
		return "", nil, false, fmt.Errorf("loading submitter %s: %w", checklist.UserID, err)
	}
	if !user.HasFunction() {
		return "", nil, false, nil
	}

	marker := config.Setting(s.db, config.SettingSecondaryRoleKeyword, config.DefaultSecondaryRoleKeyword)
	role := models.RolePrimary
	if marker != "" && strings.Contains(strings.ToLower(*user.Funcao), strings.ToLower(marker)) {
		role = models.RoleSecondary
	}

	sectorID := checklist.SectorID
	if sectorID == nil {
		sectorID = user.SectorForStore(checklist.StoreID)
	}
	return role, sectorID, true, nil
}

// findPendingExact looks up a pending record for (store, document number):
// sector-scoped first, then store-scoped ignoring sector.
func (s *ReconciliationService) findPendingExact(storeID uuid.UUID, sectorID *uuid.UUID, docNumber string) (*models.CrossValidation, error) {
	var cv models.CrossValidation

	if sectorID != nil {
		err := s.db.Where("store_id = ? AND document_number = ? AND status = ? AND sector_id = ?",
			storeID, docNumber, models.ValidationPending, *sectorID).
			Order("created_at ASC").First(&cv).Error
		if err == nil {
			return &cv, nil
		}
		if err != gorm.ErrRecordNotFound {
			return nil, err
		}
	}

	err := s.db.Where("store_id = ? AND document_number = ? AND status = ?",
		storeID, docNumber, models.ValidationPending).
		Order("created_at ASC").First(&cv).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cv, nil
}

// fillLeg completes one leg of an existing pending record. A second submission
// for an already-filled leg is a duplicate and a no-op. When both legs are
// populated the record transitions exactly once into its terminal state.
func (s *ReconciliationService) fillLeg(cv *models.CrossValidation, checklist *models.Checklist, role models.ReconciliationRole, value decimal.Decimal) error {
	if cv.LegFilled(role) {
		log.Printf("⚠️  Duplicate %s submission for document %s at store %s, ignoring", role, cv.DocumentNumber, cv.StoreID)
		return nil
	}

	cv.FillLeg(role, checklist.ID, value)
	if !cv.BothLegsFilled() {
		return s.db.Save(cv).Error
	}

	diff := cv.ComputeDifference()
	now := time.Now()
	cv.ValidatedAt = &now
	if cv.WithinTolerance() {
		cv.Status = models.ValidationMatchedOK
	} else {
		cv.Status = models.ValidationMatchedMismatch
	}
	if err := s.db.Save(cv).Error; err != nil {
		return err
	}

	log.Printf("✅ Document %s reconciled at store %s: %s (difference %s)", cv.DocumentNumber, cv.StoreID, cv.Status, diff)

	if cv.Status == models.ValidationMatchedMismatch {
		s.outbox.Publish(models.EventValidationMismatch, map[string]interface{}{
			"validation_id":   cv.ID.String(),
			"store_id":        cv.StoreID.String(),
			"document_number": cv.DocumentNumber,
			"difference":      diff.StringFixed(2),
		})
	}
	return nil
}

// linkSiblingOrInsert searches pending records of the same store created within
// the sibling window whose matching leg is still empty. Candidates are visited
// newest first so the smallest time gap wins when several qualify. Without a
// candidate a fresh pending record is inserted.
func (s *ReconciliationService) linkSiblingOrInsert(checklist *models.Checklist, role models.ReconciliationRole, sectorID *uuid.UUID, docNumber string, value decimal.Decimal) error {
	now := time.Now()
	cutoff := now.Add(-siblingWindow)

	var candidates []models.CrossValidation
	if err := s.db.Where("store_id = ? AND status = ? AND created_at >= ?",
		checklist.StoreID, models.ValidationPending, cutoff).
		Order("created_at DESC").Find(&candidates).Error; err != nil {
		return err
	}

	myPrefix := utils.NumericPrefix(docNumber, siblingPrefixLen)
	for i := range candidates {
		cand := &candidates[i]
		if cand.LegFilled(role) {
			continue
		}

		gap := now.Sub(cand.CreatedAt)
		reason := ""
		switch {
		case myPrefix != "" && myPrefix == utils.NumericPrefix(cand.DocumentNumber, siblingPrefixLen):
			reason = fmt.Sprintf("document numbers %q and %q share numeric prefix %s, submitted %s apart",
				cand.DocumentNumber, docNumber, myPrefix, gap.Round(time.Minute))
		case gap <= siblingCloseWindow:
			reason = fmt.Sprintf("document numbers %q and %q differ but were submitted only %s apart",
				cand.DocumentNumber, docNumber, gap.Round(time.Minute))
		default:
			continue
		}

		return s.linkSiblings(cand, checklist, role, sectorID, docNumber, value, reason)
	}

	cv := models.CrossValidation{
		StoreID:        checklist.StoreID,
		SectorID:       sectorID,
		DocumentNumber: docNumber,
		Status:         models.ValidationPending,
		IsPrimary:      true,
	}
	cv.FillLeg(role, checklist.ID, value)
	if err := s.db.Create(&cv).Error; err != nil {
		return err
	}
	log.Printf("📋 Opened pending validation for document %s at store %s (%s leg)", docNumber, checklist.StoreID, role)
	return nil
}

// linkSiblings completes the fuzzy pairing: the existing record receives this
// role's leg and a new secondary record is created for this submission, both
// marked siblings_linked and linked bidirectionally. siblings_linked is used
// even when the values agree — the differing numbers themselves need review.
func (s *ReconciliationService) linkSiblings(cand *models.CrossValidation, checklist *models.Checklist, role models.ReconciliationRole, sectorID *uuid.UUID, docNumber string, value decimal.Decimal, reason string) error {
	now := time.Now()

	cand.FillLeg(role, checklist.ID, value)
	diff := cand.ComputeDifference()
	cand.Status = models.ValidationSiblingsLinked
	cand.MatchReason = reason
	cand.ValidatedAt = &now

	sibling := models.CrossValidation{
		StoreID:            checklist.StoreID,
		SectorID:           sectorID,
		DocumentNumber:     docNumber,
		Status:             models.ValidationSiblingsLinked,
		MatchReason:        reason,
		IsPrimary:          false,
		LinkedValidationID: &cand.ID,
		ValidatedAt:        &now,
	}
	sibling.FillLeg(role, checklist.ID, value)
	sibling.Difference = cand.Difference

	if err := s.db.Create(&sibling).Error; err != nil {
		return err
	}
	cand.LinkedValidationID = &sibling.ID
	if err := s.db.Save(cand).Error; err != nil {
		return err
	}

	log.Printf("✅ Linked sibling documents %q and %q at store %s: %s", cand.DocumentNumber, docNumber, checklist.StoreID, reason)

	s.outbox.Publish(models.EventSiblingsLinked, map[string]interface{}{
		"validation_id":        cand.ID.String(),
		"linked_validation_id": sibling.ID.String(),
		"store_id":             checklist.StoreID.String(),
		"document_number":      cand.DocumentNumber,
		"sibling_document":     docNumber,
		"match_reason":         reason,
		"difference":           diff.StringFixed(2),
	})
	return nil
}

// ExpireStale transitions every pending record older than the configured TTL
// to expired, one notification per record. Runs as a side-effect of each
// reconciliation call; errors are logged, never propagated.
func (s *ReconciliationService) ExpireStale() {
	ttl := config.SettingInt(s.db, config.SettingValidationTTLMinutes, config.DefaultValidationTTLMinutes)
	cutoff := time.Now().Add(-time.Duration(ttl) * time.Minute)

	var stale []models.CrossValidation
	if err := s.db.Where("status = ? AND created_at < ?", models.ValidationPending, cutoff).Find(&stale).Error; err != nil {
		log.Printf("❌ Expiry sweep query failed: %v", err)
		return
	}

	for i := range stale {
		cv := &stale[i]
		if err := s.db.Model(cv).Update("status", models.ValidationExpired).Error; err != nil {
			log.Printf("❌ Failed to expire validation %s: %v", cv.ID, err)
			continue
		}
		log.Printf("⚠️  Validation for document %s at store %s expired after %d minutes", cv.DocumentNumber, cv.StoreID, ttl)
		s.outbox.Publish(models.EventValidationExpired, map[string]interface{}{
			"validation_id":   cv.ID.String(),
			"store_id":        cv.StoreID.String(),
			"document_number": cv.DocumentNumber,
			"ttl_minutes":     ttl,
		})
	}
}
