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

// NonConformityService evaluates checklist responses against design-time field
// conditions and turns violations into tracked action plans.
type NonConformityService struct {
	db     *gorm.DB
	outbox *OutboxService
}

func NewNonConformityService(db *gorm.DB, outbox *OutboxService) *NonConformityService {
	return &NonConformityService{db: db, outbox: outbox}
}

// evaluationContext is loaded once per checklist to bound the query count
type evaluationContext struct {
	StoreName     string
	TemplateName  string
	SectorName    string
	SubmitterName string
	SubmittedAt   time.Time
}

// EvaluateChecklist runs the rule pass for a completed checklist. Evaluation is
// best-effort, not atomic: one condition's failure is logged and the remaining
// conditions still run.
func (s *NonConformityService) EvaluateChecklist(checklist *models.Checklist, responses []models.ChecklistResponse, fields []models.TemplateField) error {
	fieldIDs := make([]uuid.UUID, len(fields))
	fieldByID := make(map[uuid.UUID]*models.TemplateField, len(fields))
	for i := range fields {
		fieldIDs[i] = fields[i].ID
		fieldByID[fields[i].ID] = &fields[i]
	}

	var conditions []models.FieldCondition
	if err := s.db.Where("field_id IN ? AND is_active = ?", fieldIDs, true).Find(&conditions).Error; err != nil {
		return fmt.Errorf("loading field conditions: %w", err)
	}
	if len(conditions) == 0 {
		return nil
	}

	evalCtx := s.loadContext(checklist)

	respByField := make(map[uuid.UUID]*models.ChecklistResponse, len(responses))
	for i := range responses {
		respByField[responses[i].FieldID] = &responses[i]
	}

	for i := range conditions {
		cond := &conditions[i]
		field, ok := fieldByID[cond.FieldID]
		if !ok {
			continue
		}
		resp, ok := respByField[cond.FieldID]
		if !ok {
			continue
		}

		nonConforming, offending := evaluateCondition(cond, field, resp.Payload())
		if !nonConforming {
			continue
		}

		if err := s.createActionPlan(checklist, cond, field, resp, offending, evalCtx); err != nil {
			log.Printf("❌ Failed to create action plan for condition %s on field %s: %v", cond.ID, field.Name, err)
			continue
		}
	}
	return nil
}

func (s *NonConformityService) loadContext(checklist *models.Checklist) evaluationContext {
	evalCtx := evaluationContext{SubmittedAt: time.Now()}
	if checklist.CompletedAt != nil {
		evalCtx.SubmittedAt = *checklist.CompletedAt
	}

	var store models.Store
	if err := s.db.Select("name").First(&store, "id = ?", checklist.StoreID).Error; err == nil {
		evalCtx.StoreName = store.Name
	}
	var template models.ChecklistTemplate
	if err := s.db.Select("name").First(&template, "id = ?", checklist.TemplateID).Error; err == nil {
		evalCtx.TemplateName = template.Name
	}
	if checklist.SectorID != nil {
		var sector models.Sector
		if err := s.db.Select("name").First(&sector, "id = ?", *checklist.SectorID).Error; err == nil {
			evalCtx.SectorName = sector.Name
		}
	}
	var user models.User
	if err := s.db.Select("name").First(&user, "id = ?", checklist.UserID).Error; err == nil {
		evalCtx.SubmitterName = user.Name
	}
	return evalCtx
}

// evaluateCondition applies the closed condition set for the field's semantic
// type. Returns whether the response is non-conforming plus the stringified
// offending value. Unparseable or missing payloads are skipped, never fatal.
func evaluateCondition(cond *models.FieldCondition, field *models.TemplateField, payload models.JSONMap) (bool, string) {
	switch {
	case field.FieldType == models.FieldTypeYesNo:
		answer := strings.TrimSpace(utils.AnswerString(payload))
		if answer == "" {
			return false, ""
		}
		configured := cond.ConditionValue.GetString("value")
		switch cond.ConditionType {
		case models.ConditionEquals:
			return strings.EqualFold(answer, configured), answer
		case models.ConditionNotEquals:
			return !strings.EqualFold(answer, configured), answer
		}

	case field.FieldType.IsNumeric(), field.FieldType == models.FieldTypeRating:
		value, ok := utils.NumericValue(payload)
		if !ok {
			return false, ""
		}
		offending := value.String()
		switch cond.ConditionType {
		case models.ConditionLessThan:
			if threshold, ok := conditionNumber(cond.ConditionValue, "min", "value"); ok {
				return value.LessThan(threshold), offending
			}
		case models.ConditionGreaterThan:
			if threshold, ok := conditionNumber(cond.ConditionValue, "max", "value"); ok {
				return value.GreaterThan(threshold), offending
			}
		case models.ConditionBetween:
			min, minOK := conditionNumber(cond.ConditionValue, "min")
			max, maxOK := conditionNumber(cond.ConditionValue, "max")
			if minOK && maxOK {
				return value.GreaterThanOrEqual(min) && value.LessThanOrEqual(max), offending
			}
		}

	case field.FieldType == models.FieldTypeDropdown:
		selected := utils.SelectedOptions(payload)
		options := conditionOptions(cond.ConditionValue, "options")
		switch cond.ConditionType {
		case models.ConditionInList:
			for _, sel := range selected {
				if containsFold(options, sel) {
					return true, sel
				}
			}
			return false, ""
		case models.ConditionNotInList:
			for _, sel := range selected {
				if !containsFold(options, sel) {
					return true, sel
				}
			}
			return false, ""
		case models.ConditionEmpty:
			return len(selected) == 0, ""
		}

	case field.FieldType == models.FieldTypeCheckboxMultiple:
		if cond.ConditionType != models.ConditionOptionSets {
			return false, ""
		}
		selected := utils.SelectedOptions(payload)
		for _, required := range conditionOptions(cond.ConditionValue, "required") {
			if !containsFold(selected, required) {
				return true, fmt.Sprintf("missing: %s", required)
			}
		}
		for _, forbidden := range conditionOptions(cond.ConditionValue, "forbidden") {
			if containsFold(selected, forbidden) {
				return true, fmt.Sprintf("present: %s", forbidden)
			}
		}
		return false, ""

	case field.FieldType == models.FieldTypeText:
		answer := strings.TrimSpace(utils.AnswerString(payload))
		configured := cond.ConditionValue.GetString("value")
		switch cond.ConditionType {
		case models.ConditionEmpty:
			return answer == "", answer
		case models.ConditionEquals:
			return strings.EqualFold(answer, configured), answer
		case models.ConditionNotEquals:
			// an unanswered field is the empty rule's business, not this one's
			return answer != "" && !strings.EqualFold(answer, configured), answer
		}
	}
	return false, ""
}

// conditionNumber reads the first present key from the condition value map as a
// decimal threshold.
func conditionNumber(value models.JSONMap, keys ...string) (decimal.Decimal, bool) {
	if value == nil {
		return decimal.Zero, false
	}
	for _, key := range keys {
		raw, ok := value[key]
		if !ok {
			continue
		}
		if d, ok := utils.DecimalFrom(raw); ok {
			return d, true
		}
	}
	return decimal.Zero, false
}

func conditionOptions(value models.JSONMap, key string) []string {
	if value == nil {
		return nil
	}
	raw, ok := value[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsFold(items []string, target string) bool {
	for _, item := range items {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

// createActionPlan persists the remediation task, computing reincidence once at
// creation from the lookback over prior plans sharing (field, store, template).
// The 3rd and later occurrences escalate severity exactly one tier, capped.
func (s *NonConformityService) createActionPlan(checklist *models.Checklist, cond *models.FieldCondition, field *models.TemplateField, resp *models.ChecklistResponse, offending string, evalCtx evaluationContext) error {
	lookbackDays := config.SettingInt(s.db, config.SettingLookbackDays, config.DefaultLookbackDays)
	since := time.Now().AddDate(0, 0, -lookbackDays)

	var priorCount int64
	if err := s.db.Model(&models.ActionPlan{}).
		Where("field_id = ? AND store_id = ? AND template_id = ? AND created_at >= ?",
			cond.FieldID, checklist.StoreID, checklist.TemplateID, since).
		Count(&priorCount).Error; err != nil {
		return fmt.Errorf("reincidence lookback: %w", err)
	}

	var parentID *uuid.UUID
	if priorCount > 0 {
		var parent models.ActionPlan
		if err := s.db.Where("field_id = ? AND store_id = ? AND template_id = ? AND created_at >= ?",
			cond.FieldID, checklist.StoreID, checklist.TemplateID, since).
			Order("created_at DESC").First(&parent).Error; err == nil {
			parentID = &parent.ID
		}
	}

	severity := cond.Severity
	if priorCount >= 2 {
		severity = severity.Escalate()
	}

	assignee := checklist.UserID
	if cond.DefaultAssigneeID != nil {
		assignee = *cond.DefaultAssigneeID
	}

	deadline := time.Now().AddDate(0, 0, cond.DeadlineDays)
	title := renderTitle(cond.DescriptionTemplate, field.Name, offending, evalCtx.StoreName)

	plan := models.ActionPlan{
		ChecklistID:        checklist.ID,
		FieldID:            cond.FieldID,
		ConditionID:        cond.ID,
		TemplateID:         checklist.TemplateID,
		StoreID:            checklist.StoreID,
		SectorID:           checklist.SectorID,
		Title:              title,
		Severity:           severity,
		Status:             models.ActionPlanOpen,
		AssignedTo:         assignee,
		CreatedBy:          checklist.UserID,
		Deadline:           deadline,
		IsReincidencia:     priorCount > 0,
		ReincidenciaCount:  int(priorCount),
		ParentActionPlanID: parentID,
		NonConformityValue: offending,
	}
	if err := s.db.Create(&plan).Error; err != nil {
		return err
	}

	log.Printf("✅ Action plan %s created for field %q at %s (severity %s, reincidence count %d)",
		plan.ID, field.Name, evalCtx.StoreName, severity, priorCount)

	s.outbox.Publish(models.EventActionPlanCreated, map[string]interface{}{
		"action_plan_id":     plan.ID.String(),
		"checklist_id":       checklist.ID.String(),
		"assignee_id":        assignee.String(),
		"title":              title,
		"severity":           string(severity),
		"store_id":           checklist.StoreID.String(),
		"store_name":         evalCtx.StoreName,
		"template_name":      evalCtx.TemplateName,
		"sector_name":        evalCtx.SectorName,
		"field_name":         field.Name,
		"value":              offending,
		"deadline":           deadline.Format("2006-01-02"),
		"submitter_name":     evalCtx.SubmitterName,
		"is_reincidencia":    priorCount > 0,
		"reincidencia_count": priorCount,
	})
	return nil
}

// renderTitle fills {field_name}, {value} and {store_name} in the condition's
// description template, or builds a generated default.
func renderTitle(template, fieldName, value, storeName string) string {
	if template == "" {
		return fmt.Sprintf("Non-conformity: %s (%s)", fieldName, storeName)
	}
	return strings.NewReplacer(
		"{field_name}", fieldName,
		"{value}", value,
		"{store_name}", storeName,
	).Replace(template)
}

// MarkOverduePlans flips open or in-progress plans past their deadline to
// overdue and notifies the assignee plus admins. Intended to run from a
// maintenance trigger, not the finalize path.
func (s *NonConformityService) MarkOverduePlans() (int, error) {
	var plans []models.ActionPlan
	if err := s.db.Where("status IN ? AND deadline < ?",
		[]models.ActionPlanStatus{models.ActionPlanOpen, models.ActionPlanInProgress}, time.Now()).
		Find(&plans).Error; err != nil {
		return 0, err
	}

	flipped := 0
	for i := range plans {
		plan := &plans[i]
		if err := s.db.Model(plan).Update("status", models.ActionPlanOverdue).Error; err != nil {
			log.Printf("❌ Failed to mark action plan %s overdue: %v", plan.ID, err)
			continue
		}
		flipped++
		s.outbox.Publish(models.EventActionPlanOverdue, map[string]interface{}{
			"action_plan_id": plan.ID.String(),
			"assignee_id":    plan.AssignedTo.String(),
			"title":          plan.Title,
			"severity":       string(plan.Severity),
			"store_id":       plan.StoreID.String(),
			"deadline":       plan.Deadline.Format("2006-01-02"),
		})
	}
	return flipped, nil
}
