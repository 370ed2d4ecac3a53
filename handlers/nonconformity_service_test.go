package handlers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
)

func createField(t *testing.T, db *gorm.DB, templateID uuid.UUID, name string, fieldType models.FieldType) models.TemplateField {
	t.Helper()
	field := models.TemplateField{
		TemplateID: templateID,
		Name:       name,
		FieldType:  fieldType,
	}
	require.NoError(t, db.Create(&field).Error)
	return field
}

func createCondition(t *testing.T, db *gorm.DB, fieldID uuid.UUID, condType models.ConditionType, value models.JSONMap, severity models.Severity) models.FieldCondition {
	t.Helper()
	cond := models.FieldCondition{
		FieldID:        fieldID,
		ConditionType:  condType,
		ConditionValue: value,
		Severity:       severity,
		DeadlineDays:   3,
		IsActive:       true,
	}
	require.NoError(t, db.Create(&cond).Error)
	return cond
}

// evaluateSingle runs the evaluator for one field/payload pair
func evaluateSingle(t *testing.T, db *gorm.DB, svc *NonConformityService, user models.User, store models.Store, template models.ChecklistTemplate, field models.TemplateField, payload interface{}) *models.Checklist {
	t.Helper()
	checklist := createCompletedChecklist(t, db, user, store, template)
	responses := []models.ChecklistResponse{makeResponse(t, checklist.ID, field.ID, payload)}
	require.NoError(t, svc.EvaluateChecklist(checklist, responses, []models.TemplateField{field}))
	return checklist
}

func planCount(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.ActionPlan{}).Count(&n).Error)
	return n
}

func TestNonConformityYesNoCondition(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)
	field := createField(t, db, template.ID, "Carga conferida?", models.FieldTypeYesNo)
	createCondition(t, db, field.ID, models.ConditionEquals, models.JSONMap{"value": "nao"}, models.SeverityMedia)

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "sim"})
	assert.Equal(t, int64(0), planCount(t, db))

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "nao"})
	assert.Equal(t, int64(1), planCount(t, db))

	var plan models.ActionPlan
	require.NoError(t, db.First(&plan).Error)
	assert.Equal(t, models.SeverityMedia, plan.Severity)
	assert.Equal(t, models.ActionPlanOpen, plan.Status)
	assert.Equal(t, "nao", plan.NonConformityValue)
	assert.Equal(t, user.ID, plan.AssignedTo)
	assert.False(t, plan.IsReincidencia)
	assert.Equal(t, int64(1), countEvents(t, db, models.EventActionPlanCreated))
}

func TestNonConformityNumericConditions(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	t.Run("less_than flags below threshold", func(t *testing.T) {
		field := createField(t, db, template.ID, "Temperatura da camara", models.FieldTypeDecimal)
		createCondition(t, db, field.ID, models.ConditionLessThan, models.JSONMap{"min": 2.0}, models.SeverityAlta)

		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": 1.5})

		var plan models.ActionPlan
		require.NoError(t, db.First(&plan, "field_id = ?", field.ID).Error)
		assert.Equal(t, "1.5", plan.NonConformityValue)
	})

	t.Run("less_than passes at threshold", func(t *testing.T) {
		field := createField(t, db, template.ID, "Temperatura do freezer", models.FieldTypeDecimal)
		createCondition(t, db, field.ID, models.ConditionLessThan, models.JSONMap{"min": 2.0}, models.SeverityAlta)

		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": 2.0})

		var n int64
		db.Model(&models.ActionPlan{}).Where("field_id = ?", field.ID).Count(&n)
		assert.Equal(t, int64(0), n)
	})

	t.Run("greater_than flags above threshold", func(t *testing.T) {
		field := createField(t, db, template.ID, "Itens vencidos", models.FieldTypeQuantity)
		createCondition(t, db, field.ID, models.ConditionGreaterThan, models.JSONMap{"max": 0}, models.SeverityCritica)

		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": 3})

		var plan models.ActionPlan
		require.NoError(t, db.First(&plan, "field_id = ?", field.ID).Error)
		assert.Equal(t, models.SeverityCritica, plan.Severity)
	})

	t.Run("between flags inside the range", func(t *testing.T) {
		field := createField(t, db, template.ID, "Percentual de perdas", models.FieldTypePercentage)
		createCondition(t, db, field.ID, models.ConditionBetween, models.JSONMap{"min": 5.0, "max": 10.0}, models.SeverityMedia)

		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": 7.5})
		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": 12.0})

		var n int64
		db.Model(&models.ActionPlan{}).Where("field_id = ?", field.ID).Count(&n)
		assert.Equal(t, int64(1), n)
	})

	t.Run("rating treated as numeric", func(t *testing.T) {
		field := createField(t, db, template.ID, "Nota da limpeza", models.FieldTypeRating)
		createCondition(t, db, field.ID, models.ConditionLessThan, models.JSONMap{"min": 3}, models.SeverityBaixa)

		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": 2})

		var n int64
		db.Model(&models.ActionPlan{}).Where("field_id = ?", field.ID).Count(&n)
		assert.Equal(t, int64(1), n)
	})
}

func TestNonConformityDropdownConditions(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "Estado da mercadoria", models.FieldTypeDropdown)
	createCondition(t, db, field.ID, models.ConditionInList,
		models.JSONMap{"options": []interface{}{"Avariado", "Vencido"}}, models.SeverityAlta)

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "Integro"})
	assert.Equal(t, int64(0), planCount(t, db))

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "Avariado"})
	assert.Equal(t, int64(1), planCount(t, db))
}

func TestNonConformityCheckboxOptionSets(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "EPIs em uso", models.FieldTypeCheckboxMultiple)
	createCondition(t, db, field.ID, models.ConditionOptionSets,
		models.JSONMap{"required": []interface{}{"Luvas", "Touca"}}, models.SeverityMedia)

	evaluateSingle(t, db, svc, user, store, template, field,
		map[string]interface{}{"selected": []interface{}{"Luvas", "Touca"}})
	assert.Equal(t, int64(0), planCount(t, db))

	evaluateSingle(t, db, svc, user, store, template, field,
		map[string]interface{}{"selected": []interface{}{"Luvas"}})
	assert.Equal(t, int64(1), planCount(t, db))

	var plan models.ActionPlan
	require.NoError(t, db.First(&plan).Error)
	assert.Contains(t, plan.NonConformityValue, "Touca")
}

func TestNonConformityTextConditions(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "Responsavel pela conferencia", models.FieldTypeText)
	createCondition(t, db, field.ID, models.ConditionEmpty, nil, models.SeverityBaixa)

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "Maria"})
	assert.Equal(t, int64(0), planCount(t, db))

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "  "})
	assert.Equal(t, int64(1), planCount(t, db))

	// not_equals only judges answered fields; blanks belong to the empty rule
	other := createField(t, db, template.ID, "Transportadora", models.FieldTypeText)
	createCondition(t, db, other.ID, models.ConditionNotEquals, models.JSONMap{"value": "Transportes ACME"}, models.SeverityBaixa)

	evaluateSingle(t, db, svc, user, store, template, other, map[string]interface{}{"value": ""})
	assert.Equal(t, int64(1), planCount(t, db))

	evaluateSingle(t, db, svc, user, store, template, other, map[string]interface{}{"value": "Outra Transportadora"})
	assert.Equal(t, int64(2), planCount(t, db))
}

func TestNonConformityInactiveConditionSkipped(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "Carga conferida?", models.FieldTypeYesNo)
	cond := createCondition(t, db, field.ID, models.ConditionEquals, models.JSONMap{"value": "nao"}, models.SeverityMedia)
	require.NoError(t, db.Model(&cond).Update("is_active", false).Error)

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "nao"})
	assert.Equal(t, int64(0), planCount(t, db))
}

func TestNonConformityReincidenceEscalation(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "Carga conferida?", models.FieldTypeYesNo)
	createCondition(t, db, field.ID, models.ConditionEquals, models.JSONMap{"value": "nao"}, models.SeverityMedia)

	for i := 0; i < 3; i++ {
		evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "nao"})
	}

	var plans []models.ActionPlan
	require.NoError(t, db.Order("created_at ASC").Find(&plans).Error)
	require.Len(t, plans, 3)

	assert.False(t, plans[0].IsReincidencia)
	assert.Equal(t, 0, plans[0].ReincidenciaCount)
	assert.Equal(t, models.SeverityMedia, plans[0].Severity)
	assert.Nil(t, plans[0].ParentActionPlanID)

	assert.True(t, plans[1].IsReincidencia)
	assert.Equal(t, 1, plans[1].ReincidenciaCount)
	assert.Equal(t, models.SeverityMedia, plans[1].Severity)
	require.NotNil(t, plans[1].ParentActionPlanID)
	assert.Equal(t, plans[0].ID, *plans[1].ParentActionPlanID)

	// The third occurrence escalates one severity tier
	assert.True(t, plans[2].IsReincidencia)
	assert.Equal(t, 2, plans[2].ReincidenciaCount)
	assert.Equal(t, models.SeverityAlta, plans[2].Severity)
	require.NotNil(t, plans[2].ParentActionPlanID)
	assert.Equal(t, plans[1].ID, *plans[2].ParentActionPlanID)
}

func TestNonConformityReincidenceScopedToStore(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	storeA := createTestStore(t, db)
	storeB := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "Carga conferida?", models.FieldTypeYesNo)
	createCondition(t, db, field.ID, models.ConditionEquals, models.JSONMap{"value": "nao"}, models.SeverityMedia)

	evaluateSingle(t, db, svc, user, storeA, template, field, map[string]interface{}{"value": "nao"})
	evaluateSingle(t, db, svc, user, storeB, template, field, map[string]interface{}{"value": "nao"})

	var plans []models.ActionPlan
	require.NoError(t, db.Find(&plans).Error)
	require.Len(t, plans, 2)
	assert.False(t, plans[0].IsReincidencia)
	assert.False(t, plans[1].IsReincidencia)
}

func TestNonConformityAssigneeAndTemplate(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	submitter := createTestUser(t, db, "Ana", "gerente", false)
	supervisor := createTestUser(t, db, "Paulo", "supervisor", false)

	field := createField(t, db, template.ID, "Carga conferida?", models.FieldTypeYesNo)
	cond := createCondition(t, db, field.ID, models.ConditionEquals, models.JSONMap{"value": "nao"}, models.SeverityMedia)
	require.NoError(t, db.Model(&cond).Updates(map[string]interface{}{
		"default_assignee_id":  supervisor.ID,
		"deadline_days":        5,
		"description_template": "Falha em {field_name} na loja {store_name}: {value}",
	}).Error)

	evaluateSingle(t, db, svc, submitter, store, template, field, map[string]interface{}{"value": "nao"})

	var plan models.ActionPlan
	require.NoError(t, db.First(&plan).Error)
	assert.Equal(t, supervisor.ID, plan.AssignedTo)
	assert.Equal(t, "Falha em Carga conferida? na loja Loja Centro: nao", plan.Title)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 5), plan.Deadline, time.Minute)
}

func TestMarkOverduePlans(t *testing.T) {
	db, _, _, svc := newTestServices(t)
	store := createTestStore(t, db)
	template, _, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	field := createField(t, db, template.ID, "Carga conferida?", models.FieldTypeYesNo)
	createCondition(t, db, field.ID, models.ConditionEquals, models.JSONMap{"value": "nao"}, models.SeverityMedia)

	evaluateSingle(t, db, svc, user, store, template, field, map[string]interface{}{"value": "nao"})

	require.NoError(t, db.Model(&models.ActionPlan{}).
		Where("1 = 1").Update("deadline", time.Now().Add(-24*time.Hour)).Error)

	flipped, err := svc.MarkOverduePlans()
	require.NoError(t, err)
	assert.Equal(t, 1, flipped)

	var plan models.ActionPlan
	require.NoError(t, db.First(&plan).Error)
	assert.Equal(t, models.ActionPlanOverdue, plan.Status)
	assert.Equal(t, int64(1), countEvents(t, db, models.EventActionPlanOverdue))

	// An already-overdue plan is not flipped twice
	flipped, err = svc.MarkOverduePlans()
	require.NoError(t, err)
	assert.Equal(t, 0, flipped)
}
