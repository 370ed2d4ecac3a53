package handlers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/varejoops/checkops/config"
	"github.com/varejoops/checkops/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateForTests(db))
	return db
}

func newTestServices(t *testing.T) (*gorm.DB, *SyncService, *ReconciliationService, *NonConformityService) {
	t.Helper()
	db := newTestDB(t)
	outbox := NewOutboxService(db)
	reconciliation := NewReconciliationService(db, outbox)
	nonConformity := NewNonConformityService(db, outbox)
	sync := NewSyncService(db, reconciliation, nonConformity)
	return db, sync, reconciliation, nonConformity
}

func createTestUser(t *testing.T, db *gorm.DB, name, funcao string, isAdmin bool) models.User {
	t.Helper()
	user := models.User{
		Name:         name,
		Email:        fmt.Sprintf("%s@test.local", uuid.NewString()[:8]),
		PasswordHash: "x",
		IsAdmin:      isAdmin,
		IsActive:     true,
	}
	if funcao != "" {
		user.Funcao = &funcao
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createTestStore(t *testing.T, db *gorm.DB) models.Store {
	t.Helper()
	store := models.Store{
		Code:     uuid.NewString()[:8],
		Name:     "Loja Centro",
		IsActive: true,
	}
	require.NoError(t, db.Create(&store).Error)
	return store
}

// createReceivingTemplate builds the canonical receiving template: a document
// number field and a declared value field, both tagged by capability.
func createReceivingTemplate(t *testing.T, db *gorm.DB) (models.ChecklistTemplate, models.TemplateField, models.TemplateField) {
	t.Helper()
	template := models.ChecklistTemplate{
		Code:     uuid.NewString()[:8],
		Name:     "Recebimento de Mercadoria",
		IsActive: true,
	}
	require.NoError(t, db.Create(&template).Error)

	docField := models.TemplateField{
		TemplateID: template.ID,
		Name:       "Numero da Nota Fiscal",
		FieldType:  models.FieldTypeText,
		Capability: models.CapabilityDocumentNumber,
	}
	require.NoError(t, db.Create(&docField).Error)

	valueField := models.TemplateField{
		TemplateID: template.ID,
		Name:       "Valor Total",
		FieldType:  models.FieldTypeMonetary,
		Capability: models.CapabilityDocumentValue,
	}
	require.NoError(t, db.Create(&valueField).Error)

	return template, docField, valueField
}

func createCompletedChecklist(t *testing.T, db *gorm.DB, user models.User, store models.Store, template models.ChecklistTemplate) *models.Checklist {
	t.Helper()
	checklist := models.Checklist{
		TemplateID: template.ID,
		StoreID:    store.ID,
		UserID:     user.ID,
		Status:     models.ChecklistStatusCompleted,
	}
	require.NoError(t, db.Create(&checklist).Error)
	return &checklist
}

func makeResponse(t *testing.T, checklistID, fieldID uuid.UUID, payload interface{}) models.ChecklistResponse {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.ChecklistResponse{
		ChecklistID: checklistID,
		FieldID:     fieldID,
		Value:       datatypes.JSON(raw),
	}
}

// submitReceiving runs a complete receiving entry through reconciliation
func submitReceiving(t *testing.T, db *gorm.DB, svc *ReconciliationService, user models.User, store models.Store, template models.ChecklistTemplate, docField, valueField models.TemplateField, docNumber string, value float64) *models.Checklist {
	t.Helper()
	checklist := createCompletedChecklist(t, db, user, store, template)
	responses := []models.ChecklistResponse{
		makeResponse(t, checklist.ID, docField.ID, map[string]interface{}{"value": docNumber}),
		makeResponse(t, checklist.ID, valueField.ID, map[string]interface{}{"value": value}),
	}
	fields := []models.TemplateField{docField, valueField}
	require.NoError(t, svc.ProcessChecklist(checklist, responses, fields))
	return checklist
}

func countEvents(t *testing.T, db *gorm.DB, eventType string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}
