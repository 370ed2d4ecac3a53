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

func enqueueReceiving(t *testing.T, db *gorm.DB, sync *SyncService, user models.User, store models.Store, template models.ChecklistTemplate, docField, valueField models.TemplateField, docNumber string, value float64) *models.ChecklistSubmission {
	t.Helper()
	submission := models.ChecklistSubmission{
		TemplateID: template.ID,
		StoreID:    store.ID,
		UserID:     user.ID,
		Responses: models.JSONMap{
			docField.ID.String():   map[string]interface{}{"value": docNumber},
			valueField.ID.String(): map[string]interface{}{"value": value},
		},
	}
	require.NoError(t, sync.Enqueue(&submission))
	return &submission
}

func TestSyncDrainConfirmsSubmission(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "12345", 150.00)

	result := sync.Drain()
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 0, result.Failed)
	assert.False(t, result.Skipped)

	// A synced submission is removed from the queue entirely
	var queued int64
	require.NoError(t, db.Model(&models.ChecklistSubmission{}).Count(&queued).Error)
	assert.Equal(t, int64(0), queued)

	var checklist models.Checklist
	require.NoError(t, db.First(&checklist, "local_submission_id = ?", submission.ID).Error)
	assert.Equal(t, models.ChecklistStatusCompleted, checklist.Status)
	assert.NotNil(t, checklist.CompletedAt)

	var responses int64
	require.NoError(t, db.Model(&models.ChecklistResponse{}).
		Where("checklist_id = ?", checklist.ID).Count(&responses).Error)
	assert.Equal(t, int64(2), responses)

	// Reconciliation ran as part of the finalize
	var cv models.CrossValidation
	require.NoError(t, db.First(&cv, "document_number = ?", "12345").Error)
	assert.Equal(t, models.ValidationPending, cv.Status)

	var audit models.ActivityLog
	require.NoError(t, db.First(&audit, "action = ?", "submission_synced").Error)
	assert.Equal(t, checklist.ID, audit.EntityID)
}

func TestSyncDrainRetriesFailedSubmissions(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "55001", 40.00)
	msg := "device went offline"
	require.NoError(t, db.Model(submission).Updates(map[string]interface{}{
		"status":     models.SubmissionStatusFailed,
		"sync_error": &msg,
	}).Error)

	result := sync.Drain()
	assert.Equal(t, 1, result.Synced)

	var count int64
	require.NoError(t, db.Model(&models.Checklist{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSyncFinalizeIsIdempotent(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "66001", 75.00)

	first, err := sync.FinalizeSubmission(submission)
	require.NoError(t, err)
	second, err := sync.FinalizeSubmission(submission)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var checklists int64
	require.NoError(t, db.Model(&models.Checklist{}).Count(&checklists).Error)
	assert.Equal(t, int64(1), checklists)

	var responses int64
	require.NoError(t, db.Model(&models.ChecklistResponse{}).Count(&responses).Error)
	assert.Equal(t, int64(2), responses)
}

func TestSyncFinalizeKeepsDeviceCompletionTime(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	// Filled two hours ago on the device, synced only now
	captured := models.JSONTime(time.Now().Add(-2 * time.Hour).Truncate(time.Second))
	submission := models.ChecklistSubmission{
		TemplateID: template.ID,
		StoreID:    store.ID,
		UserID:     user.ID,
		Responses: models.JSONMap{
			docField.ID.String():   map[string]interface{}{"value": "66003"},
			valueField.ID.String(): map[string]interface{}{"value": 12.50},
		},
		CompletedAt: &captured,
	}
	require.NoError(t, sync.Enqueue(&submission))

	checklist, err := sync.FinalizeSubmission(&submission)
	require.NoError(t, err)
	require.NotNil(t, checklist.CompletedAt)
	assert.WithinDuration(t, captured.Time(), *checklist.CompletedAt, time.Second)
}

func TestSyncRetryBackfillsMissingResponses(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "66002", 75.00)

	// A previous drain wrote the checklist row but crashed before any
	// response rows landed
	localID := submission.ID
	now := time.Now()
	orphan := models.Checklist{
		TemplateID:        template.ID,
		StoreID:           store.ID,
		UserID:            user.ID,
		Status:            models.ChecklistStatusCompleted,
		LocalSubmissionID: &localID,
		CompletedAt:       &now,
	}
	require.NoError(t, db.Create(&orphan).Error)

	result := sync.Drain()
	assert.Equal(t, 1, result.Synced)

	var responses int64
	require.NoError(t, db.Model(&models.ChecklistResponse{}).
		Where("checklist_id = ?", orphan.ID).Count(&responses).Error)
	assert.Equal(t, int64(2), responses)

	// The backfilled responses reach reconciliation on the retry
	var cv models.CrossValidation
	require.NoError(t, db.First(&cv, "document_number = ?", "66002").Error)
	assert.Equal(t, models.ValidationPending, cv.Status)
}

func TestSyncDrainSingleFlight(t *testing.T) {
	_, sync, _, _ := newTestServices(t)

	sync.draining.Store(true)
	result := sync.Drain()
	assert.True(t, result.Skipped)
	assert.Equal(t, 0, result.Synced)
	sync.draining.Store(false)
}

func TestSyncDrainSkippedWhileOffline(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)
	enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "12345", 80.00)

	sync.SetOnline(false)
	result := sync.Drain()
	assert.True(t, result.Skipped)

	var queued int64
	require.NoError(t, db.Model(&models.ChecklistSubmission{}).Count(&queued).Error)
	assert.Equal(t, int64(1), queued)
}

func TestSyncBackOnlineDrainsQueue(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)
	submission := enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "12345", 80.00)

	sync.SetOnline(false)

	// Signalling online again while already online must not drain
	drain := sync.SetOnline(false)
	assert.Nil(t, drain)

	drain = sync.SetOnline(true)
	require.NotNil(t, drain)
	assert.Equal(t, 1, drain.Synced)

	var checklist models.Checklist
	require.NoError(t, db.First(&checklist, "local_submission_id = ?", submission.ID).Error)

	// Still online, no transition, no second drain
	assert.Nil(t, sync.SetOnline(true))
}

func TestSyncQueueStatus(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "12345", 80.00)
	enqueueReceiving(t, db, sync, user, store, template, docField, valueField, "67890", 42.00)
	require.NoError(t, db.Model(&models.ChecklistSubmission{}).
		Where("id = ?", submission.ID).Update("status", models.SubmissionStatusFailed).Error)
	sync.UpdateField(submission.ID, docField.ID.String(), map[string]interface{}{"value": "12345"})

	status, err := sync.QueueStatus()
	require.NoError(t, err)
	assert.Equal(t, int64(1), status.Pending)
	assert.Equal(t, int64(1), status.Failed)
	assert.Equal(t, int64(0), status.Syncing)
	assert.Equal(t, 1, status.Buffered)
	assert.True(t, status.Online)

	require.NoError(t, sync.Flush(submission.ID))
}

func TestSyncUpdateFieldDebounce(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := models.ChecklistSubmission{
		TemplateID: template.ID,
		StoreID:    store.ID,
		UserID:     user.ID,
	}
	require.NoError(t, sync.Enqueue(&submission))

	// Rapid edits to the same field collapse; the last value wins
	sync.UpdateField(submission.ID, docField.ID.String(), map[string]interface{}{"value": "1"})
	sync.UpdateField(submission.ID, docField.ID.String(), map[string]interface{}{"value": "12"})
	sync.UpdateField(submission.ID, docField.ID.String(), map[string]interface{}{"value": "12345"})

	// Nothing written until the debounce fires or a flush forces it
	var fresh models.ChecklistSubmission
	require.NoError(t, db.First(&fresh, "id = ?", submission.ID).Error)
	assert.Empty(t, fresh.Responses[docField.ID.String()])

	require.NoError(t, sync.Flush(submission.ID))

	require.NoError(t, db.First(&fresh, "id = ?", submission.ID).Error)
	payload, ok := fresh.Responses[docField.ID.String()].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "12345", payload["value"])

	// The buffer is empty after the flush; a second flush is a no-op
	require.NoError(t, sync.Flush(submission.ID))
}

func TestSyncUpdateFieldDebounceTimerFires(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	store := createTestStore(t, db)
	template, docField, _ := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	submission := models.ChecklistSubmission{
		TemplateID: template.ID,
		StoreID:    store.ID,
		UserID:     user.ID,
	}
	require.NoError(t, sync.Enqueue(&submission))

	sync.UpdateField(submission.ID, docField.ID.String(), map[string]interface{}{"value": "auto"})

	require.Eventually(t, func() bool {
		var fresh models.ChecklistSubmission
		if err := db.First(&fresh, "id = ?", submission.ID).Error; err != nil {
			return false
		}
		payload, ok := fresh.Responses[docField.ID.String()].(map[string]interface{})
		return ok && payload["value"] == "auto"
	}, 5*time.Second, 100*time.Millisecond)
}

func TestSyncGeofenceViolationAudited(t *testing.T) {
	db, sync, _, _ := newTestServices(t)
	template, docField, valueField := createReceivingTemplate(t, db)
	user := createTestUser(t, db, "Ana", "gerente", false)

	store := models.Store{
		Code:     uuid.NewString()[:8],
		Name:     "Loja Cercada",
		IsActive: true,
		Geofence: `{"coordinates":[{"lat":-23.55,"lng":-46.64},{"lat":-23.55,"lng":-46.63},{"lat":-23.54,"lng":-46.63},{"lat":-23.54,"lng":-46.64}]}`,
	}
	require.NoError(t, db.Create(&store).Error)

	gpsField := models.TemplateField{
		TemplateID: template.ID,
		Name:       "Localizacao",
		FieldType:  models.FieldTypeGPS,
	}
	require.NoError(t, db.Create(&gpsField).Error)

	submission := models.ChecklistSubmission{
		TemplateID: template.ID,
		StoreID:    store.ID,
		UserID:     user.ID,
		Responses: models.JSONMap{
			docField.ID.String():   map[string]interface{}{"value": "70001"},
			valueField.ID.String(): map[string]interface{}{"value": 10.0},
			gpsField.ID.String():   map[string]interface{}{"lat": -20.0, "lng": -40.0},
		},
	}
	require.NoError(t, sync.Enqueue(&submission))

	result := sync.Drain()
	assert.Equal(t, 1, result.Synced)

	var violation models.ActivityLog
	require.NoError(t, db.First(&violation, "action = ?", "geofence_violation").Error)
	assert.Equal(t, store.ID.String(), violation.Metadata.GetString("store_id"))
}
