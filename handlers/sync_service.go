package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
	"github.com/varejoops/checkops/utils"
)

// debounceDelay buffers rapid per-field edits before the queue row is written
const debounceDelay = 1500 * time.Millisecond

// DrainResult reports what one drain pass accomplished
type DrainResult struct {
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped,omitempty"`
}

// SyncService owns the durable submission queue. Field edits are debounced in
// memory and flushed to the queue row; Drain walks the queue and finalizes each
// submission exactly once, keyed by the submission id.
type SyncService struct {
	db             *gorm.DB
	reconciliation *ReconciliationService
	nonConformity  *NonConformityService

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingEdits

	draining atomic.Bool
	online   atomic.Bool
}

// pendingEdits is the in-memory debounce buffer for one submission
type pendingEdits struct {
	responses map[string]interface{}
	timer     *time.Timer
}

func NewSyncService(db *gorm.DB, reconciliation *ReconciliationService, nonConformity *NonConformityService) *SyncService {
	s := &SyncService{
		db:             db,
		reconciliation: reconciliation,
		nonConformity:  nonConformity,
		pending:        make(map[uuid.UUID]*pendingEdits),
	}
	s.online.Store(true)
	return s
}

// Online reports the connectivity state last signalled by a client
func (s *SyncService) Online() bool {
	return s.online.Load()
}

// SetOnline records a connectivity change. Coming back online triggers a drain
// of everything queued while offline; the result of that drain is returned.
func (s *SyncService) SetOnline(online bool) *DrainResult {
	wasOnline := s.online.Swap(online)
	if online && !wasOnline {
		log.Printf("📡 Back online, draining the submission queue")
		result := s.Drain()
		return &result
	}
	return nil
}

// QueueStatus summarizes the durable queue plus the in-memory debounce buffers
type QueueStatus struct {
	Pending  int64 `json:"pending"`
	Failed   int64 `json:"failed"`
	Syncing  int64 `json:"syncing"`
	Buffered int   `json:"buffered"`
	Online   bool  `json:"online"`
}

func (s *SyncService) QueueStatus() (QueueStatus, error) {
	status := QueueStatus{Online: s.online.Load()}

	s.mu.Lock()
	status.Buffered = len(s.pending)
	s.mu.Unlock()

	counts := []struct {
		status models.SubmissionStatus
		into   *int64
	}{
		{models.SubmissionStatusPending, &status.Pending},
		{models.SubmissionStatusFailed, &status.Failed},
		{models.SubmissionStatusSyncing, &status.Syncing},
	}
	for _, c := range counts {
		if err := s.db.Model(&models.ChecklistSubmission{}).
			Where("status = ?", c.status).Count(c.into).Error; err != nil {
			return status, fmt.Errorf("counting %s submissions: %w", c.status, err)
		}
	}
	return status, nil
}

// Enqueue creates a new queue row for a checklist being filled on a device
func (s *SyncService) Enqueue(submission *models.ChecklistSubmission) error {
	submission.Status = models.SubmissionStatusPending
	if err := s.db.Create(submission).Error; err != nil {
		return fmt.Errorf("enqueueing submission: %w", err)
	}
	log.Printf("📋 Submission %s enqueued for template %s", submission.ID, submission.TemplateID)
	return nil
}

// UpdateField records one field edit. The write to the queue row is debounced:
// edits arriving within the delay window collapse into a single flush.
func (s *SyncService) UpdateField(submissionID uuid.UUID, fieldID string, payload interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edits, ok := s.pending[submissionID]
	if !ok {
		edits = &pendingEdits{responses: make(map[string]interface{})}
		s.pending[submissionID] = edits
	}
	edits.responses[fieldID] = payload

	if edits.timer != nil {
		edits.timer.Stop()
	}
	edits.timer = time.AfterFunc(debounceDelay, func() {
		if err := s.Flush(submissionID); err != nil {
			log.Printf("⚠️  Debounced flush for submission %s failed: %v", submissionID, err)
		}
	})
}

// Flush writes the buffered edits for one submission to its queue row
func (s *SyncService) Flush(submissionID uuid.UUID) error {
	s.mu.Lock()
	edits, ok := s.pending[submissionID]
	if ok {
		if edits.timer != nil {
			edits.timer.Stop()
		}
		delete(s.pending, submissionID)
	}
	s.mu.Unlock()

	if !ok || len(edits.responses) == 0 {
		return nil
	}

	var submission models.ChecklistSubmission
	if err := s.db.First(&submission, "id = ?", submissionID).Error; err != nil {
		return fmt.Errorf("loading submission %s: %w", submissionID, err)
	}
	if submission.Responses == nil {
		submission.Responses = models.JSONMap{}
	}
	for fieldID, payload := range edits.responses {
		submission.Responses[fieldID] = payload
	}
	return s.db.Model(&submission).Update("responses", submission.Responses).Error
}

// FlushAll drains every debounce buffer immediately, used before a full sync
func (s *SyncService) FlushAll() {
	s.mu.Lock()
	ids := make([]uuid.UUID, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if err := s.Flush(id); err != nil {
			log.Printf("⚠️  Flush for submission %s failed: %v", id, err)
		}
	}
}

// Drain processes every pending and previously failed submission. Only one
// drain runs at a time: concurrent callers are dropped, not queued, and get a
// skipped result. An offline client gets the same skipped result.
func (s *SyncService) Drain() DrainResult {
	if !s.online.Load() {
		return DrainResult{Skipped: true}
	}
	if !s.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}
	}
	defer s.draining.Store(false)

	s.FlushAll()

	var submissions []models.ChecklistSubmission
	if err := s.db.Where("status IN ?",
		[]models.SubmissionStatus{models.SubmissionStatusPending, models.SubmissionStatusFailed}).
		Order("created_at ASC").Find(&submissions).Error; err != nil {
		log.Printf("❌ Drain could not load the queue: %v", err)
		return DrainResult{}
	}

	result := DrainResult{}
	for i := range submissions {
		submission := &submissions[i]
		if err := s.syncItem(submission); err != nil {
			result.Failed++
			msg := err.Error()
			if updErr := s.db.Model(submission).Updates(map[string]interface{}{
				"status":     models.SubmissionStatusFailed,
				"sync_error": &msg,
			}).Error; updErr != nil {
				log.Printf("❌ Could not mark submission %s as failed: %v", submission.ID, updErr)
			}
			log.Printf("❌ Submission %s failed to sync: %v", submission.ID, err)
			continue
		}
		result.Synced++
	}

	if result.Synced+result.Failed > 0 {
		log.Printf("✅ Drain finished: %d synced, %d failed", result.Synced, result.Failed)
	}
	return result
}

// syncItem finalizes one queued submission. A synced submission leaves the
// queue entirely: success deletes the row.
func (s *SyncService) syncItem(submission *models.ChecklistSubmission) error {
	if err := s.db.Model(submission).Update("status", models.SubmissionStatusSyncing).Error; err != nil {
		return fmt.Errorf("marking syncing: %w", err)
	}

	if _, err := s.FinalizeSubmission(submission); err != nil {
		return err
	}

	return s.db.Delete(submission).Error
}

// FinalizeSubmission converts a queued submission into a confirmed checklist
// and runs both evaluators over it. The submission id is the idempotency key:
// re-running for an already-confirmed submission reuses the existing checklist.
// Evaluator errors are logged but never fail the finalize; only core writes do.
func (s *SyncService) FinalizeSubmission(submission *models.ChecklistSubmission) (*models.Checklist, error) {
	var checklist models.Checklist
	err := s.db.Where("local_submission_id = ?", submission.ID).First(&checklist).Error
	switch {
	case err == nil:
		// already confirmed by an earlier drain. A retry after a partial
		// failure may still owe response rows, so fill the gaps first.
		if respErr := s.writeResponses(&checklist, submission.Responses); respErr != nil {
			return nil, respErr
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		// prefer the device-captured completion time over the sync time
		completedAt := time.Now()
		if submission.CompletedAt != nil {
			completedAt = submission.CompletedAt.Time()
		}
		localID := submission.ID
		checklist = models.Checklist{
			TemplateID:        submission.TemplateID,
			StoreID:           submission.StoreID,
			SectorID:          submission.SectorID,
			UserID:            submission.UserID,
			Status:            models.ChecklistStatusCompleted,
			LocalSubmissionID: &localID,
			CompletedAt:       &completedAt,
		}
		if createErr := s.db.Create(&checklist).Error; createErr != nil {
			return nil, fmt.Errorf("creating checklist: %w", createErr)
		}
		if respErr := s.writeResponses(&checklist, submission.Responses); respErr != nil {
			return nil, respErr
		}
	default:
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	var responses []models.ChecklistResponse
	if err := s.db.Where("checklist_id = ?", checklist.ID).Find(&responses).Error; err != nil {
		return nil, fmt.Errorf("loading responses: %w", err)
	}
	var fields []models.TemplateField
	if err := s.db.Where("template_id = ?", checklist.TemplateID).Find(&fields).Error; err != nil {
		return nil, fmt.Errorf("loading template fields: %w", err)
	}

	s.checkGeofence(&checklist, responses, fields)

	// The evaluators are independent: one failing must not block the other
	if err := s.reconciliation.ProcessChecklist(&checklist, responses, fields); err != nil {
		log.Printf("⚠️  Reconciliation for checklist %s failed: %v", checklist.ID, err)
	}
	if err := s.nonConformity.EvaluateChecklist(&checklist, responses, fields); err != nil {
		log.Printf("⚠️  Non-conformity evaluation for checklist %s failed: %v", checklist.ID, err)
	}

	if err := s.db.Create(&models.ActivityLog{
		UserID:     checklist.UserID,
		Action:     "submission_synced",
		EntityType: "checklist",
		EntityID:   checklist.ID,
		Metadata: models.JSONMap{
			"submission_id": submission.ID.String(),
			"template_id":   checklist.TemplateID.String(),
			"store_id":      checklist.StoreID.String(),
		},
	}).Error; err != nil {
		log.Printf("⚠️  Activity log for checklist %s failed: %v", checklist.ID, err)
	}

	return &checklist, nil
}

// checkGeofence verifies gps field responses against the store's boundary when
// one is configured. An out-of-bounds fix is audited, never rejected: offline
// devices may legitimately capture a fix at the edge of the lot.
func (s *SyncService) checkGeofence(checklist *models.Checklist, responses []models.ChecklistResponse, fields []models.TemplateField) {
	var store models.Store
	if err := s.db.First(&store, "id = ?", checklist.StoreID).Error; err != nil {
		return
	}
	geofence, err := utils.ParseGeofence(store.Geofence)
	if err != nil {
		log.Printf("⚠️  Store %s has a malformed geofence: %v", store.ID, err)
		return
	}
	if geofence == nil {
		return
	}

	gpsFields := make(map[uuid.UUID]bool)
	for i := range fields {
		if fields[i].FieldType == models.FieldTypeGPS {
			gpsFields[fields[i].ID] = true
		}
	}

	for i := range responses {
		if !gpsFields[responses[i].FieldID] {
			continue
		}
		fix, ok := utils.GPSFixFromPayload(responses[i].Payload())
		if !ok {
			continue
		}
		if geofence.Contains(utils.Coordinate{Lat: fix.Lat, Lng: fix.Lng}) {
			continue
		}
		log.Printf("⚠️  Checklist %s GPS fix (%.6f, %.6f) is outside the geofence of store %s",
			checklist.ID, fix.Lat, fix.Lng, store.ID)
		if err := s.db.Create(&models.ActivityLog{
			UserID:     checklist.UserID,
			Action:     "geofence_violation",
			EntityType: "checklist",
			EntityID:   checklist.ID,
			Metadata: models.JSONMap{
				"store_id": store.ID.String(),
				"field_id": responses[i].FieldID.String(),
				"lat":      fix.Lat,
				"lng":      fix.Lng,
			},
		}).Error; err != nil {
			log.Printf("⚠️  Could not record geofence violation: %v", err)
		}
	}
}

// writeResponses persists the submission's field payloads as response rows.
// Fields that already have a row are skipped, so a retry only writes what a
// previous partial failure left missing.
func (s *SyncService) writeResponses(checklist *models.Checklist, responses models.JSONMap) error {
	var existingIDs []uuid.UUID
	if err := s.db.Model(&models.ChecklistResponse{}).
		Where("checklist_id = ?", checklist.ID).
		Pluck("field_id", &existingIDs).Error; err != nil {
		return fmt.Errorf("loading existing responses: %w", err)
	}
	existing := make(map[uuid.UUID]bool, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = true
	}

	for fieldID, payload := range responses {
		fid, err := uuid.Parse(fieldID)
		if err != nil {
			log.Printf("⚠️  Skipping response with malformed field id %q", fieldID)
			continue
		}
		if existing[fid] {
			continue
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding response for field %s: %w", fieldID, err)
		}
		response := models.ChecklistResponse{
			ChecklistID: checklist.ID,
			FieldID:     fid,
			Value:       datatypes.JSON(raw),
		}
		if err := s.db.Create(&response).Error; err != nil {
			return fmt.Errorf("writing response for field %s: %w", fieldID, err)
		}
	}
	return nil
}
