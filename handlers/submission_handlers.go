package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/middleware"
	"github.com/varejoops/checkops/models"
)

// SubmissionHandler exposes the local submission queue over HTTP
type SubmissionHandler struct {
	db   *gorm.DB
	sync *SyncService
}

func NewSubmissionHandler(db *gorm.DB, sync *SyncService) *SubmissionHandler {
	return &SubmissionHandler{db: db, sync: sync}
}

// CreateSubmission enqueues a new submission
// POST /api/v1/submissions
func (h *SubmissionHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TemplateID      uuid.UUID        `json:"template_id"`
		StoreID         uuid.UUID        `json:"store_id"`
		SectorID        *uuid.UUID       `json:"sector_id,omitempty"`
		Responses       models.JSONMap   `json:"responses,omitempty"`
		SectionProgress models.JSONMap   `json:"section_progress,omitempty"`
		CompletedAt     *models.JSONTime `json:"completed_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TemplateID == uuid.Nil || req.StoreID == uuid.Nil {
		http.Error(w, "template_id and store_id are required", http.StatusBadRequest)
		return
	}

	submission := models.ChecklistSubmission{
		TemplateID:      req.TemplateID,
		StoreID:         req.StoreID,
		SectorID:        req.SectorID,
		UserID:          claims.UserUUID(),
		Responses:       req.Responses,
		SectionProgress: req.SectionProgress,
		CompletedAt:     req.CompletedAt,
	}
	if err := h.sync.Enqueue(&submission); err != nil {
		log.Printf("❌ Error enqueueing submission: %v", err)
		http.Error(w, "failed to enqueue submission", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(submission)
}

// UpdateSubmissionField records one debounced field edit
// PATCH /api/v1/submissions/{id}/fields/{fieldId}
func (h *SubmissionHandler) UpdateSubmissionField(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	vars := mux.Vars(r)
	submissionID, err := uuid.Parse(vars["id"])
	if err != nil {
		http.Error(w, "invalid submission ID", http.StatusBadRequest)
		return
	}
	fieldID := vars["fieldId"]
	if _, err := uuid.Parse(fieldID); err != nil {
		http.Error(w, "invalid field ID", http.StatusBadRequest)
		return
	}

	var submission models.ChecklistSubmission
	if err := h.db.First(&submission, "id = ?", submissionID).Error; err != nil {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	if submission.UserID != claims.UserUUID() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var payload interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	h.sync.UpdateField(submissionID, fieldID, payload)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "buffered"})
}

// GetSubmissions lists the caller's queued submissions
// GET /api/v1/submissions
func (h *SubmissionHandler) GetSubmissions(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Where("user_id = ?", claims.UserID)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var submissions []models.ChecklistSubmission
	if err := query.Order("created_at ASC").Find(&submissions).Error; err != nil {
		log.Printf("❌ Error fetching submissions: %v", err)
		http.Error(w, "failed to fetch submissions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"submissions": submissions,
		"count":       len(submissions),
	})
}

// DrainSubmissions triggers one sync pass over the whole queue. At most one
// drain runs at a time; a concurrent call reports skipped.
// POST /api/v1/submissions/drain
func (h *SubmissionHandler) DrainSubmissions(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	result := h.sync.Drain()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetQueueStatus reports queue counts and the current connectivity flag
// GET /api/v1/submissions/status
func (h *SubmissionHandler) GetQueueStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	status, err := h.sync.QueueStatus()
	if err != nil {
		log.Printf("❌ Error reading queue status: %v", err)
		http.Error(w, "failed to read queue status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// SetConnectivity records the client's connectivity state. Transitioning from
// offline to online drains the queue and returns that drain's result.
// POST /api/v1/sync/connectivity
func (h *SubmissionHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	drain := h.sync.SetOnline(req.Online)

	resp := map[string]interface{}{"online": req.Online}
	if drain != nil {
		resp["drain"] = drain
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// DeleteSubmission removes a queued submission that was never synced
// DELETE /api/v1/submissions/{id}
func (h *SubmissionHandler) DeleteSubmission(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	submissionID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid submission ID", http.StatusBadRequest)
		return
	}

	var submission models.ChecklistSubmission
	if err := h.db.First(&submission, "id = ?", submissionID).Error; err != nil {
		http.Error(w, "submission not found", http.StatusNotFound)
		return
	}
	if submission.UserID != claims.UserUUID() && !claims.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if err := h.db.Delete(&submission).Error; err != nil {
		log.Printf("❌ Error deleting submission: %v", err)
		http.Error(w, "failed to delete submission", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
