package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/middleware"
	"github.com/varejoops/checkops/models"
)

// ChecklistHandler serves confirmed checklists and the direct (online) submit
// path that bypasses the local queue.
type ChecklistHandler struct {
	db   *gorm.DB
	sync *SyncService
}

func NewChecklistHandler(db *gorm.DB, sync *SyncService) *ChecklistHandler {
	return &ChecklistHandler{db: db, sync: sync}
}

// CreateChecklist confirms a completed checklist directly, without queueing.
// The optional local_submission_id makes retries idempotent: posting the same
// id twice returns the originally confirmed checklist.
// POST /api/v1/checklists
func (h *ChecklistHandler) CreateChecklist(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		TemplateID        uuid.UUID      `json:"template_id"`
		StoreID           uuid.UUID      `json:"store_id"`
		SectorID          *uuid.UUID     `json:"sector_id,omitempty"`
		LocalSubmissionID *uuid.UUID     `json:"local_submission_id,omitempty"`
		Responses         models.JSONMap `json:"responses"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TemplateID == uuid.Nil || req.StoreID == uuid.Nil {
		http.Error(w, "template_id and store_id are required", http.StatusBadRequest)
		return
	}

	localID := uuid.New()
	if req.LocalSubmissionID != nil {
		localID = *req.LocalSubmissionID
	}

	// The finalize path is shared with the queue drain; the submission here is
	// transient and never persisted.
	submission := models.ChecklistSubmission{
		ID:         localID,
		TemplateID: req.TemplateID,
		StoreID:    req.StoreID,
		SectorID:   req.SectorID,
		UserID:     claims.UserUUID(),
		Responses:  req.Responses,
	}
	checklist, err := h.sync.FinalizeSubmission(&submission)
	if err != nil {
		log.Printf("❌ Error finalizing checklist: %v", err)
		http.Error(w, "failed to create checklist", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(checklist)
}

// GetChecklists lists confirmed checklists with optional filters
// GET /api/v1/checklists
func (h *ChecklistHandler) GetChecklists(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.Checklist{})
	if !claims.IsAdmin {
		query = query.Where("user_id = ?", claims.UserID)
	}
	if storeID := r.URL.Query().Get("store_id"); storeID != "" {
		query = query.Where("store_id = ?", storeID)
	}
	if templateID := r.URL.Query().Get("template_id"); templateID != "" {
		query = query.Where("template_id = ?", templateID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if o, err := strconv.Atoi(raw); err == nil && o >= 0 {
			offset = o
		}
	}

	var checklists []models.Checklist
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&checklists).Error; err != nil {
		log.Printf("❌ Error fetching checklists: %v", err)
		http.Error(w, "failed to fetch checklists", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"checklists": checklists,
		"count":      len(checklists),
	})
}

// GetChecklist returns one checklist with responses and field definitions
// GET /api/v1/checklists/{id}
func (h *ChecklistHandler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	checklistID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid checklist ID", http.StatusBadRequest)
		return
	}

	var checklist models.Checklist
	if err := h.db.Preload("Responses").Preload("Responses.Field").
		First(&checklist, "id = ?", checklistID).Error; err != nil {
		http.Error(w, "checklist not found", http.StatusNotFound)
		return
	}
	if checklist.UserID != claims.UserUUID() && !claims.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(checklist)
}
