package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/middleware"
	"github.com/varejoops/checkops/models"
)

// ActionPlanHandler serves the remediation task lifecycle
type ActionPlanHandler struct {
	db            *gorm.DB
	nonConformity *NonConformityService
}

func NewActionPlanHandler(db *gorm.DB, nonConformity *NonConformityService) *ActionPlanHandler {
	return &ActionPlanHandler{db: db, nonConformity: nonConformity}
}

// GetActionPlans lists action plans; non-admins see only plans assigned to them
// GET /api/v1/action-plans
func (h *ActionPlanHandler) GetActionPlans(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.ActionPlan{})
	if !claims.IsAdmin {
		query = query.Where("assigned_to = ?", claims.UserID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if severity := r.URL.Query().Get("severity"); severity != "" {
		query = query.Where("severity = ?", severity)
	}
	if storeID := r.URL.Query().Get("store_id"); storeID != "" {
		query = query.Where("store_id = ?", storeID)
	}
	if r.URL.Query().Get("reincidencia") == "true" {
		query = query.Where("is_reincidencia = ?", true)
	}

	var plans []models.ActionPlan
	if err := query.Preload("Condition").Preload("Field").
		Order("deadline ASC").Find(&plans).Error; err != nil {
		log.Printf("❌ Error fetching action plans: %v", err)
		http.Error(w, "failed to fetch action plans", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"action_plans": plans,
		"count":        len(plans),
	})
}

// GetActionPlan returns one action plan
// GET /api/v1/action-plans/{id}
func (h *ActionPlanHandler) GetActionPlan(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	plan, ok := h.loadPlan(w, r, claims)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

// StartActionPlan moves an open plan to in_progress
// POST /api/v1/action-plans/{id}/start
func (h *ActionPlanHandler) StartActionPlan(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	plan, ok := h.loadPlan(w, r, claims)
	if !ok {
		return
	}
	if plan.Status != models.ActionPlanOpen && plan.Status != models.ActionPlanOverdue {
		http.Error(w, "action plan cannot be started from its current status", http.StatusConflict)
		return
	}

	if err := h.db.Model(plan).Update("status", models.ActionPlanInProgress).Error; err != nil {
		log.Printf("❌ Error starting action plan %s: %v", plan.ID, err)
		http.Error(w, "failed to update action plan", http.StatusInternalServerError)
		return
	}
	plan.Status = models.ActionPlanInProgress

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

// CompleteActionPlan resolves a plan, enforcing the originating condition's
// evidence requirements (photo, text, text length).
// POST /api/v1/action-plans/{id}/complete
func (h *ActionPlanHandler) CompleteActionPlan(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	plan, ok := h.loadPlan(w, r, claims)
	if !ok {
		return
	}
	if plan.Status == models.ActionPlanCompleted || plan.Status == models.ActionPlanCancelled {
		http.Error(w, "action plan is already closed", http.StatusConflict)
		return
	}

	var req struct {
		ResolutionText   string             `json:"resolution_text"`
		ResolutionPhotos models.StringArray `json:"resolution_photos"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var condition models.FieldCondition
	if err := h.db.First(&condition, "id = ?", plan.ConditionID).Error; err != nil {
		log.Printf("❌ Error loading condition for action plan %s: %v", plan.ID, err)
		http.Error(w, "failed to load completion requirements", http.StatusInternalServerError)
		return
	}

	if condition.RequirePhoto && len(req.ResolutionPhotos) == 0 {
		http.Error(w, "resolution photo is required", http.StatusUnprocessableEntity)
		return
	}
	if condition.RequireText && req.ResolutionText == "" {
		http.Error(w, "resolution text is required", http.StatusUnprocessableEntity)
		return
	}
	if condition.MaxTextLength > 0 && len(req.ResolutionText) > condition.MaxTextLength {
		http.Error(w, fmt.Sprintf("resolution text exceeds %d characters", condition.MaxTextLength), http.StatusUnprocessableEntity)
		return
	}

	now := time.Now()
	if err := h.db.Model(plan).Updates(map[string]interface{}{
		"status":            models.ActionPlanCompleted,
		"resolution_text":   req.ResolutionText,
		"resolution_photos": req.ResolutionPhotos,
		"completed_at":      &now,
	}).Error; err != nil {
		log.Printf("❌ Error completing action plan %s: %v", plan.ID, err)
		http.Error(w, "failed to complete action plan", http.StatusInternalServerError)
		return
	}

	plan.Status = models.ActionPlanCompleted
	plan.ResolutionText = req.ResolutionText
	plan.ResolutionPhotos = req.ResolutionPhotos
	plan.CompletedAt = &now

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

// CancelActionPlan cancels a plan; admin only
// POST /api/v1/action-plans/{id}/cancel
func (h *ActionPlanHandler) CancelActionPlan(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid action plan ID", http.StatusBadRequest)
		return
	}

	var plan models.ActionPlan
	if err := h.db.First(&plan, "id = ?", planID).Error; err != nil {
		http.Error(w, "action plan not found", http.StatusNotFound)
		return
	}
	if plan.Status == models.ActionPlanCompleted || plan.Status == models.ActionPlanCancelled {
		http.Error(w, "action plan is already closed", http.StatusConflict)
		return
	}

	if err := h.db.Model(&plan).Update("status", models.ActionPlanCancelled).Error; err != nil {
		log.Printf("❌ Error cancelling action plan %s: %v", plan.ID, err)
		http.Error(w, "failed to cancel action plan", http.StatusInternalServerError)
		return
	}
	plan.Status = models.ActionPlanCancelled

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plan)
}

// ScanOverdue flips every plan past its deadline to overdue; admin only
// POST /api/v1/action-plans/scan-overdue
func (h *ActionPlanHandler) ScanOverdue(w http.ResponseWriter, r *http.Request) {
	flipped, err := h.nonConformity.MarkOverduePlans()
	if err != nil {
		log.Printf("❌ Overdue scan failed: %v", err)
		http.Error(w, "overdue scan failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"marked_overdue": flipped})
}

// loadPlan loads the plan from the path and enforces assignee-or-admin access
func (h *ActionPlanHandler) loadPlan(w http.ResponseWriter, r *http.Request, claims *middleware.Claims) (*models.ActionPlan, bool) {
	planID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid action plan ID", http.StatusBadRequest)
		return nil, false
	}

	var plan models.ActionPlan
	if err := h.db.Preload("Condition").Preload("Field").First(&plan, "id = ?", planID).Error; err != nil {
		http.Error(w, "action plan not found", http.StatusNotFound)
		return nil, false
	}
	if plan.AssignedTo != claims.UserUUID() && !claims.IsAdmin {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return &plan, true
}
