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

// CrossValidationHandler serves read access to reconciliation records
type CrossValidationHandler struct {
	db             *gorm.DB
	reconciliation *ReconciliationService
}

func NewCrossValidationHandler(db *gorm.DB, reconciliation *ReconciliationService) *CrossValidationHandler {
	return &CrossValidationHandler{db: db, reconciliation: reconciliation}
}

// GetCrossValidations lists reconciliation records with optional filters
// GET /api/v1/cross-validations
func (h *CrossValidationHandler) GetCrossValidations(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Model(&models.CrossValidation{})
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if storeID := r.URL.Query().Get("store_id"); storeID != "" {
		query = query.Where("store_id = ?", storeID)
	}
	if doc := r.URL.Query().Get("document_number"); doc != "" {
		query = query.Where("document_number = ?", doc)
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

	var validations []models.CrossValidation
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&validations).Error; err != nil {
		log.Printf("❌ Error fetching cross validations: %v", err)
		http.Error(w, "failed to fetch cross validations", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"cross_validations": validations,
		"count":             len(validations),
	})
}

// GetCrossValidation returns one reconciliation record
// GET /api/v1/cross-validations/{id}
func (h *CrossValidationHandler) GetCrossValidation(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	validationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid cross validation ID", http.StatusBadRequest)
		return
	}

	var validation models.CrossValidation
	if err := h.db.First(&validation, "id = ?", validationID).Error; err != nil {
		http.Error(w, "cross validation not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(validation)
}

// ExpireStaleValidations runs the TTL sweep on demand; admin only
// POST /api/v1/cross-validations/expire-stale
func (h *CrossValidationHandler) ExpireStaleValidations(w http.ResponseWriter, r *http.Request) {
	h.reconciliation.ExpireStale()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
}
