package routes

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/handlers"
	"github.com/varejoops/checkops/middleware"
)

// Services bundles the long-lived services the routes depend on. Built once in
// main and shared with the background workers.
type Services struct {
	Sync           *handlers.SyncService
	Reconciliation *handlers.ReconciliationService
	NonConformity  *handlers.NonConformityService
}

// NewServices wires the service graph over one database handle
func NewServices(db *gorm.DB) *Services {
	outbox := handlers.NewOutboxService(db)
	reconciliation := handlers.NewReconciliationService(db, outbox)
	nonConformity := handlers.NewNonConformityService(db, outbox)
	return &Services{
		Sync:           handlers.NewSyncService(db, reconciliation, nonConformity),
		Reconciliation: reconciliation,
		NonConformity:  nonConformity,
	}
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(db *gorm.DB, services *Services) http.Handler {
	r := mux.NewRouter()

	// =====================================================
	// Public Routes (no authentication)
	// =====================================================
	r.HandleFunc("/register", handlers.Register).Methods("POST")
	r.HandleFunc("/login", handlers.Login).Methods("POST")
	r.HandleFunc("/healthz", handleHealth).Methods("GET")

	// =====================================================
	// Protected API Routes (require JWT authentication)
	// =====================================================
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.SecurityMiddleware)
	api.Use(middleware.JWTMiddleware)

	api.HandleFunc("/profile", handleProfile).Methods("GET")

	submissions := handlers.NewSubmissionHandler(db, services.Sync)
	api.HandleFunc("/submissions", submissions.CreateSubmission).Methods("POST")
	api.HandleFunc("/submissions", submissions.GetSubmissions).Methods("GET")
	api.HandleFunc("/submissions/drain", submissions.DrainSubmissions).Methods("POST")
	api.HandleFunc("/submissions/status", submissions.GetQueueStatus).Methods("GET")
	api.HandleFunc("/sync/connectivity", submissions.SetConnectivity).Methods("POST")
	api.HandleFunc("/submissions/{id}/fields/{fieldId}", submissions.UpdateSubmissionField).Methods("PATCH")
	api.HandleFunc("/submissions/{id}", submissions.DeleteSubmission).Methods("DELETE")

	checklists := handlers.NewChecklistHandler(db, services.Sync)
	api.HandleFunc("/checklists", checklists.CreateChecklist).Methods("POST")
	api.HandleFunc("/checklists", checklists.GetChecklists).Methods("GET")
	api.HandleFunc("/checklists/{id}", checklists.GetChecklist).Methods("GET")

	actionPlans := handlers.NewActionPlanHandler(db, services.NonConformity)
	api.HandleFunc("/action-plans", actionPlans.GetActionPlans).Methods("GET")
	api.HandleFunc("/action-plans/{id}", actionPlans.GetActionPlan).Methods("GET")
	api.HandleFunc("/action-plans/{id}/start", actionPlans.StartActionPlan).Methods("POST")
	api.HandleFunc("/action-plans/{id}/complete", actionPlans.CompleteActionPlan).Methods("POST")

	notifications := handlers.NewNotificationHandler(db)
	api.HandleFunc("/notifications", notifications.GetNotifications).Methods("GET")
	api.HandleFunc("/notifications/read-all", notifications.MarkAllNotificationsRead).Methods("POST")
	api.HandleFunc("/notifications/{id}/read", notifications.MarkNotificationRead).Methods("POST")

	crossValidations := handlers.NewCrossValidationHandler(db, services.Reconciliation)
	api.HandleFunc("/cross-validations", crossValidations.GetCrossValidations).Methods("GET")
	api.HandleFunc("/cross-validations/{id}", crossValidations.GetCrossValidation).Methods("GET")

	// =====================================================
	// Admin Routes (require admin permissions)
	// =====================================================
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/action-plans/scan-overdue", actionPlans.ScanOverdue).Methods("POST")
	admin.HandleFunc("/action-plans/{id}/cancel", actionPlans.CancelActionPlan).Methods("POST")
	admin.HandleFunc("/cross-validations/expire-stale", crossValidations.ExpireStaleValidations).Methods("POST")

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}
