package config

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
)

func Migrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "20250812_create_core_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.User{}, &models.Store{}, &models.Sector{},
					&models.UserStoreSector{}, &models.ChecklistTemplate{}, &models.TemplateField{},
					&models.FieldCondition{})
			},
		},
		{
			ID: "20250812_create_checklist_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Checklist{}, &models.ChecklistResponse{},
					&models.ChecklistSubmission{})
			},
		},
		{
			ID: "20250819_create_evaluation_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.CrossValidation{}, &models.ActionPlan{})
			},
		},
		{
			ID: "20250819_create_delivery_tables",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Notification{}, &models.OutboxEvent{},
					&models.ActivityLog{}, &models.AppSetting{})
			},
		},
		{
			ID: "20250826_index_pending_validations",
			Migrate: func(tx *gorm.DB) error {
				// The matcher and the expiry sweep both scan pending rows per store
				return tx.Exec("CREATE INDEX IF NOT EXISTS idx_cv_pending ON cross_validations (store_id, created_at) WHERE status = 'pending'").Error
			},
		},
		{
			ID: "20250829_submission_completed_at",
			Migrate: func(tx *gorm.DB) error {
				// device-captured completion timestamp on queued submissions
				return tx.AutoMigrate(&models.ChecklistSubmission{})
			},
		},
	})
	return m.Migrate()
}

// MigrateForTests creates the full schema directly; used by sqlite-backed tests
// where the partial postgres index is unavailable.
func MigrateForTests(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Store{}, &models.Sector{},
		&models.UserStoreSector{}, &models.ChecklistTemplate{}, &models.TemplateField{},
		&models.FieldCondition{}, &models.Checklist{}, &models.ChecklistResponse{},
		&models.ChecklistSubmission{}, &models.CrossValidation{}, &models.ActionPlan{},
		&models.Notification{}, &models.OutboxEvent{}, &models.ActivityLog{},
		&models.AppSetting{})
}
