package handlers

import (
	"encoding/json"
	"log"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
)

// OutboxService is the write side of the outbound event log. Evaluators publish
// structured events here instead of calling delivery channels directly, so a
// delivery failure can never block the finalize path.
type OutboxService struct {
	db *gorm.DB
}

func NewOutboxService(db *gorm.DB) *OutboxService {
	return &OutboxService{db: db}
}

// Publish appends one event. Publish failures are logged and swallowed: losing
// a notification must not fail the operation that produced it.
func (s *OutboxService) Publish(eventType string, payload map[string]interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ Failed to marshal outbox payload for %s: %v", eventType, err)
		return
	}

	event := models.OutboxEvent{
		EventType: eventType,
		Payload:   datatypes.JSON(raw),
		Status:    models.OutboxStatusPending,
	}
	if err := s.db.Create(&event).Error; err != nil {
		log.Printf("❌ Failed to publish outbox event %s: %v", eventType, err)
		return
	}
}
