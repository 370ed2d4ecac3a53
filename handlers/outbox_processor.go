package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
)

// OutboxProcessor drains the outbox table in the background, turning events
// into in-app, email and chat deliveries. Rows are claimed with a worker id and
// a lock TTL so a crashed worker's claims become stale and get retried.
type OutboxProcessor struct {
	db            *gorm.DB
	notifications *NotificationService
	WorkerID      string
	BatchSize     int
	Interval      time.Duration
	LockTTL       time.Duration
	MaxAttempts   int
}

func NewOutboxProcessor(db *gorm.DB, notifications *NotificationService) *OutboxProcessor {
	return &OutboxProcessor{
		db:            db,
		notifications: notifications,
		WorkerID:      "worker-" + time.Now().Format("20060102-150405.000"),
		BatchSize:     50,
		Interval:      5 * time.Second,
		LockTTL:       30 * time.Second,
		MaxAttempts:   5,
	}
}

// Run loops until the context is cancelled
func (p *OutboxProcessor) Run(ctx context.Context) {
	log.Printf("📋 Outbox processor %s started", p.WorkerID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("📋 Outbox processor %s stopped", p.WorkerID)
			return
		default:
		}
		p.ProcessOnce()
		select {
		case <-ctx.Done():
			log.Printf("📋 Outbox processor %s stopped", p.WorkerID)
			return
		case <-time.After(p.Interval):
		}
	}
}

// ProcessOnce claims one batch of deliverable events and dispatches each
func (p *OutboxProcessor) ProcessOnce() int {
	now := time.Now()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.OutboxEvent
	err := p.db.Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("status IN ?", []models.OutboxStatus{models.OutboxStatusPending, models.OutboxStatusFailed}).
			Where("attempts < ?", p.MaxAttempts).
			Where("locked_at IS NULL OR locked_at <= ?", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize)
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if err := tx.Model(&models.OutboxEvent{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at": &now,
					"locked_by": &p.WorkerID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("❌ Outbox claim failed: %v", err)
		return 0
	}

	processed := 0
	for i := range claimed {
		event := &claimed[i]
		if err := p.dispatch(event); err != nil {
			msg := err.Error()
			if updErr := p.db.Model(event).Updates(map[string]interface{}{
				"status":     models.OutboxStatusFailed,
				"attempts":   gorm.Expr("attempts + 1"),
				"last_error": &msg,
				"locked_at":  nil,
				"locked_by":  nil,
			}).Error; updErr != nil {
				log.Printf("❌ Could not record outbox failure for event %d: %v", event.ID, updErr)
			}
			log.Printf("❌ Outbox event %d (%s) failed: %v", event.ID, event.EventType, err)
			continue
		}
		doneAt := time.Now()
		if err := p.db.Model(event).Updates(map[string]interface{}{
			"status":       models.OutboxStatusProcessed,
			"attempts":     gorm.Expr("attempts + 1"),
			"processed_at": &doneAt,
			"locked_at":    nil,
			"locked_by":    nil,
		}).Error; err != nil {
			log.Printf("❌ Could not mark outbox event %d processed: %v", event.ID, err)
			continue
		}
		processed++
	}
	return processed
}

// dispatch fans one event out to its delivery channels by event type
func (p *OutboxProcessor) dispatch(event *models.OutboxEvent) error {
	var payload models.JSONMap
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	switch event.EventType {
	case models.EventActionPlanCreated:
		return p.dispatchActionPlanCreated(payload)
	case models.EventActionPlanOverdue:
		return p.dispatchActionPlanOverdue(payload)
	case models.EventValidationMismatch:
		return p.dispatchToAdmins(payload,
			models.NotificationTypeValidationMismatch,
			models.NotificationPriorityHigh,
			"Value mismatch on document "+payload.GetString("document_number"),
			fmt.Sprintf("The two legs of document %s differ by %s.",
				payload.GetString("document_number"), payload.GetString("difference")))
	case models.EventSiblingsLinked:
		return p.dispatchToAdmins(payload,
			models.NotificationTypeSiblingsLinked,
			models.NotificationPriorityNormal,
			"Documents linked as siblings",
			fmt.Sprintf("Documents %s and %s were linked (%s), difference %s.",
				payload.GetString("document_number"), payload.GetString("sibling_document"),
				payload.GetString("match_reason"), payload.GetString("difference")))
	case models.EventValidationExpired:
		return p.dispatchToAdmins(payload,
			models.NotificationTypeValidationExpired,
			models.NotificationPriorityLow,
			"Validation expired for document "+payload.GetString("document_number"),
			fmt.Sprintf("Document %s never received its second leg and expired.",
				payload.GetString("document_number")))
	default:
		return fmt.Errorf("unknown event type %q", event.EventType)
	}
}

func (p *OutboxProcessor) dispatchActionPlanCreated(payload models.JSONMap) error {
	assigneeID, err := uuid.Parse(payload.GetString("assignee_id"))
	if err != nil {
		return fmt.Errorf("parsing assignee id: %w", err)
	}

	notifType := models.NotificationTypeActionPlanCreated
	priority := models.NotificationPriorityNormal
	body := fmt.Sprintf("Item %q at %s reported %s. Deadline: %s.",
		payload.GetString("field_name"), payload.GetString("store_name"),
		payload.GetString("value"), payload.GetString("deadline"))
	if isReincidencia, _ := payload["is_reincidencia"].(bool); isReincidencia {
		notifType = models.NotificationTypeReincidence
		priority = models.NotificationPriorityHigh
		body = "Recurring non-conformity. " + body
	}

	planID := contextID(payload, "action_plan_id")
	checklistID := contextID(payload, "checklist_id")
	storeID := contextID(payload, "store_id")

	if err := p.notifications.NotifyInApp(&models.Notification{
		UserID:       assigneeID,
		Type:         notifType,
		Priority:     priority,
		Title:        payload.GetString("title"),
		Body:         body,
		ActionPlanID: planID,
		ChecklistID:  checklistID,
		StoreID:      storeID,
		Metadata:     payload,
	}); err != nil {
		return err
	}

	if err := p.notifications.SendActionPlanEmail(assigneeID, payload); err != nil {
		log.Printf("⚠️  Action plan email failed: %v", err)
	}
	if err := p.notifications.PostChatWebhook(fmt.Sprintf("[%s] %s", payload.GetString("severity"), payload.GetString("title"))); err != nil {
		log.Printf("⚠️  Chat webhook failed: %v", err)
	}

	// Recurrences additionally alert every admin
	if notifType == models.NotificationTypeReincidence {
		adminIDs, err := p.notifications.AdminIDs()
		if err != nil {
			return err
		}
		for _, adminID := range adminIDs {
			if adminID == assigneeID {
				continue
			}
			if err := p.notifications.NotifyInApp(&models.Notification{
				UserID:       adminID,
				Type:         models.NotificationTypeReincidence,
				Priority:     priority,
				Title:        payload.GetString("title"),
				Body:         body,
				ActionPlanID: planID,
				ChecklistID:  checklistID,
				StoreID:      storeID,
				Metadata:     payload,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *OutboxProcessor) dispatchActionPlanOverdue(payload models.JSONMap) error {
	assigneeID, err := uuid.Parse(payload.GetString("assignee_id"))
	if err != nil {
		return fmt.Errorf("parsing assignee id: %w", err)
	}
	planID := contextID(payload, "action_plan_id")
	storeID := contextID(payload, "store_id")
	title := "Overdue: " + payload.GetString("title")
	body := fmt.Sprintf("The action plan passed its deadline (%s).", payload.GetString("deadline"))

	recipients := []uuid.UUID{assigneeID}
	adminIDs, err := p.notifications.AdminIDs()
	if err != nil {
		return err
	}
	for _, adminID := range adminIDs {
		if adminID != assigneeID {
			recipients = append(recipients, adminID)
		}
	}
	for _, recipient := range recipients {
		if err := p.notifications.NotifyInApp(&models.Notification{
			UserID:       recipient,
			Type:         models.NotificationTypeActionPlanOverdue,
			Priority:     models.NotificationPriorityHigh,
			Title:        title,
			Body:         body,
			ActionPlanID: planID,
			StoreID:      storeID,
			Metadata:     payload,
		}); err != nil {
			return err
		}
	}
	if err := p.notifications.PostChatWebhook(title); err != nil {
		log.Printf("⚠️  Chat webhook failed: %v", err)
	}
	return nil
}

func (p *OutboxProcessor) dispatchToAdmins(payload models.JSONMap, notifType models.NotificationType, priority models.NotificationPriority, title, body string) error {
	adminIDs, err := p.notifications.AdminIDs()
	if err != nil {
		return err
	}
	validationID := contextID(payload, "validation_id")
	storeID := contextID(payload, "store_id")
	for _, adminID := range adminIDs {
		if err := p.notifications.NotifyInApp(&models.Notification{
			UserID:            adminID,
			Type:              notifType,
			Priority:          priority,
			Title:             title,
			Body:              body,
			CrossValidationID: validationID,
			StoreID:           storeID,
			Metadata:          payload,
		}); err != nil {
			return err
		}
	}
	return nil
}

// contextID parses an optional uuid payload key into a nullable context FK
func contextID(payload models.JSONMap, key string) *uuid.UUID {
	raw := payload.GetString(key)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
