package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType defines the type of notification
type NotificationType string

const (
	NotificationTypeActionPlanCreated  NotificationType = "action_plan_created"
	NotificationTypeReincidence        NotificationType = "action_plan_reincidence"
	NotificationTypeActionPlanOverdue  NotificationType = "action_plan_overdue"
	NotificationTypeValidationMismatch NotificationType = "validation_mismatch"
	NotificationTypeSiblingsLinked     NotificationType = "validation_siblings_linked"
	NotificationTypeValidationExpired  NotificationType = "validation_expired"
)

// NotificationPriority defines the priority level
type NotificationPriority string

const (
	NotificationPriorityLow      NotificationPriority = "low"
	NotificationPriorityNormal   NotificationPriority = "normal"
	NotificationPriorityHigh     NotificationPriority = "high"
	NotificationPriorityCritical NotificationPriority = "critical"
)

// NotificationStatus defines the delivery status of a notification
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusRead    NotificationStatus = "read"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Notification is an in-app notification instance delivered to a user
type Notification struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`

	Type     NotificationType     `gorm:"size:50;not null;index" json:"type"`
	Priority NotificationPriority `gorm:"size:20;default:'normal'" json:"priority"`
	Title    string               `gorm:"size:500;not null" json:"title"`
	Body     string               `gorm:"type:text;not null" json:"body"`
	Link     string               `gorm:"size:500" json:"link,omitempty"`

	// Context (what triggered this notification)
	ChecklistID       *uuid.UUID `gorm:"type:uuid;index" json:"checklist_id,omitempty"`
	ActionPlanID      *uuid.UUID `gorm:"type:uuid;index" json:"action_plan_id,omitempty"`
	CrossValidationID *uuid.UUID `gorm:"type:uuid;index" json:"cross_validation_id,omitempty"`
	StoreID           *uuid.UUID `gorm:"type:uuid;index" json:"store_id,omitempty"`
	Metadata          JSONMap    `gorm:"type:jsonb" json:"metadata,omitempty"`

	Status       NotificationStatus `gorm:"size:20;default:'pending';index" json:"status"`
	SentAt       *time.Time         `json:"sent_at,omitempty"`
	ReadAt       *time.Time         `json:"read_at,omitempty"`
	FailedReason string             `gorm:"type:text" json:"failed_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return
}

// MarkAsRead marks the notification as read
func (n *Notification) MarkAsRead() {
	now := time.Now()
	n.ReadAt = &now
	n.Status = NotificationStatusRead
}

// MarkAsSent marks the notification as sent
func (n *Notification) MarkAsSent() {
	now := time.Now()
	n.SentAt = &now
	n.Status = NotificationStatusSent
}

// MarkAsFailed marks the notification as failed
func (n *Notification) MarkAsFailed(reason string) {
	n.Status = NotificationStatusFailed
	n.FailedReason = reason
}
