package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/middleware"
	"github.com/varejoops/checkops/models"
)

// NotificationHandler serves the in-app notification inbox
type NotificationHandler struct {
	db *gorm.DB
}

func NewNotificationHandler(db *gorm.DB) *NotificationHandler {
	return &NotificationHandler{db: db}
}

// GetNotifications lists the caller's notifications, newest first
// GET /api/v1/notifications
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	query := h.db.Where("user_id = ?", claims.UserID)
	if notifType := r.URL.Query().Get("type"); notifType != "" {
		query = query.Where("type = ?", notifType)
	}
	if r.URL.Query().Get("unread") == "true" {
		query = query.Where("read_at IS NULL")
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		log.Printf("❌ Error fetching notifications: %v", err)
		http.Error(w, "failed to fetch notifications", http.StatusInternalServerError)
		return
	}

	var unreadCount int64
	h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", claims.UserID).
		Count(&unreadCount)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notifications": notifications,
		"count":         len(notifications),
		"unread_count":  unreadCount,
	})
}

// MarkNotificationRead marks one notification as read
// POST /api/v1/notifications/{id}/read
func (h *NotificationHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	notificationID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid notification ID", http.StatusBadRequest)
		return
	}

	var notification models.Notification
	if err := h.db.First(&notification, "id = ?", notificationID).Error; err != nil {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	if notification.UserID != claims.UserUUID() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	notification.MarkAsRead()
	if err := h.db.Model(&notification).Updates(map[string]interface{}{
		"status":  notification.Status,
		"read_at": notification.ReadAt,
	}).Error; err != nil {
		log.Printf("❌ Error marking notification %s as read: %v", notification.ID, err)
		http.Error(w, "failed to update notification", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notification)
}

// MarkAllNotificationsRead marks every unread notification of the caller
// POST /api/v1/notifications/read-all
func (h *NotificationHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaims(r)
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	now := time.Now()
	result := h.db.Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", claims.UserID).
		Updates(map[string]interface{}{
			"status":  models.NotificationStatusRead,
			"read_at": &now,
		})
	if result.Error != nil {
		log.Printf("❌ Error marking notifications as read: %v", result.Error)
		http.Error(w, "failed to update notifications", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"marked_read": result.RowsAffected})
}
