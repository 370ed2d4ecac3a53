package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/varejoops/checkops/config"
	"github.com/varejoops/checkops/models"
)

// NotificationService delivers notifications over the in-app store, email and
// the configured chat webhook.
type NotificationService struct {
	db         *gorm.DB
	httpClient *http.Client
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{
		db:         db,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// NotifyInApp creates an in-app notification row for one user
func (ns *NotificationService) NotifyInApp(notification *models.Notification) error {
	if err := ns.db.Create(notification).Error; err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}
	notification.MarkAsSent()
	if err := ns.db.Model(notification).Updates(map[string]interface{}{
		"status":  notification.Status,
		"sent_at": notification.SentAt,
	}).Error; err != nil {
		log.Printf("⚠️  Could not mark notification %s as sent: %v", notification.ID, err)
	}
	return nil
}

// SendActionPlanEmail sends the configured email template to the assignee.
// Delivery is skipped silently when SMTP is not configured.
func (ns *NotificationService) SendActionPlanEmail(assigneeID uuid.UUID, payload models.JSONMap) error {
	host := os.Getenv("SMTP_HOST")
	if host == "" {
		return nil
	}
	port := os.Getenv("SMTP_PORT")
	if port == "" {
		port = "587"
	}
	from := os.Getenv("SMTP_FROM")
	username := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASSWORD")

	var assignee models.User
	if err := ns.db.First(&assignee, "id = ?", assigneeID).Error; err != nil {
		return fmt.Errorf("loading assignee: %w", err)
	}
	if assignee.Email == "" {
		return nil
	}

	subject := renderPlaceholders(
		config.Setting(ns.db, config.SettingEmailSubject, config.DefaultEmailSubject),
		assignee.Name, payload)
	body := renderPlaceholders(
		config.Setting(ns.db, config.SettingEmailTemplate, config.DefaultEmailTemplate),
		assignee.Name, payload)

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", assignee.Email)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	if err := smtp.SendMail(host+":"+port, auth, from, []string{assignee.Email}, msg.Bytes()); err != nil {
		return fmt.Errorf("sending email to %s: %w", assignee.Email, err)
	}
	log.Printf("✅ Email sent to %s", assignee.Email)
	return nil
}

// PostChatWebhook posts a short text message to the configured chat webhook.
// A missing webhook URL means chat delivery is disabled.
func (ns *NotificationService) PostChatWebhook(text string) error {
	url := config.Setting(ns.db, config.SettingChatWebhookURL, "")
	if url == "" {
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return err
	}
	resp, err := ns.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("posting chat webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("chat webhook returned %d", resp.StatusCode)
	}
	return nil
}

// AdminIDs returns the ids of every admin user, the fallback audience for
// events without an explicit recipient.
func (ns *NotificationService) AdminIDs() ([]uuid.UUID, error) {
	var admins []models.User
	if err := ns.db.Select("id").Where("is_admin = ?", true).Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("loading admins: %w", err)
	}
	ids := make([]uuid.UUID, len(admins))
	for i, admin := range admins {
		ids[i] = admin.ID
	}
	return ids, nil
}

// renderPlaceholders fills the {name} placeholders shared by the email subject
// and body templates from the event payload.
func renderPlaceholders(template, userName string, payload models.JSONMap) string {
	pairs := []string{"{user_name}", userName}
	for _, key := range []string{"title", "field_name", "value", "store_name", "severity", "deadline"} {
		pairs = append(pairs, "{"+key+"}", payload.GetString(key))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
