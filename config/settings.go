package config

import (
	"log"
	"strconv"

	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
)

// Setting keys and their documented defaults. A missing key is an intentional
// fallback, never an error.
const (
	SettingValidationTTLMinutes = "validation.ttl_minutes"
	SettingSecondaryRoleKeyword = "reconciliation.secondary_role_keyword"
	SettingLookbackDays         = "action_plan.lookback_days"
	SettingEmailSubject         = "email.action_plan.subject"
	SettingEmailTemplate        = "email.action_plan.template"
	SettingChatWebhookURL       = "chat.webhook_url"

	DefaultValidationTTLMinutes = 60
	DefaultSecondaryRoleKeyword = "prevencao"
	DefaultLookbackDays         = 90
	DefaultEmailSubject         = "Non-conformity detected: {title}"
)

// DefaultEmailTemplate is the built-in email body used when no template is
// configured. Placeholders follow the {name} convention of condition templates.
const DefaultEmailTemplate = `<html>
<body>
	<h2>Non-conformity detected</h2>
	<p>Hello {user_name},</p>
	<p>A non-conformity was registered and assigned to you:</p>
	<ul>
		<li><strong>Item:</strong> {field_name}</li>
		<li><strong>Reported value:</strong> {value}</li>
		<li><strong>Store:</strong> {store_name}</li>
		<li><strong>Severity:</strong> {severity}</li>
		<li><strong>Deadline:</strong> {deadline}</li>
	</ul>
	<p>Please resolve it before the deadline.</p>
</body>
</html>`

// Setting reads one configuration key, falling back to the given default when
// the key is absent or unreadable.
func Setting(db *gorm.DB, key, fallback string) string {
	var setting models.AppSetting
	if err := db.Where("key = ?", key).First(&setting).Error; err != nil {
		return fallback
	}
	if setting.Value == "" {
		return fallback
	}
	return setting.Value
}

// SettingInt reads an integer configuration key with a default
func SettingInt(db *gorm.DB, key string, fallback int) int {
	raw := Setting(db, key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️  Setting %s has non-integer value %q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}
