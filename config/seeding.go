package config

import (
	"log"

	"gorm.io/gorm"

	"github.com/varejoops/checkops/models"
)

// SeedDemoData creates a minimal store/template pair for local bootstrapping.
// Skips silently when any template already exists.
func SeedDemoData(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.ChecklistTemplate{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	store := models.Store{Code: "L001", Name: "Loja Centro", City: "São Paulo", IsActive: true}
	if err := db.Create(&store).Error; err != nil {
		return err
	}
	receiving := models.Sector{StoreID: store.ID, Name: "Recebimento", IsActive: true}
	if err := db.Create(&receiving).Error; err != nil {
		return err
	}

	template := models.ChecklistTemplate{
		Code:     "RECEIVING",
		Name:     "Recebimento de Mercadorias",
		IsActive: true,
	}
	if err := db.Create(&template).Error; err != nil {
		return err
	}

	fields := []models.TemplateField{
		{TemplateID: template.ID, Name: "Número da Nota Fiscal", FieldType: models.FieldTypeText,
			Capability: models.CapabilityDocumentNumber, Required: true, DisplayOrder: 1},
		{TemplateID: template.ID, Name: "Valor Total da Nota", FieldType: models.FieldTypeMonetary,
			Capability: models.CapabilityDocumentValue, Required: true, DisplayOrder: 2},
		{TemplateID: template.ID, Name: "Carga refrigerada dentro da temperatura?", FieldType: models.FieldTypeYesNo,
			Capability: models.CapabilityNone, DisplayOrder: 3},
		{TemplateID: template.ID, Name: "Avarias encontradas", FieldType: models.FieldTypeQuantity,
			Capability: models.CapabilityNone, DisplayOrder: 4},
	}
	for i := range fields {
		if err := db.Create(&fields[i]).Error; err != nil {
			return err
		}
	}

	conditions := []models.FieldCondition{
		{
			FieldID:             fields[2].ID,
			ConditionType:       models.ConditionEquals,
			ConditionValue:      models.JSONMap{"value": "não"},
			Severity:            models.SeverityAlta,
			DeadlineDays:        1,
			DescriptionTemplate: "Temperatura fora do padrão em {field_name} ({store_name})",
			RequirePhoto:        true,
			IsActive:            true,
		},
		{
			FieldID:        fields[3].ID,
			ConditionType:  models.ConditionGreaterThan,
			ConditionValue: models.JSONMap{"max": 0},
			Severity:       models.SeverityMedia,
			DeadlineDays:   3,
			RequireText:    true,
			MaxTextLength:  500,
			IsActive:       true,
		},
	}
	for i := range conditions {
		if err := db.Create(&conditions[i]).Error; err != nil {
			return err
		}
	}

	log.Printf("✅ Seeded demo store %s and template %s", store.Code, template.Code)
	return nil
}
