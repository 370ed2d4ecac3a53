// models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"size:100;not null" json:"name"`
	Email        string    `gorm:"size:100;uniqueIndex;not null" json:"email"`
	Phone        string    `gorm:"size:15" json:"phone,omitempty"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`

	// Funcao is the user-level job function ("gerente", "fiscal de prevencao", ...).
	// Reconciliation derives the submitter's leg from it; users without a function
	// are excluded from reconciliation entirely.
	Funcao *string `gorm:"size:100" json:"funcao,omitempty"`

	// IsAdmin marks users that receive reincidence and overdue escalation alerts
	IsAdmin bool `gorm:"default:false" json:"is_admin"`

	// DefaultSectorID is the fallback sector when no per-store assignment exists
	DefaultSectorID *uuid.UUID `gorm:"type:uuid" json:"default_sector_id,omitempty"`
	DefaultSector   *Sector    `gorm:"foreignKey:DefaultSectorID" json:"default_sector,omitempty"`

	IsActive  bool `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Per-store sector assignments
	StoreSectors []UserStoreSector `gorm:"foreignKey:UserID" json:"store_sectors,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}

// HasFunction reports whether the user has any job function assigned
func (u *User) HasFunction() bool {
	return u.Funcao != nil && *u.Funcao != ""
}

// SectorForStore resolves the user's sector for a store: the per-store assignment
// wins, else the user's default sector, else nil.
func (u *User) SectorForStore(storeID uuid.UUID) *uuid.UUID {
	for _, ss := range u.StoreSectors {
		if ss.StoreID == storeID && ss.IsActive {
			sectorID := ss.SectorID
			return &sectorID
		}
	}
	return u.DefaultSectorID
}
