package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store represents a retail store unit
type Store struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code     string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name     string    `gorm:"size:100;not null" json:"name"`
	City     string    `gorm:"size:100" json:"city,omitempty"`
	IsActive bool      `gorm:"default:true" json:"is_active"`

	// Geofence is an optional polygon (JSON list of {lat,lng}) used to validate
	// GPS-fix field responses submitted from this store
	Geofence string `gorm:"type:text" json:"geofence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sectors []Sector `gorm:"foreignKey:StoreID" json:"sectors,omitempty"`
}

func (Store) TableName() string {
	return "stores"
}

func (s *Store) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// Sector is a department within a store (receiving, bakery, front-end, ...)
type Sector struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID  uuid.UUID `gorm:"type:uuid;not null;index" json:"store_id"`
	Name     string    `gorm:"size:100;not null" json:"name"`
	IsActive bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Sector) TableName() string {
	return "sectors"
}

func (s *Sector) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return
}

// UserStoreSector assigns a user to a sector of a specific store. Reconciliation
// prefers this assignment over the user's default sector.
type UserStoreSector struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_user_store,unique" json:"user_id"`
	StoreID  uuid.UUID `gorm:"type:uuid;not null;index:idx_user_store,unique" json:"store_id"`
	SectorID uuid.UUID `gorm:"type:uuid;not null" json:"sector_id"`
	IsActive bool      `gorm:"default:true" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Sector *Sector `gorm:"foreignKey:SectorID" json:"sector,omitempty"`
}

func (UserStoreSector) TableName() string {
	return "user_store_sectors"
}

func (u *UserStoreSector) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return
}
