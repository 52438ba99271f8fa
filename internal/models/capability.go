package models

import (
	"time"

	"gorm.io/gorm"
)

// Capability is an entry of the local catalog of things nudge can offer.
type Capability struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"not null;uniqueIndex" json:"name"`
	Description string         `gorm:"not null" json:"description"`
	Keywords    string         `json:"keywords"` // comma separated
	Installed   bool           `gorm:"not null;default:false" json:"installed"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// CapabilityMatch is one capability-search hit.
type CapabilityMatch struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
