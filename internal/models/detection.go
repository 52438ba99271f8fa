package models

import (
	"time"

	"gorm.io/gorm"
)

type Detection struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	ResultID    string         `gorm:"not null;uniqueIndex" json:"result_id"`
	Source      string         `gorm:"not null;index" json:"source"` // "burst" or "focus"
	Confidence  string         `gorm:"not null" json:"confidence"`
	Theme       string         `gorm:"index" json:"theme"`
	Observation string         `gorm:"not null" json:"observation"`
	Insight     string         `json:"insight"`
	Offer       string         `json:"offer"`
	DetectedAt  time.Time      `gorm:"not null;index" json:"detected_at"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// DetectionFromResult converts an emitted result into its stored form.
func DetectionFromResult(r Result) *Detection {
	return &Detection{
		ResultID:    r.ID,
		Source:      string(r.Source),
		Confidence:  string(r.Confidence),
		Theme:       r.Theme,
		Observation: r.Observation,
		Insight:     r.Insight,
		Offer:       r.Offer,
		DetectedAt:  r.DetectedAt,
	}
}

type DetectionSummary struct {
	Source     string `json:"source"`
	Theme      string `json:"theme"`
	Count      int    `json:"count"`
	HighCount  int    `json:"high_count"`
	LastSeenAt string `json:"last_seen_at"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period      ReportPeriod       `json:"period"`
	Themes      []DetectionSummary `json:"themes"`
	Total       int                `json:"total"`
	BurstCount  int                `json:"burst_count"`
	FocusCount  int                `json:"focus_count"`
	GeneratedAt time.Time          `json:"generated_at"`
}
