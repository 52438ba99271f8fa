package models

import "time"

// Tab is one open tab of an application.
type Tab struct {
	Title    string `json:"title"`
	IsActive bool   `json:"is_active"`
}

// TabSnapshot is the most recent tab list captured for one application.
type TabSnapshot struct {
	AppName       string    `json:"app_name"`
	ApplicationID string    `json:"application_id"`
	Tabs          []Tab     `json:"tabs"`
	CapturedAt    time.Time `json:"captured_at"`
}

// HasTitle reports whether any tab carries exactly the given title.
func (s *TabSnapshot) HasTitle(title string) bool {
	for _, t := range s.Tabs {
		if t.Title == title {
			return true
		}
	}
	return false
}
