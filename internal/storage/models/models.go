package models

import "time"

// Navigation is one destination URL a tenant's end users can be sent to,
// plus the phrases they use to refer to it. Owned by the navigation store;
// the index builder consumes immutable snapshots of these.
type Navigation struct {
	TenantID     string    `json:"project_id"`
	NavigationID string    `json:"navigation_id"`
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Phrases      []string  `json:"phrases"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RequestLog is the analytics record written fire-and-forget after every
// query or chat response.
type RequestLog struct {
	RequestID string
	TenantID  string
	Query     string
	Response  string
	Type      string
	TimeTaken float64
	Error     string
	Feedback  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexRow is one phrase entry of a tenant's index snapshot. Row order is
// significant: row i pairs with vector i.
type IndexRow struct {
	URL          string `json:"url"`
	Title        string `json:"title"`
	NavigationID string `json:"navigation_id"`
	Phrase       string `json:"phrase"`
}
