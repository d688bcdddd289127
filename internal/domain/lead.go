package domain

import (
	"encoding/json"
	"time"
)

// LeadSource records how a lead entered the system.
type LeadSource string

const (
	LeadSourceInbox  LeadSource = "inbox"
	LeadSourceManual LeadSource = "manual"
)

// Lead is a prospect record derived from an inbound reply or manual
// capture. Thread holds a conversation snapshot as captured at creation.
type Lead struct {
	ID        string          `json:"id" db:"id"`
	UserID    string          `json:"user_id" db:"user_id"`
	FromEmail string          `json:"from_email" db:"from_email"`
	ToEmail   string          `json:"to_email" db:"to_email"`
	Thread    json.RawMessage `json:"thread" db:"thread"`
	Source    LeadSource      `json:"source" db:"source"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}
