package domain

import (
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignScheduled CampaignStatus = "scheduled"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
)

// SendType determines how a campaign enters the dispatch pipeline.
type SendType string

const (
	SendImmediate SendType = "immediate"
	SendScheduled SendType = "scheduled"
	SendFollowup  SendType = "followup"
)

// Campaign represents one unit of outbound email work: a body, a rotating
// set of subject lines, a rotating pool of sender accounts, and a recipient
// list owned by the campaign.
type Campaign struct {
	ID               string         `json:"id" db:"id"`
	UserID           string         `json:"user_id" db:"user_id"`
	Name             string         `json:"name" db:"name"`
	Status           CampaignStatus `json:"status" db:"status"`
	SendType         SendType       `json:"send_type" db:"send_type"`
	ScheduledAt      *time.Time     `json:"scheduled_at" db:"scheduled_at"`
	Subjects         []string       `json:"subjects" db:"subjects"`
	BodyHTML         string         `json:"body_html" db:"body_html"`
	FromAccountIDs   []string       `json:"from_account_ids" db:"from_account_ids"`
	ParentCampaignID *string        `json:"parent_campaign_id" db:"parent_campaign_id"`

	// ClaimExpiresAt is stamped by the scheduled->sending claim. A campaign
	// stuck in sending past this deadline is eligible for re-claim.
	ClaimExpiresAt *time.Time `json:"claim_expires_at" db:"claim_expires_at"`

	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}

// IsFollowup returns true if this campaign was derived from a parent.
func (c *Campaign) IsFollowup() bool {
	return c.SendType == SendFollowup || c.ParentCampaignID != nil
}

// CanTransitionTo reports whether the status state machine allows moving
// from the campaign's current status to next. Transitions only run forward:
// draft -> scheduled -> sending -> completed|failed, with immediate
// campaigns skipping scheduled.
func (c *Campaign) CanTransitionTo(next CampaignStatus) bool {
	switch c.Status {
	case CampaignDraft:
		return next == CampaignScheduled || next == CampaignSending
	case CampaignScheduled:
		return next == CampaignSending
	case CampaignSending:
		return next == CampaignCompleted || next == CampaignFailed
	default:
		return false
	}
}

// RecipientStatus enumerates the lifecycle of one planned message.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// CampaignRecipient is one planned/sent message within a campaign. It is
// created as pending when the campaign is created and mutated exactly once
// by the dispatcher, to sent or failed. AccountID is fixed at creation or
// first assignment and never reassigned after a send attempt.
type CampaignRecipient struct {
	ID         string          `json:"id" db:"id"`
	CampaignID string          `json:"campaign_id" db:"campaign_id"`
	Email      string          `json:"email" db:"email"`
	AccountID  *string         `json:"account_id" db:"account_id"`
	Position   int             `json:"position" db:"position"`
	Status     RecipientStatus `json:"status" db:"status"`

	// Audit trail of the actual send, quoted back by follow-ups.
	SentAt        *time.Time `json:"sent_at" db:"sent_at"`
	SentFromEmail string     `json:"sent_from_email" db:"sent_from_email"`
	SentBodyHTML  string     `json:"sent_body_html" db:"sent_body_html"`
	Error         string     `json:"error,omitempty" db:"error"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
