package campaign

import (
	"context"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// Repository defines the data access contract for campaigns and their
// recipient rows. Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single campaign. Returns ErrNotFound if it doesn't
	// exist or belongs to another user.
	Get(ctx context.Context, userID, id string) (*domain.Campaign, error)

	// List returns campaigns for a user, newest first.
	List(ctx context.Context, userID string, f ListFilter) ([]domain.Campaign, int, error)

	// Create inserts the campaign and its pending recipient rows in one
	// transaction.
	Create(ctx context.Context, c *domain.Campaign, recipients []RecipientInput) error

	// ListDue returns scheduled campaigns whose scheduled_at has arrived,
	// oldest first, up to limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)

	// ClaimForSending performs the atomic scheduled->sending transition.
	// Returns true iff this call performed the transition; false means
	// another worker already claimed the campaign (or it is no longer
	// scheduled) and the caller must skip it silently.
	ClaimForSending(ctx context.Context, id string, claimTTL time.Duration) (bool, error)

	// Finalize moves a sending campaign to completed or failed.
	Finalize(ctx context.Context, id string, status domain.CampaignStatus) error

	// ReclaimStale resets campaigns stuck in sending past their claim
	// deadline back to scheduled so another worker can re-claim them.
	// Returns the number of campaigns reclaimed.
	ReclaimStale(ctx context.Context, now time.Time) (int, error)

	// ListRecipients returns a campaign's recipients in iteration order
	// (by position).
	ListRecipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)

	// AssignRecipientAccount fixes a recipient's sender account. Only
	// called for recipients without a pre-assigned account, before any
	// send attempt.
	AssignRecipientAccount(ctx context.Context, recipientID, accountID string) error

	// MarkRecipientSent records a successful send with its audit fields.
	MarkRecipientSent(ctx context.Context, recipientID string, sentAt time.Time, fromEmail, bodyHTML string) error

	// MarkRecipientFailed records a failed send attempt.
	MarkRecipientFailed(ctx context.Context, recipientID, reason string) error

	// FindCompletedFollowup returns the completed follow-up for a parent
	// campaign, or nil if none exists.
	FindCompletedFollowup(ctx context.Context, parentID string) (*domain.Campaign, error)
}

// ListFilter controls pagination and filtering for campaign lists.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}

// RecipientInput is one recipient to create alongside a campaign.
// AccountID may be empty; the dispatcher then assigns one by rotation.
type RecipientInput struct {
	Email     string `json:"email"`
	AccountID string `json:"account_id,omitempty"`
}
