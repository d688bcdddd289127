package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
)

// Service implements campaign business logic. All public methods are safe
// for concurrent use if the underlying repository is concurrency-safe.
type Service struct {
	repo Repository
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns a single campaign.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	return s.repo.Get(ctx, userID, id)
}

// List returns campaigns matching the filter.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]domain.Campaign, int, error) {
	return s.repo.List(ctx, userID, f)
}

// Recipients returns a campaign's recipient rows in iteration order after
// verifying ownership.
func (s *Service) Recipients(ctx context.Context, userID, id string) ([]domain.CampaignRecipient, error) {
	if _, err := s.repo.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.ListRecipients(ctx, id)
}

// CreateInput holds the fields for creating a new campaign.
type CreateInput struct {
	Name           string           `json:"name"`
	SendType       domain.SendType  `json:"send_type"`
	ScheduledAt    *time.Time       `json:"scheduled_at"`
	Subjects       []string         `json:"subjects"`
	BodyHTML       string           `json:"body_html"`
	FromAccountIDs []string         `json:"from_account_ids"`
	Recipients     []RecipientInput `json:"recipients"`
}

// Create validates and persists a new campaign together with its pending
// recipient rows. Scheduled campaigns enter the scheduler's queue;
// immediate campaigns are created ready-to-claim with scheduled_at = now
// so the request path can claim and dispatch them at once under the same
// discipline as the scheduler.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Campaign, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := &domain.Campaign{
		ID:             uuid.New().String(),
		UserID:         userID,
		Name:           input.Name,
		SendType:       input.SendType,
		Subjects:       input.Subjects,
		BodyHTML:       input.BodyHTML,
		FromAccountIDs: input.FromAccountIDs,
		Status:         domain.CampaignScheduled,
		CreatedAt:      now,
	}

	switch input.SendType {
	case domain.SendScheduled:
		c.ScheduledAt = input.ScheduledAt
	default:
		// Immediate (and follow-up) campaigns are due right away.
		c.ScheduledAt = &now
	}

	if err := s.repo.Create(ctx, c, input.Recipients); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	return c, nil
}

func validateCreate(input CreateInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if len(input.Subjects) == 0 {
		return ErrNoSubjects
	}
	if len(input.FromAccountIDs) == 0 {
		return ErrNoSenderAccounts
	}
	if len(input.Recipients) == 0 {
		return ErrNoRecipients
	}
	switch input.SendType {
	case domain.SendImmediate, domain.SendFollowup:
	case domain.SendScheduled:
		if input.ScheduledAt == nil {
			return ErrInvalidSchedule
		}
	default:
		return fmt.Errorf("unknown send type %q", input.SendType)
	}
	for _, r := range input.Recipients {
		if r.AccountID == "" {
			continue
		}
		if !contains(input.FromAccountIDs, r.AccountID) {
			return fmt.Errorf("recipient %s: account %s not in from_account_ids", r.Email, r.AccountID)
		}
	}
	return nil
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
