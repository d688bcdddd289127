// Package followup derives a child campaign from a completed parent,
// reusing the parent's sender/recipient pairing so every prospect hears
// from the same mailbox that contacted them first. Creation only prepares
// and enqueues; the scheduler dispatches the child like any other
// campaign.
package followup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/mailing"
	"github.com/ignite/outreach/internal/service/campaign"
)

// MinParentAge is how old a base campaign must be before it may be
// followed up.
const MinParentAge = 24 * time.Hour

// Sentinel errors for follow-up eligibility and validation.
var (
	ErrParentNotCompleted = errors.New("parent campaign is not completed")
	ErrParentIsFollowup   = errors.New("only base campaigns can be followed up")
	ErrParentTooRecent    = errors.New("parent campaign is younger than 24 hours")
	ErrAlreadyFollowedUp  = errors.New("parent campaign already has a completed follow-up")
	ErrEmptyPitch         = errors.New("follow-up pitch is empty")
	ErrNoSenderAccounts   = errors.New("parent campaign has no resolvable sender accounts")
)

// Service orchestrates follow-up campaign creation.
type Service struct {
	repo campaign.Repository
}

// NewService creates a follow-up orchestrator backed by the campaign
// repository.
func NewService(repo campaign.Repository) *Service {
	return &Service{repo: repo}
}

// CreateInput holds the fields for deriving a follow-up campaign.
type CreateInput struct {
	ParentID string `json:"parent_id"`
	// PitchHTML is the new message placed above the quoted original.
	PitchHTML string `json:"pitch_html"`
	// Subjects overrides the default "Re:"-prefixed parent subjects.
	Subjects []string `json:"subjects,omitempty"`
}

// Eligibility describes why a parent can or cannot be followed up.
// Reason is empty when Eligible is true.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`

	// err is the sentinel behind Reason so callers can errors.Is it.
	err error
}

// Err returns the sentinel error for an ineligible parent, nil otherwise.
func (e *Eligibility) Err() error { return e.err }

func ineligible(sentinel error) *Eligibility {
	return &Eligibility{Reason: sentinel.Error(), err: sentinel}
}

// SenderMapping pairs one sender account with the recipients it originally
// contacted.
type SenderMapping struct {
	AccountID  string   `json:"account_id"`
	Recipients []string `json:"recipients"`
}

// Preview is the follow-up plan for display: who gets the follow-up from
// which account, without creating anything. QuotedBodyHTML is the quoted
// parent body the pitch will sit above.
type Preview struct {
	ParentID       string          `json:"parent_id"`
	Subjects       []string        `json:"subjects"`
	Mappings       []SenderMapping `json:"mappings"`
	QuotedBodyHTML string          `json:"quoted_body_html"`
}

// CheckEligibility evaluates the gating rules for a parent campaign.
// Gates, all required: base campaign (immediate or scheduled, no parent of
// its own), completed, at least MinParentAge old, and no completed
// follow-up already derived from it.
func (s *Service) CheckEligibility(ctx context.Context, userID, parentID string) (*Eligibility, *domain.Campaign, error) {
	parent, err := s.repo.Get(ctx, userID, parentID)
	if err != nil {
		return nil, nil, err
	}

	if parent.IsFollowup() {
		return ineligible(ErrParentIsFollowup), parent, nil
	}
	if parent.Status != domain.CampaignCompleted {
		return ineligible(ErrParentNotCompleted), parent, nil
	}
	if time.Since(parent.CreatedAt) < MinParentAge {
		return ineligible(ErrParentTooRecent), parent, nil
	}

	existing, err := s.repo.FindCompletedFollowup(ctx, parent.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("find completed follow-up: %w", err)
	}
	if existing != nil {
		return ineligible(ErrAlreadyFollowedUp), parent, nil
	}

	return &Eligibility{Eligible: true}, parent, nil
}

// PreviewFollowup returns the sender/recipient plan without creating a
// campaign.
func (s *Service) PreviewFollowup(ctx context.Context, userID, parentID string) (*Preview, error) {
	elig, parent, err := s.CheckEligibility(ctx, userID, parentID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, elig.err
	}

	mappings, err := s.buildSenderMap(ctx, parent)
	if err != nil {
		return nil, err
	}

	return &Preview{
		ParentID:       parent.ID,
		Subjects:       followupSubjects(parent, nil),
		Mappings:       mappings,
		QuotedBodyHTML: quoteBody("", parent.BodyHTML),
	}, nil
}

// Create derives and persists the follow-up campaign. The child is created
// scheduled-and-due so the normal scheduler claim picks it up; Create
// itself never sends.
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*domain.Campaign, error) {
	if mailing.StripMarkup(input.PitchHTML) == "" {
		return nil, ErrEmptyPitch
	}

	elig, parent, err := s.CheckEligibility(ctx, userID, input.ParentID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, elig.err
	}

	mappings, err := s.buildSenderMap(ctx, parent)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	child := &domain.Campaign{
		ID:               uuid.New().String(),
		UserID:           userID,
		Name:             parent.Name + " (follow-up)",
		SendType:         domain.SendFollowup,
		Status:           domain.CampaignScheduled,
		ScheduledAt:      &now,
		Subjects:         followupSubjects(parent, input.Subjects),
		BodyHTML:         quoteBody(input.PitchHTML, parent.BodyHTML),
		FromAccountIDs:   accountIDs(mappings),
		ParentCampaignID: &parent.ID,
		CreatedAt:        now,
	}

	recipients := flattenMappings(mappings)
	if err := s.repo.Create(ctx, child, recipients); err != nil {
		return nil, fmt.Errorf("create follow-up campaign: %w", err)
	}

	log.Printf("[Followup] Created %s from parent %s: %d recipients across %d accounts",
		child.ID, parent.ID, len(recipients), len(mappings))
	return child, nil
}

// buildSenderMap replays the parent's persisted recipient assignments,
// falling back to positional rotation for recipients that were never
// assigned. Ordering follows the parent's recipient positions so the
// follow-up iterates in the same order the original did.
func (s *Service) buildSenderMap(ctx context.Context, parent *domain.Campaign) ([]SenderMapping, error) {
	recipients, err := s.repo.ListRecipients(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("list parent recipients: %w", err)
	}

	byAccount := make(map[string][]string)
	var order []string
	for _, r := range recipients {
		accountID := ""
		switch {
		case r.AccountID != nil && *r.AccountID != "":
			accountID = *r.AccountID
		case len(parent.FromAccountIDs) > 0:
			accountID = parent.FromAccountIDs[r.Position%len(parent.FromAccountIDs)]
		default:
			return nil, ErrNoSenderAccounts
		}
		if _, seen := byAccount[accountID]; !seen {
			order = append(order, accountID)
		}
		byAccount[accountID] = append(byAccount[accountID], r.Email)
	}

	if len(order) == 0 {
		return nil, ErrNoSenderAccounts
	}

	mappings := make([]SenderMapping, 0, len(order))
	for _, id := range order {
		mappings = append(mappings, SenderMapping{AccountID: id, Recipients: byAccount[id]})
	}
	return mappings, nil
}

func followupSubjects(parent *domain.Campaign, override []string) []string {
	if len(override) > 0 {
		return override
	}
	subjects := make([]string, len(parent.Subjects))
	for i, s := range parent.Subjects {
		subjects[i] = "Re: " + s
	}
	return subjects
}

// quoteBody places the pitch above the quoted original body, matching the
// reply convention mail clients render as a collapsed quote.
func quoteBody(pitch, original string) string {
	return pitch + `<br/><blockquote style="border-left:2px solid #ccc;padding-left:8px;margin-left:4px;">` + original + `</blockquote>`
}

func accountIDs(mappings []SenderMapping) []string {
	ids := make([]string, len(mappings))
	for i, m := range mappings {
		ids[i] = m.AccountID
	}
	return ids
}

// flattenMappings produces recipient inputs account by account, each with
// an explicit pre-assigned sender so dispatch rotation never reshuffles
// the pairing.
func flattenMappings(mappings []SenderMapping) []campaign.RecipientInput {
	var out []campaign.RecipientInput
	for _, m := range mappings {
		for _, email := range m.Recipients {
			out = append(out, campaign.RecipientInput{Email: email, AccountID: m.AccountID})
		}
	}
	return out
}
