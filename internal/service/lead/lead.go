// Package lead turns inbound mailbox activity into prospect records and
// exposes the lead admin operations.
package lead

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
)

var (
	// ErrNotFound is returned when a lead does not exist.
	ErrNotFound = errors.New("lead not found")

	// ErrMissingEmail is returned when a manual lead has no sender address.
	ErrMissingEmail = errors.New("lead email is required")
)

// Repository is the persistence contract the lead service depends on.
type Repository interface {
	CreateLead(ctx context.Context, l *domain.Lead) error
	GetLead(ctx context.Context, userID, id string) (*domain.Lead, error)
	ListLeads(ctx context.Context, userID string, limit, offset int) ([]domain.Lead, error)
	DeleteLead(ctx context.Context, userID, id string) error
	FindLeadByEmail(ctx context.Context, userID, fromEmail string) (*domain.Lead, error)
}

// AccountResolver maps an inbound message's account to its owner.
type AccountResolver interface {
	GetAccount(ctx context.Context, id string) (*domain.EmailAccount, error)
}

// threadEntry is one captured message in a lead's thread snapshot.
type threadEntry struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	ReceivedAt time.Time `json:"received_at"`
}

// Service implements lead capture and admin operations. It satisfies the
// sync worker's inbound sink.
type Service struct {
	repo     Repository
	accounts AccountResolver
}

// NewService creates a lead service.
func NewService(repo Repository, accounts AccountResolver) *Service {
	return &Service{repo: repo, accounts: accounts}
}

// automatedSenders are local parts that mark machine-generated mail.
// Replies from these never become leads.
var automatedSenders = []string{"no-reply", "noreply", "mailer-daemon", "postmaster", "bounce"}

func isAutomated(from string) bool {
	local := strings.ToLower(from)
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	for _, prefix := range automatedSenders {
		if strings.Contains(local, prefix) {
			return true
		}
	}
	return false
}

// HandleInbound converts newly synced messages into leads. One lead per
// sender per user: repeat replies from a known sender are dropped rather
// than duplicated. Individual message failures are logged and skipped so
// the sync worker's checkpoint can still advance.
func (s *Service) HandleInbound(ctx context.Context, msgs []domain.InboundMessage) error {
	for _, msg := range msgs {
		if msg.From == "" || isAutomated(msg.From) {
			continue
		}

		account, err := s.accounts.GetAccount(ctx, msg.AccountID)
		if err != nil {
			return fmt.Errorf("resolve account %s: %w", msg.AccountID, err)
		}

		existing, err := s.repo.FindLeadByEmail(ctx, account.UserID, msg.From)
		if err != nil {
			return fmt.Errorf("lookup lead: %w", err)
		}
		if existing != nil {
			continue
		}

		thread, err := json.Marshal([]threadEntry{{
			From:       msg.From,
			To:         msg.To,
			Subject:    msg.Subject,
			Snippet:    msg.Snippet,
			ReceivedAt: msg.ReceivedAt,
		}})
		if err != nil {
			return fmt.Errorf("encode thread: %w", err)
		}

		l := &domain.Lead{
			UserID:    account.UserID,
			FromEmail: msg.From,
			ToEmail:   msg.To,
			Thread:    thread,
			Source:    domain.LeadSourceInbox,
		}
		if err := s.repo.CreateLead(ctx, l); err != nil {
			log.Printf("[LeadService] Error creating lead from %s: %v",
				logger.RedactEmail(msg.From), err)
			continue
		}
		log.Printf("[LeadService] New lead %s from reply to %s",
			l.ID, logger.RedactEmail(msg.To))
	}
	return nil
}

// CreateManual records a hand-entered lead.
func (s *Service) CreateManual(ctx context.Context, userID, fromEmail, toEmail string) (*domain.Lead, error) {
	if strings.TrimSpace(fromEmail) == "" {
		return nil, ErrMissingEmail
	}
	l := &domain.Lead{
		UserID:    userID,
		FromEmail: strings.TrimSpace(fromEmail),
		ToEmail:   strings.TrimSpace(toEmail),
		Thread:    json.RawMessage("[]"),
		Source:    domain.LeadSourceManual,
	}
	if err := s.repo.CreateLead(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Get returns one lead scoped to its owner.
func (s *Service) Get(ctx context.Context, userID, id string) (*domain.Lead, error) {
	return s.repo.GetLead(ctx, userID, id)
}

// List returns the user's leads, newest first.
func (s *Service) List(ctx context.Context, userID string, limit, offset int) ([]domain.Lead, error) {
	return s.repo.ListLeads(ctx, userID, limit, offset)
}

// Delete removes a lead.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.repo.DeleteLead(ctx, userID, id)
}
