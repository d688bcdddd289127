// Package dispatch implements the bulk dispatcher: given a claimed
// campaign, send every pending recipient exactly once and record each
// outcome. Recipient failures never abort the batch; only a configuration
// problem detected before the first send fails the campaign as a whole.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/mailing"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/transport"
)

// ConfigError marks a campaign misconfiguration detected before any send
// attempt. The caller finalizes the campaign as failed; no recipient row
// has been touched.
type ConfigError struct{ Reason string }

func (e *ConfigError) Error() string { return "campaign misconfigured: " + e.Reason }

// IsConfigError reports whether err is a pre-send configuration failure.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// RecipientStore is the slice of the store the dispatcher writes through.
type RecipientStore interface {
	ListRecipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error)
	AssignRecipientAccount(ctx context.Context, recipientID, accountID string) error
	MarkRecipientSent(ctx context.Context, recipientID string, sentAt time.Time, fromEmail, bodyHTML string) error
	MarkRecipientFailed(ctx context.Context, recipientID, reason string) error
}

// AccountStore resolves sender accounts for rotation.
type AccountStore interface {
	GetAccount(ctx context.Context, id string) (*domain.EmailAccount, error)
}

// Outcome tags one recipient's dispatch result.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// RecipientResult is the tagged per-recipient outcome collected into the
// batch report.
type RecipientResult struct {
	RecipientID string  `json:"recipient_id"`
	Email       string  `json:"email"`
	AccountID   string  `json:"account_id"`
	Outcome     Outcome `json:"outcome"`
	Reason      string  `json:"reason,omitempty"`
}

// Report summarizes one campaign dispatch. A campaign with Failed > 0 and
// Sent > 0 still completes; partial failure is recipient-level state.
type Report struct {
	CampaignID string            `json:"campaign_id"`
	Total      int               `json:"total"`
	Sent       int               `json:"sent"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	Results    []RecipientResult `json:"results"`
}

// Dispatcher sends every pending recipient of a claimed campaign.
type Dispatcher struct {
	recipients RecipientStore
	accounts   AccountStore
	transport  transport.Transport
	templates  *mailing.TemplateService
}

// NewDispatcher creates a bulk dispatcher.
func NewDispatcher(recipients RecipientStore, accounts AccountStore, t transport.Transport, templates *mailing.TemplateService) *Dispatcher {
	return &Dispatcher{
		recipients: recipients,
		accounts:   accounts,
		transport:  t,
		templates:  templates,
	}
}

// Dispatch runs the send loop for a campaign already claimed into the
// sending state. It returns a ConfigError (campaign must be finalized
// failed) only for problems detected before the first send; once sending
// starts, per-recipient failures are recorded and the loop continues.
func (d *Dispatcher) Dispatch(ctx context.Context, campaign *domain.Campaign) (*Report, error) {
	if len(campaign.FromAccountIDs) == 0 {
		return nil, &ConfigError{Reason: "no sender accounts"}
	}
	if len(campaign.Subjects) == 0 {
		return nil, &ConfigError{Reason: "no subject lines"}
	}

	// Resolve the whole rotation pool up front so a broken account
	// reference fails the campaign before any recipient is touched.
	pool := make(map[string]*domain.EmailAccount, len(campaign.FromAccountIDs))
	for _, id := range campaign.FromAccountIDs {
		acct, err := d.accounts.GetAccount(ctx, id)
		if err != nil {
			return nil, &ConfigError{Reason: fmt.Sprintf("sender account %s: %v", id, err)}
		}
		pool[id] = acct
	}

	recipients, err := d.recipients.ListRecipients(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}

	report := &Report{CampaignID: campaign.ID, Total: len(recipients)}
	for _, r := range recipients {
		result := d.sendOne(ctx, campaign, pool, r)
		switch result.Outcome {
		case OutcomeSent:
			report.Sent++
		case OutcomeFailed:
			report.Failed++
		case OutcomeSkipped:
			report.Skipped++
		}
		report.Results = append(report.Results, result)
	}

	log.Printf("[Dispatcher] Campaign %s done: %d sent, %d failed, %d skipped of %d",
		campaign.ID, report.Sent, report.Failed, report.Skipped, report.Total)
	return report, nil
}

// sendOne handles a single recipient: rotation assignment, render, send,
// and outcome persist. It never returns an error; every path produces a
// tagged result.
func (d *Dispatcher) sendOne(ctx context.Context, campaign *domain.Campaign, pool map[string]*domain.EmailAccount, r domain.CampaignRecipient) RecipientResult {
	result := RecipientResult{RecipientID: r.ID, Email: r.Email}

	// Recipients already resolved by an earlier (interrupted) run keep
	// their recorded outcome; each recipient is attempted exactly once.
	if r.Status != domain.RecipientPending {
		result.Outcome = OutcomeSkipped
		result.Reason = "already " + string(r.Status)
		return result
	}

	accountID, assigned := d.resolveAccount(campaign, r)
	result.AccountID = accountID
	account, ok := pool[accountID]
	if !ok {
		// Pre-assigned account fell out of from_account_ids; invariant
		// violation recorded against the recipient, batch continues.
		result.Outcome = OutcomeFailed
		result.Reason = fmt.Sprintf("assigned account %s not in sender pool", accountID)
		d.persistFailure(ctx, r.ID, result.Reason)
		return result
	}
	if assigned {
		if err := d.recipients.AssignRecipientAccount(ctx, r.ID, accountID); err != nil {
			result.Outcome = OutcomeFailed
			result.Reason = fmt.Sprintf("assign account: %v", err)
			d.persistFailure(ctx, r.ID, result.Reason)
			return result
		}
	}

	subject := campaign.Subjects[r.Position%len(campaign.Subjects)]
	body, err := d.templates.Render(campaign.ID, campaign.BodyHTML, mailing.RecipientContext(r.Email))
	if err != nil {
		// Render falls back to the raw template; an unpersonalized send
		// beats a lost recipient.
		log.Printf("[Dispatcher] Campaign %s: render fallback for %s: %v",
			campaign.ID, logger.RedactEmail(r.Email), err)
	}

	sendErr := d.transport.Send(ctx, account, transport.Message{
		To:       r.Email,
		Subject:  subject,
		BodyHTML: body,
	})
	if sendErr != nil {
		result.Outcome = OutcomeFailed
		result.Reason = sendErr.Error()
		d.persistFailure(ctx, r.ID, result.Reason)
		return result
	}

	if err := d.recipients.MarkRecipientSent(ctx, r.ID, time.Now().UTC(), account.Email, body); err != nil {
		// The mail went out; losing the audit row must not re-send, so
		// the result stays sent and the persist error is logged.
		log.Printf("[Dispatcher] Campaign %s: persist sent outcome for %s failed: %v",
			campaign.ID, r.ID, err)
	}
	result.Outcome = OutcomeSent
	return result
}

// resolveAccount returns the sender account for a recipient and whether it
// was assigned now (by positional rotation) rather than pre-assigned.
func (d *Dispatcher) resolveAccount(campaign *domain.Campaign, r domain.CampaignRecipient) (string, bool) {
	if r.AccountID != nil && *r.AccountID != "" {
		return *r.AccountID, false
	}
	return campaign.FromAccountIDs[r.Position%len(campaign.FromAccountIDs)], true
}

func (d *Dispatcher) persistFailure(ctx context.Context, recipientID, reason string) {
	if err := d.recipients.MarkRecipientFailed(ctx, recipientID, reason); err != nil {
		log.Printf("[Dispatcher] persist failed outcome for %s: %v", recipientID, err)
	}
}
