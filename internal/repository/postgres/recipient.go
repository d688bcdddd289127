package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// Recipient methods of CampaignRepo. Recipient rows are mutated exactly
// once by the dispatcher; the pending-status guards below make a second
// mutation a no-op rather than an overwrite.

func (r *CampaignRepo) ListRecipients(ctx context.Context, campaignID string) ([]domain.CampaignRecipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, email, account_id, position, status,
		       sent_at, COALESCE(sent_from_email,''), COALESCE(sent_body_html,''),
		       COALESCE(error,''), created_at
		FROM campaign_recipients
		WHERE campaign_id = $1
		ORDER BY position ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.CampaignRecipient
	for rows.Next() {
		var rec domain.CampaignRecipient
		var accountID sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(
			&rec.ID, &rec.CampaignID, &rec.Email, &accountID, &rec.Position, &rec.Status,
			&sentAt, &rec.SentFromEmail, &rec.SentBodyHTML,
			&rec.Error, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		if accountID.Valid {
			rec.AccountID = &accountID.String
		}
		if sentAt.Valid {
			rec.SentAt = &sentAt.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AssignRecipientAccount fixes the rotation assignment. Conditional on the
// account still being unset so an assignment is never overwritten.
func (r *CampaignRepo) AssignRecipientAccount(ctx context.Context, recipientID, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET account_id = $2
		WHERE id = $1 AND account_id IS NULL
	`, recipientID, accountID)
	if err != nil {
		return fmt.Errorf("assign recipient account: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkRecipientSent(ctx context.Context, recipientID string, sentAt time.Time, fromEmail, bodyHTML string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'sent', sent_at = $2, sent_from_email = $3, sent_body_html = $4
		WHERE id = $1 AND status = 'pending'
	`, recipientID, sentAt, fromEmail, bodyHTML)
	if err != nil {
		return fmt.Errorf("mark recipient sent: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkRecipientFailed(ctx context.Context, recipientID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'failed', error = $2
		WHERE id = $1 AND status = 'pending'
	`, recipientID, reason)
	if err != nil {
		return fmt.Errorf("mark recipient failed: %w", err)
	}
	return nil
}
