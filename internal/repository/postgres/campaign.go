// Package postgres implements the store interfaces against PostgreSQL.
// All cross-worker coordination runs through conditional updates here;
// there is no separate lock service in the correctness path.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, user_id, name, status, send_type, scheduled_at,
	subjects, COALESCE(body_html,''), from_account_ids,
	parent_campaign_id, claim_expires_at,
	started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var parentID sql.NullString
	var claimExpires, scheduledAt, startedAt, completedAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Status, &c.SendType, &scheduledAt,
		pq.Array(&c.Subjects), &c.BodyHTML, pq.Array(&c.FromAccountIDs),
		&parentID, &claimExpires,
		&startedAt, &completedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		c.ParentCampaignID = &parentID.String
	}
	if claimExpires.Valid {
		c.ClaimExpiresAt = &claimExpires.Time
	}
	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	if startedAt.Valid {
		c.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		c.CompletedAt = &completedAt.Time
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, userID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1 AND user_id = $2
	`, id, userID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, userID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	countQ := `SELECT COUNT(*) FROM campaigns WHERE user_id = $1`
	countArgs := []interface{}{userID}
	if f.Status != "" {
		countQ += ` AND status = $2`
		countArgs = append(countArgs, f.Status)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE user_id = $1`
	args := []interface{}{userID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// Create inserts the campaign and its pending recipient rows in a single
// transaction, so a half-created campaign can never be claimed.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign, recipients []campaign.RecipientInput) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, user_id, name, status, send_type, scheduled_at,
			 subjects, body_html, from_account_ids, parent_campaign_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`, c.ID, c.UserID, c.Name, c.Status, c.SendType, c.ScheduledAt,
		pq.Array(c.Subjects), c.BodyHTML, pq.Array(c.FromAccountIDs), c.ParentCampaignID)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO campaign_recipients
			(id, campaign_id, email, account_id, position, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', NOW())
	`)
	if err != nil {
		return fmt.Errorf("prepare recipients: %w", err)
	}
	defer stmt.Close()

	for i, rec := range recipients {
		var accountID interface{}
		if rec.AccountID != "" {
			accountID = rec.AccountID
		}
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), c.ID, rec.Email, accountID, i); err != nil {
			return fmt.Errorf("insert recipient %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (r *CampaignRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE status = 'scheduled' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ClaimForSending performs the atomic scheduled->sending transition. The
// WHERE clause re-checks the status so two concurrent claims can never
// both succeed: the loser's UPDATE matches zero rows.
func (r *CampaignRepo) ClaimForSending(ctx context.Context, id string, claimTTL time.Duration) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sending',
		    started_at = NOW(),
		    claim_expires_at = NOW() + $2 * INTERVAL '1 second',
		    updated_at = NOW()
		WHERE id = $1 AND status = 'scheduled'
	`, id, int(claimTTL.Seconds()))
	if err != nil {
		return false, fmt.Errorf("claim campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Finalize moves a sending campaign to a terminal status. Conditional on
// the row still being in sending, so a reclaimed-and-redispatched campaign
// cannot be finalized twice.
func (r *CampaignRepo) Finalize(ctx context.Context, id string, status domain.CampaignStatus) error {
	if status != domain.CampaignCompleted && status != domain.CampaignFailed {
		return fmt.Errorf("finalize to non-terminal status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, completed_at = NOW(), claim_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'sending'
	`, id, status)
	if err != nil {
		return fmt.Errorf("finalize campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// ReclaimStale frees campaigns whose dispatcher died mid-send: sending
// rows past their claim deadline go back to scheduled for re-claim.
// Recipients already marked sent are skipped by the next dispatch.
func (r *CampaignRepo) ReclaimStale(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'scheduled', claim_expires_at = NULL, updated_at = NOW()
		WHERE status = 'sending' AND claim_expires_at IS NOT NULL AND claim_expires_at < $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale campaigns: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *CampaignRepo) FindCompletedFollowup(ctx context.Context, parentID string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE parent_campaign_id = $1 AND status = 'completed'
		LIMIT 1
	`, parentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find completed follow-up: %w", err)
	}
	return c, nil
}
