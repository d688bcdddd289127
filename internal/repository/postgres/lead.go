package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/lead"
)

// LeadRepo persists prospect records captured from inbound replies or
// manual entry. The campaign core only writes leads; reporting over them
// lives elsewhere.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

func (r *LeadRepo) CreateLead(ctx context.Context, l *domain.Lead) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	thread := l.Thread
	if thread == nil {
		thread = json.RawMessage("[]")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads (id, user_id, from_email, to_email, thread, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`, l.ID, l.UserID, l.FromEmail, l.ToEmail, []byte(thread), l.Source)
	if err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	return nil
}

func (r *LeadRepo) GetLead(ctx context.Context, userID, id string) (*domain.Lead, error) {
	l := &domain.Lead{}
	var thread []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, from_email, to_email, thread, source, created_at
		FROM leads WHERE id = $1 AND user_id = $2
	`, id, userID).Scan(&l.ID, &l.UserID, &l.FromEmail, &l.ToEmail, &thread, &l.Source, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, lead.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	l.Thread = json.RawMessage(thread)
	return l, nil
}

// FindLeadByEmail returns the user's lead for a sender address, or nil
// when none exists.
func (r *LeadRepo) FindLeadByEmail(ctx context.Context, userID, fromEmail string) (*domain.Lead, error) {
	l := &domain.Lead{}
	var thread []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, from_email, to_email, thread, source, created_at
		FROM leads WHERE user_id = $1 AND from_email = $2
		ORDER BY created_at DESC LIMIT 1
	`, userID, fromEmail).Scan(&l.ID, &l.UserID, &l.FromEmail, &l.ToEmail, &thread, &l.Source, &l.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find lead by email: %w", err)
	}
	l.Thread = json.RawMessage(thread)
	return l, nil
}

func (r *LeadRepo) ListLeads(ctx context.Context, userID string, limit, offset int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, from_email, to_email, thread, source, created_at
		FROM leads WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		var l domain.Lead
		var thread []byte
		if err := rows.Scan(&l.ID, &l.UserID, &l.FromEmail, &l.ToEmail, &thread, &l.Source, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		l.Thread = json.RawMessage(thread)
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *LeadRepo) DeleteLead(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM leads WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("delete lead: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return lead.ErrNotFound
	}
	return nil
}
