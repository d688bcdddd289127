package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// ErrAccountNotFound is returned when a sender account does not exist.
var ErrAccountNotFound = errors.New("email account not found")

// AccountRepo provides read access to sender accounts plus the mailbox
// checkpoint writes performed by the sync worker. The dispatcher only
// reads accounts.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `
	id, user_id, email, provider,
	COALESCE(imap_host,''), COALESCE(imap_port,0),
	COALESCE(imap_username,''), COALESCE(imap_password,''),
	last_synced_uid, last_synced_at, created_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*domain.EmailAccount, error) {
	a := &domain.EmailAccount{}
	var lastSyncedAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.UserID, &a.Email, &a.Provider,
		&a.IMAPHost, &a.IMAPPort,
		&a.IMAPUsername, &a.IMAPPassword,
		&a.LastSyncedUID, &lastSyncedAt, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSyncedAt.Valid {
		a.LastSyncedAt = &lastSyncedAt.Time
	}
	return a, nil
}

func (r *AccountRepo) GetAccount(ctx context.Context, id string) (*domain.EmailAccount, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM email_accounts WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// ListAccounts returns every configured account, for the sync worker's
// poll loop.
func (r *AccountRepo) ListAccounts(ctx context.Context) ([]domain.EmailAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM email_accounts ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListUserAccounts returns a user's accounts for the admin surface.
func (r *AccountRepo) ListUserAccounts(ctx context.Context, userID string) ([]domain.EmailAccount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM email_accounts WHERE user_id = $1 ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.EmailAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AdvanceCheckpoint moves an account's mailbox checkpoint forward. The
// UID guard keeps a slow concurrent poll from rewinding the checkpoint.
func (r *AccountRepo) AdvanceCheckpoint(ctx context.Context, accountID string, uid uint32, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE email_accounts
		SET last_synced_uid = $2, last_synced_at = $3
		WHERE id = $1 AND last_synced_uid < $2
	`, accountID, int64(uid), at)
	if err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}
