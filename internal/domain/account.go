package domain

import "time"

// EmailAccount is a configured sender mailbox owned by a user. The
// dispatcher reads accounts for rotation; the mailbox sync worker polls
// each account's inbox for inbound activity. Only the sync worker writes
// the checkpoint fields.
type EmailAccount struct {
	ID       string `json:"id" db:"id"`
	UserID   string `json:"user_id" db:"user_id"`
	Email    string `json:"email" db:"email"`
	Provider string `json:"provider" db:"provider"`

	IMAPHost     string `json:"imap_host" db:"imap_host"`
	IMAPPort     int    `json:"imap_port" db:"imap_port"`
	IMAPUsername string `json:"-" db:"imap_username"`
	IMAPPassword string `json:"-" db:"imap_password"`

	// LastSyncedUID is the mailbox checkpoint: the highest IMAP UID the
	// sync worker has already seen for this account.
	LastSyncedUID uint32     `json:"last_synced_uid" db:"last_synced_uid"`
	LastSyncedAt  *time.Time `json:"last_synced_at" db:"last_synced_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// InboundMessage is one message discovered by the mailbox sync worker,
// forwarded to the lead-detection sink. It is a value object, not a
// persisted entity of this core.
type InboundMessage struct {
	AccountID  string    `json:"account_id"`
	UID        uint32    `json:"uid"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet"`
	ReceivedAt time.Time `json:"received_at"`
}
