package campaign

import "errors"

// Sentinel errors for the campaign service layer.
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrNoSubjects        = errors.New("campaign has no subject lines")
	ErrNoSenderAccounts  = errors.New("campaign has no sender accounts")
	ErrNoRecipients      = errors.New("campaign has no recipients")
	ErrInvalidSchedule   = errors.New("scheduled campaign requires a future scheduled_at")
	ErrAlreadyDispatched = errors.New("campaign is already sending or finished")
)
