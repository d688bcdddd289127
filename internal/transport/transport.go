// Package transport defines the outbound mail collaborator: given a sender
// account and a rendered message, deliver it or report a typed failure.
// The dispatcher records failures per recipient and keeps going, so
// implementations should return errors rather than retry internally.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/outreach/internal/domain"
)

// Message is a fully-rendered email ready for delivery. Subject rotation
// and body rendering happen before a message reaches the transport.
type Message struct {
	To       string
	Subject  string
	BodyHTML string
}

// Transport sends one email through a configured sender account.
type Transport interface {
	Send(ctx context.Context, account *domain.EmailAccount, msg Message) error
}

// Error is a typed send failure. Permanent failures (rejected address,
// provider policy refusal) and transient ones (timeout, throttling) are
// handled identically by the dispatcher today, but the distinction is kept
// for a future retry pass.
type Error struct {
	Permanent bool
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s send failure: %s: %v", kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s send failure: %s", kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent transport failure.
func IsPermanent(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Permanent
}
