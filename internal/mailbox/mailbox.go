// Package mailbox implements the inbound side of a sender account: polling
// one mailbox for messages newer than the last recorded checkpoint. The
// sync worker calls Poll per account and advances the checkpoint through
// the store on success.
package mailbox

import (
	"context"

	"github.com/ignite/outreach/internal/domain"
)

// Client polls one mailbox for new messages. Implementations must treat
// each call as independent: a failed poll leaves the checkpoint untouched
// so the next tick retries the same window.
type Client interface {
	// Poll returns messages with UIDs strictly greater than sinceUID,
	// oldest first, up to the implementation's fetch limit.
	Poll(ctx context.Context, account *domain.EmailAccount, sinceUID uint32) ([]domain.InboundMessage, error)
}
