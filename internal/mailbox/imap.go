package mailbox

import (
	"context"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/ignite/outreach/internal/domain"
)

// IMAPClient polls mailboxes over IMAP. A fresh connection is dialed per
// poll: accounts are polled once a minute and a connection-per-poll keeps
// one account's dead server from wedging a pooled connection for the rest.
type IMAPClient struct {
	useTLS     bool
	fetchLimit int
	dialer     *net.Dialer
}

// NewIMAPClient creates an IMAP-backed mailbox client. fetchLimit caps the
// number of messages returned per poll; the remainder arrives next tick.
func NewIMAPClient(useTLS bool, fetchLimit int) *IMAPClient {
	if fetchLimit <= 0 {
		fetchLimit = 100
	}
	return &IMAPClient{
		useTLS:     useTLS,
		fetchLimit: fetchLimit,
		dialer:     &net.Dialer{Timeout: 5 * time.Second},
	}
}

// Poll connects to the account's IMAP server and returns messages with
// UIDs above sinceUID, oldest first.
func (ic *IMAPClient) Poll(ctx context.Context, account *domain.EmailAccount, sinceUID uint32) ([]domain.InboundMessage, error) {
	c, err := ic.connect(account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if err := c.Login(account.IMAPUsername, account.IMAPPassword); err != nil {
		return nil, fmt.Errorf("authenticate %s: %w", account.Email, err)
	}

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("select INBOX: %w", err)
	}

	uids, err := ic.searchSince(c, sinceUID)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	if len(uids) > ic.fetchLimit {
		uids = uids[:ic.fetchLimit]
	}

	return ic.fetchEnvelopes(c, account, uids)
}

func (ic *IMAPClient) connect(account *domain.EmailAccount) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", account.IMAPHost, account.IMAPPort)
	if ic.useTLS {
		c, err := client.DialWithDialerTLS(ic.dialer, addr, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s with TLS: %w", addr, err)
		}
		return c, nil
	}
	c, err := client.DialWithDialer(ic.dialer, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return c, nil
}

// searchSince returns the UIDs newer than sinceUID using a UID range
// search. UID ranges are inclusive, so the window starts at sinceUID+1.
func (ic *IMAPClient) searchSince(c *client.Client, sinceUID uint32) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	seqSet := new(imap.SeqSet)
	seqSet.AddRange(sinceUID+1, 0)
	criteria.Uid = seqSet

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("uid search: %w", err)
	}
	return uids, nil
}

func (ic *IMAPClient) fetchEnvelopes(c *client.Client, account *domain.EmailAccount, uids []uint32) ([]domain.InboundMessage, error) {
	seqSet := new(imap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	var out []domain.InboundMessage
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		out = append(out, envelopeToMessage(account, msg))
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("uid fetch: %w", err)
	}
	return out, nil
}

func envelopeToMessage(account *domain.EmailAccount, msg *imap.Message) domain.InboundMessage {
	m := domain.InboundMessage{
		AccountID:  account.ID,
		UID:        msg.Uid,
		To:         account.Email,
		Subject:    msg.Envelope.Subject,
		ReceivedAt: msg.Envelope.Date,
	}
	if len(msg.Envelope.From) > 0 {
		m.From = msg.Envelope.From[0].Address()
	}
	return m
}
