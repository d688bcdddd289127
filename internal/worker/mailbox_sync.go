package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/mailbox"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// DefaultMailboxPollInterval is how often every configured mailbox is
// polled for new messages.
const DefaultMailboxPollInterval = time.Minute

// SyncAccountStore is the slice of the store the sync worker reads
// accounts from and writes checkpoints to.
type SyncAccountStore interface {
	ListAccounts(ctx context.Context) ([]domain.EmailAccount, error)
	AdvanceCheckpoint(ctx context.Context, accountID string, uid uint32, at time.Time) error
}

// LeadSink receives newly discovered inbound messages. Lead detection
// itself lives downstream; the sync worker only forwards.
type LeadSink interface {
	HandleInbound(ctx context.Context, msgs []domain.InboundMessage) error
}

// MailboxSync polls every configured sender mailbox on its own ticker,
// independent of the scheduler's timer and failure domain. One account's
// failure never prevents polling the rest or crashes the worker.
type MailboxSync struct {
	accounts SyncAccountStore
	client   mailbox.Client
	sink     LeadSink

	workerID     string
	pollInterval time.Duration
	registry     *registry

	// Stats
	polls         int64
	messagesFound int64
	accountErrors int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewMailboxSync creates a mailbox sync worker. db is used only for the
// worker registry and may be nil in tests.
func NewMailboxSync(accounts SyncAccountStore, client mailbox.Client, sink LeadSink, db *sql.DB, pollInterval time.Duration) *MailboxSync {
	if pollInterval <= 0 {
		pollInterval = DefaultMailboxPollInterval
	}
	workerID := newWorkerID("mailbox-sync")
	return &MailboxSync{
		accounts:     accounts,
		client:       client,
		sink:         sink,
		workerID:     workerID,
		pollInterval: pollInterval,
		registry:     newRegistry(db, workerID, "mailbox-sync"),
	}
}

// Start begins the sync polling loop.
func (m *MailboxSync) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("mailbox sync already running")
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()

	log.Printf("[MailboxSync] Starting with poll interval: %v", m.pollInterval)
	m.registry.register()

	m.wg.Add(1)
	go m.heartbeatLoop()

	m.wg.Add(1)
	go m.loop()

	return nil
}

// Stop gracefully stops the sync worker.
func (m *MailboxSync) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	log.Printf("[MailboxSync] Stopping...")
	m.cancel()
	m.wg.Wait()
	m.registry.deregister()
	log.Printf("[MailboxSync] Stopped. Polls: %d, messages: %d, account errors: %d",
		atomic.LoadInt64(&m.polls),
		atomic.LoadInt64(&m.messagesFound),
		atomic.LoadInt64(&m.accountErrors))
}

func (m *MailboxSync) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.syncAll()
		}
	}
}

// syncAll polls every account once. Tick-level errors are logged and the
// loop continues on the next tick.
func (m *MailboxSync) syncAll() {
	qctx, qcancel := context.WithTimeout(m.ctx, storeQueryTimeout)
	accounts, err := m.accounts.ListAccounts(qctx)
	qcancel()
	if err != nil {
		log.Printf("[MailboxSync] Error listing accounts: %v", err)
		return
	}

	// Each account gets its own deadline so a slow mailbox early in the
	// list cannot starve the ones polled after it.
	for i := range accounts {
		ctx, cancel := context.WithTimeout(m.ctx, m.pollInterval)
		err := m.syncAccount(ctx, &accounts[i])
		cancel()
		if err != nil {
			// Isolated per account: log and keep going.
			log.Printf("[MailboxSync] Account %s poll failed: %v",
				logger.RedactEmail(accounts[i].Email), err)
			atomic.AddInt64(&m.accountErrors, 1)
		}
	}
}

// syncAccount polls one mailbox and advances its checkpoint. The
// checkpoint only moves after the sink has accepted the messages, so a
// sink failure replays the same window next tick instead of dropping it.
func (m *MailboxSync) syncAccount(ctx context.Context, account *domain.EmailAccount) error {
	atomic.AddInt64(&m.polls, 1)

	msgs, err := m.client.Poll(ctx, account, account.LastSyncedUID)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	atomic.AddInt64(&m.messagesFound, int64(len(msgs)))
	log.Printf("[MailboxSync] Account %s: %d new messages",
		logger.RedactEmail(account.Email), len(msgs))

	if m.sink != nil {
		if err := m.sink.HandleInbound(ctx, msgs); err != nil {
			return fmt.Errorf("forward inbound: %w", err)
		}
	}

	maxUID := account.LastSyncedUID
	for _, msg := range msgs {
		if msg.UID > maxUID {
			maxUID = msg.UID
		}
	}
	if err := m.accounts.AdvanceCheckpoint(ctx, account.ID, maxUID, time.Now().UTC()); err != nil {
		return fmt.Errorf("advance checkpoint: %w", err)
	}
	return nil
}

func (m *MailboxSync) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.registry.heartbeat(fmt.Sprintf(
				`{"polls": %d, "messages": %d, "account_errors": %d}`,
				atomic.LoadInt64(&m.polls),
				atomic.LoadInt64(&m.messagesFound),
				atomic.LoadInt64(&m.accountErrors)))
		}
	}
}
