package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

type memSyncStore struct {
	mu          sync.Mutex
	accounts    []domain.EmailAccount
	checkpoints map[string]uint32
}

func (s *memSyncStore) ListAccounts(_ context.Context) ([]domain.EmailAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EmailAccount(nil), s.accounts...), nil
}

func (s *memSyncStore) AdvanceCheckpoint(_ context.Context, accountID string, uid uint32, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if uid > s.checkpoints[accountID] {
		s.checkpoints[accountID] = uid
	}
	return nil
}

// fakeMailbox serves canned messages per account, can fail selected
// accounts, and can make an account slow to answer.
type fakeMailbox struct {
	mu       sync.Mutex
	messages map[string][]domain.InboundMessage
	failFor  map[string]bool
	delay    map[string]time.Duration
	polled   map[string]uint32 // accountID -> sinceUID seen
	ctxErr   map[string]error  // accountID -> ctx state after any delay
}

func (f *fakeMailbox) Poll(ctx context.Context, account *domain.EmailAccount, sinceUID uint32) ([]domain.InboundMessage, error) {
	f.mu.Lock()
	delay := f.delay[account.ID]
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.polled == nil {
		f.polled = map[string]uint32{}
	}
	if f.ctxErr == nil {
		f.ctxErr = map[string]error{}
	}
	f.polled[account.ID] = sinceUID
	f.ctxErr[account.ID] = ctx.Err()
	if f.failFor[account.ID] {
		return nil, errors.New("imap login failed")
	}
	var out []domain.InboundMessage
	for _, m := range f.messages[account.ID] {
		if m.UID > sinceUID {
			out = append(out, m)
		}
	}
	return out, nil
}

type recordingSink struct {
	mu       sync.Mutex
	received []domain.InboundMessage
	err      error
}

func (s *recordingSink) HandleInbound(_ context.Context, msgs []domain.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.received = append(s.received, msgs...)
	return nil
}

func syncAccountFixture(id string, lastUID uint32) domain.EmailAccount {
	return domain.EmailAccount{ID: id, UserID: "u1", Email: id + "@sender.io", LastSyncedUID: lastUID}
}

func inbound(accountID string, uid uint32) domain.InboundMessage {
	return domain.InboundMessage{
		AccountID:  accountID,
		UID:        uid,
		From:       "prospect@lead.io",
		To:         accountID + "@sender.io",
		Subject:    "Re: Quick question",
		ReceivedAt: time.Now().UTC(),
	}
}

func newTestSync(store *memSyncStore, client *fakeMailbox, sink *recordingSink) *MailboxSync {
	return NewMailboxSync(store, client, sink, nil, time.Minute)
}

func TestSyncAllAdvancesCheckpoint(t *testing.T) {
	store := &memSyncStore{
		accounts:    []domain.EmailAccount{syncAccountFixture("a1", 10)},
		checkpoints: map[string]uint32{},
	}
	client := &fakeMailbox{messages: map[string][]domain.InboundMessage{
		"a1": {inbound("a1", 11), inbound("a1", 14), inbound("a1", 12)},
	}}
	sink := &recordingSink{}

	m := newTestSync(store, client, sink)
	m.ctx = context.Background()
	m.syncAll()

	if client.polled["a1"] != 10 {
		t.Errorf("polled since UID %d, want checkpoint 10", client.polled["a1"])
	}
	if len(sink.received) != 3 {
		t.Fatalf("sink received %d messages, want 3", len(sink.received))
	}
	if store.checkpoints["a1"] != 14 {
		t.Errorf("checkpoint = %d, want max UID 14", store.checkpoints["a1"])
	}
}

func TestSyncAccountErrorsAreIsolated(t *testing.T) {
	store := &memSyncStore{
		accounts: []domain.EmailAccount{
			syncAccountFixture("broken", 0),
			syncAccountFixture("healthy", 0),
		},
		checkpoints: map[string]uint32{},
	}
	client := &fakeMailbox{
		messages: map[string][]domain.InboundMessage{"healthy": {inbound("healthy", 5)}},
		failFor:  map[string]bool{"broken": true},
	}
	sink := &recordingSink{}

	m := newTestSync(store, client, sink)
	m.ctx = context.Background()
	m.syncAll()

	if len(sink.received) != 1 {
		t.Fatalf("sink received %d messages, want the healthy account's 1", len(sink.received))
	}
	if store.checkpoints["healthy"] != 5 {
		t.Errorf("healthy checkpoint = %d, want 5", store.checkpoints["healthy"])
	}
	if store.checkpoints["broken"] != 0 {
		t.Errorf("broken checkpoint moved to %d", store.checkpoints["broken"])
	}
}

func TestSyncHoldsCheckpointOnSinkFailure(t *testing.T) {
	store := &memSyncStore{
		accounts:    []domain.EmailAccount{syncAccountFixture("a1", 0)},
		checkpoints: map[string]uint32{},
	}
	client := &fakeMailbox{messages: map[string][]domain.InboundMessage{
		"a1": {inbound("a1", 3)},
	}}
	sink := &recordingSink{err: errors.New("db unavailable")}

	m := newTestSync(store, client, sink)
	m.ctx = context.Background()
	m.syncAll()

	// Checkpoint must not move past messages the sink never accepted;
	// the same window replays next tick.
	if store.checkpoints["a1"] != 0 {
		t.Errorf("checkpoint = %d after sink failure, want 0", store.checkpoints["a1"])
	}

	sink.err = nil
	m.syncAll()
	if store.checkpoints["a1"] != 3 {
		t.Errorf("checkpoint = %d after recovery, want 3", store.checkpoints["a1"])
	}
	if len(sink.received) != 1 {
		t.Errorf("sink received %d messages after replay, want 1", len(sink.received))
	}
}

func TestSyncNoNewMessagesLeavesCheckpoint(t *testing.T) {
	store := &memSyncStore{
		accounts:    []domain.EmailAccount{syncAccountFixture("a1", 42)},
		checkpoints: map[string]uint32{"a1": 42},
	}
	client := &fakeMailbox{}
	sink := &recordingSink{}

	m := newTestSync(store, client, sink)
	m.ctx = context.Background()
	m.syncAll()

	if store.checkpoints["a1"] != 42 {
		t.Errorf("checkpoint = %d, want untouched 42", store.checkpoints["a1"])
	}
	if len(sink.received) != 0 {
		t.Error("sink called with no messages")
	}
}

func TestMailboxSyncStartStop(t *testing.T) {
	store := &memSyncStore{checkpoints: map[string]uint32{}}
	m := NewMailboxSync(store, &fakeMailbox{}, &recordingSink{}, nil, 10*time.Millisecond)

	if err := m.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := m.Start(); err == nil {
		t.Error("second Start() did not fail")
	}
	time.Sleep(30 * time.Millisecond)
	m.Stop()
	// Stop again is a no-op.
	m.Stop()
}

func TestSyncSlowAccountDoesNotStarveOthers(t *testing.T) {
	store := &memSyncStore{
		accounts: []domain.EmailAccount{
			syncAccountFixture("slow", 0),
			syncAccountFixture("a2", 0),
		},
		checkpoints: map[string]uint32{},
	}
	// The first mailbox answers well after a full poll interval; the
	// second must still be polled under a live context.
	client := &fakeMailbox{
		messages: map[string][]domain.InboundMessage{"a2": {inbound("a2", 7)}},
		delay:    map[string]time.Duration{"slow": 50 * time.Millisecond},
	}
	sink := &recordingSink{}

	m := NewMailboxSync(store, client, sink, nil, 20*time.Millisecond)
	m.ctx = context.Background()
	m.syncAll()

	if err := client.ctxErr["a2"]; err != nil {
		t.Fatalf("second account polled with dead context: %v", err)
	}
	if store.checkpoints["a2"] != 7 {
		t.Errorf("a2 checkpoint = %d, want 7", store.checkpoints["a2"])
	}
}
