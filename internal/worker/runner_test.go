package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
)

// memSchedulerStore implements SchedulerStore with the same conditional
// transition semantics as the SQL store.
type memSchedulerStore struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	finalized map[string]domain.CampaignStatus
}

func newMemSchedulerStore(campaigns ...*domain.Campaign) *memSchedulerStore {
	s := &memSchedulerStore{
		campaigns: map[string]*domain.Campaign{},
		finalized: map[string]domain.CampaignStatus{},
	}
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *memSchedulerStore) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Campaign
	for _, c := range s.campaigns {
		if c.Status == domain.CampaignScheduled && c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, *c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memSchedulerStore) ClaimForSending(_ context.Context, id string, claimTTL time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.Status != domain.CampaignScheduled {
		return false, nil
	}
	c.Status = domain.CampaignSending
	expires := time.Now().UTC().Add(claimTTL)
	c.ClaimExpiresAt = &expires
	return true, nil
}

func (s *memSchedulerStore) Finalize(_ context.Context, id string, status domain.CampaignStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok || c.Status != domain.CampaignSending {
		return nil
	}
	c.Status = status
	s.finalized[id] = status
	return nil
}

func (s *memSchedulerStore) ReclaimStale(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.campaigns {
		if c.Status == domain.CampaignSending && c.ClaimExpiresAt != nil && c.ClaimExpiresAt.Before(now) {
			c.Status = domain.CampaignScheduled
			c.ClaimExpiresAt = nil
			n++
		}
	}
	return n, nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, c *domain.Campaign) (*dispatch.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return &dispatch.Report{CampaignID: c.ID, Total: 1, Sent: 1}, nil
}

func dueCampaign(id string) *domain.Campaign {
	due := time.Now().UTC().Add(-time.Minute)
	return &domain.Campaign{
		ID:          id,
		UserID:      "u1",
		Status:      domain.CampaignScheduled,
		SendType:    domain.SendScheduled,
		ScheduledAt: &due,
	}
}

func TestRunnerClaimsAndCompletes(t *testing.T) {
	c := dueCampaign("c1")
	store := newMemSchedulerStore(c)
	d := &fakeDispatcher{}

	claimed, report, err := NewRunner(store, d, time.Minute).Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !claimed {
		t.Fatal("claim lost on an unclaimed campaign")
	}
	if report.Sent != 1 {
		t.Errorf("report sent = %d, want 1", report.Sent)
	}
	if store.finalized["c1"] != domain.CampaignCompleted {
		t.Errorf("finalized as %s, want completed", store.finalized["c1"])
	}
}

func TestRunnerSkipsLostClaimSilently(t *testing.T) {
	c := dueCampaign("c1")
	store := newMemSchedulerStore(c)
	d := &fakeDispatcher{}

	// Another worker already moved the campaign to sending.
	if ok, _ := store.ClaimForSending(context.Background(), "c1", time.Minute); !ok {
		t.Fatal("setup claim failed")
	}

	claimed, report, err := NewRunner(store, d, time.Minute).Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if claimed || report != nil {
		t.Errorf("Run() = claimed %v, report %v; want silent skip", claimed, report)
	}
	if d.calls != 0 {
		t.Errorf("dispatch called %d times after lost claim", d.calls)
	}
}

func TestRunnerFinalizesFailedOnDispatchError(t *testing.T) {
	c := dueCampaign("c1")
	store := newMemSchedulerStore(c)
	d := &fakeDispatcher{err: errors.New("no sender accounts")}

	claimed, _, err := NewRunner(store, d, time.Minute).Run(context.Background(), c)
	if !claimed {
		t.Fatal("claim lost")
	}
	if err == nil {
		t.Fatal("Run() swallowed dispatch error")
	}
	if store.finalized["c1"] != domain.CampaignFailed {
		t.Errorf("finalized as %s, want failed", store.finalized["c1"])
	}
}

func TestRunnerConcurrentClaimDispatchesOnce(t *testing.T) {
	c := dueCampaign("c1")
	store := newMemSchedulerStore(c)
	d := &fakeDispatcher{}
	runner := NewRunner(store, d, time.Minute)

	const workers = 8
	var wg sync.WaitGroup
	claims := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := runner.Run(context.Background(), c)
			if err != nil {
				t.Errorf("Run() error: %v", err)
				return
			}
			claims <- claimed
		}()
	}
	wg.Wait()
	close(claims)

	won := 0
	for claimed := range claims {
		if claimed {
			won++
		}
	}
	if won != 1 {
		t.Errorf("claims won = %d, want exactly 1", won)
	}
	if d.calls != 1 {
		t.Errorf("dispatch ran %d times, want exactly once", d.calls)
	}
}

func TestReclaimStaleReturnsExpiredClaims(t *testing.T) {
	c := dueCampaign("c1")
	store := newMemSchedulerStore(c)
	d := &fakeDispatcher{}
	runner := NewRunner(store, d, time.Millisecond)

	if claimed, _, _ := runner.Run(context.Background(), c); !claimed {
		t.Fatal("initial claim failed")
	}
	// Simulate a crash mid-send: force the campaign back to sending with
	// an expired claim.
	store.mu.Lock()
	stuck := store.campaigns["c1"]
	stuck.Status = domain.CampaignSending
	expired := time.Now().UTC().Add(-time.Hour)
	stuck.ClaimExpiresAt = &expired
	store.mu.Unlock()

	n, err := store.ReclaimStale(context.Background(), time.Now().UTC())
	if err != nil || n != 1 {
		t.Fatalf("ReclaimStale() = %d, %v; want 1 reclaimed", n, err)
	}

	claimed, _, err := runner.Run(context.Background(), c)
	if err != nil {
		t.Fatalf("Run() after reclaim error: %v", err)
	}
	if !claimed {
		t.Error("reclaimed campaign not claimable")
	}
}
