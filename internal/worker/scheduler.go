package worker

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/distlock"
)

const (
	// DefaultSchedulerPollInterval is how often the loop checks for due
	// campaigns.
	DefaultSchedulerPollInterval = time.Minute

	// DefaultSchedulerBatchLimit caps the campaigns examined per tick.
	DefaultSchedulerBatchLimit = 10

	// storeQueryTimeout bounds the bookkeeping queries a tick runs
	// (reclaim, list). Dispatch itself is not tick-bounded.
	storeQueryTimeout = 30 * time.Second
)

// Scheduler polls for due campaigns and drives each through the Runner.
// Multiple instances may run concurrently across hosts: the distributed
// lock skips contested campaigns cheaply, and the conditional DB claim is
// what actually guarantees at-most-one dispatch.
type Scheduler struct {
	runner      *Runner
	store       SchedulerStore
	db          *sql.DB       // advisory-lock fallback + worker registry
	redisClient *redis.Client // optional; nil falls back to PG advisory locks

	workerID     string
	pollInterval time.Duration
	batchLimit   int
	registry     *registry

	// Stats
	campaignsDispatched int64
	campaignsFailed     int64
	claimsLost          int64
	errors              int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// SchedulerConfig holds the scheduler loop settings.
type SchedulerConfig struct {
	PollInterval time.Duration
	BatchLimit   int
}

// NewScheduler creates a campaign scheduler.
func NewScheduler(runner *Runner, store SchedulerStore, db *sql.DB, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultSchedulerPollInterval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultSchedulerBatchLimit
	}
	workerID := newWorkerID("scheduler")
	return &Scheduler{
		runner:       runner,
		store:        store,
		db:           db,
		workerID:     workerID,
		pollInterval: cfg.PollInterval,
		batchLimit:   cfg.BatchLimit,
		registry:     newRegistry(db, workerID, "scheduler"),
	}
}

// SetRedisClient sets the Redis client for distributed locking.
func (s *Scheduler) SetRedisClient(client *redis.Client) {
	s.redisClient = client
}

// Start begins the scheduler polling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[Scheduler] Starting with poll interval: %v", s.pollInterval)
	s.registry.register()

	s.wg.Add(1)
	go s.heartbeatLoop()

	s.wg.Add(1)
	go s.loop()

	return nil
}

// Stop gracefully stops the scheduler, letting an in-flight tick finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Printf("[Scheduler] Stopping...")
	s.cancel()
	s.wg.Wait()
	s.registry.deregister()
	log.Printf("[Scheduler] Stopped. Dispatched: %d, failed: %d, claims lost: %d",
		atomic.LoadInt64(&s.campaignsDispatched),
		atomic.LoadInt64(&s.campaignsFailed),
		atomic.LoadInt64(&s.claimsLost))
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick runs one scheduling pass. Errors are logged and counted, never
// propagated: the next tick must always run.
func (s *Scheduler) tick() {
	now := time.Now().UTC()

	qctx, qcancel := context.WithTimeout(s.ctx, storeQueryTimeout)
	defer qcancel()

	// Free campaigns whose claim expired (dispatcher crashed mid-send)
	// before looking for new work.
	if n, err := s.store.ReclaimStale(qctx, now); err != nil {
		log.Printf("[Scheduler] Error reclaiming stale campaigns: %v", err)
		atomic.AddInt64(&s.errors, 1)
	} else if n > 0 {
		log.Printf("[Scheduler] Reclaimed %d stale sending campaigns", n)
	}

	due, err := s.store.ListDue(qctx, now, s.batchLimit)
	if err != nil {
		log.Printf("[Scheduler] Error listing due campaigns: %v", err)
		atomic.AddInt64(&s.errors, 1)
		return
	}

	// A large recipient list may legitimately outlast the poll interval,
	// so dispatch runs under the claim TTL rather than the tick. A worker
	// that dies mid-send is handled by ReclaimStale, not by this context.
	for i := range due {
		ctx, cancel := context.WithTimeout(s.ctx, s.runner.claimTTL)
		s.processCampaign(ctx, &due[i])
		cancel()
	}
}

func (s *Scheduler) processCampaign(ctx context.Context, c *domain.Campaign) {
	// Cross-host fast path: skip campaigns another instance is working
	// on without burning a DB round trip. Correctness does not depend on
	// this lock; the conditional claim below is authoritative.
	lock := distlock.NewLock(s.redisClient, s.db, fmt.Sprintf("campaign:%s", c.ID), s.runner.claimTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error acquiring lock for campaign %s: %v", c.ID, err)
		return
	}
	if !acquired {
		log.Printf("[Scheduler] Campaign %s is being processed by another worker", c.ID)
		return
	}
	defer lock.Release(ctx)

	claimed, report, err := s.runner.Run(ctx, c)
	switch {
	case err != nil:
		log.Printf("[Scheduler] Campaign %s failed: %v", c.ID, err)
		atomic.AddInt64(&s.campaignsFailed, 1)
	case !claimed:
		atomic.AddInt64(&s.claimsLost, 1)
	default:
		log.Printf("[Scheduler] Campaign %s completed: %d sent, %d failed of %d",
			c.ID, report.Sent, report.Failed, report.Total)
		atomic.AddInt64(&s.campaignsDispatched, 1)
	}
}

func (s *Scheduler) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.registry.heartbeat(fmt.Sprintf(
				`{"dispatched": %d, "failed": %d, "claims_lost": %d, "errors": %d}`,
				atomic.LoadInt64(&s.campaignsDispatched),
				atomic.LoadInt64(&s.campaignsFailed),
				atomic.LoadInt64(&s.claimsLost),
				atomic.LoadInt64(&s.errors)))
		}
	}
}
