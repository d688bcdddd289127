package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/domain"
)

// SchedulerStore is the slice of the store the scheduler and the
// immediate-send path drive campaigns through.
type SchedulerStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Campaign, error)
	ClaimForSending(ctx context.Context, id string, claimTTL time.Duration) (bool, error)
	Finalize(ctx context.Context, id string, status domain.CampaignStatus) error
	ReclaimStale(ctx context.Context, now time.Time) (int, error)
}

// CampaignDispatcher sends every pending recipient of a claimed campaign.
// Implemented by dispatch.Dispatcher.
type CampaignDispatcher interface {
	Dispatch(ctx context.Context, c *domain.Campaign) (*dispatch.Report, error)
}

// Runner drives one campaign through the claim -> dispatch -> finalize
// discipline. Both the scheduler loop and the immediate-send request path
// go through Run, so the at-most-one-dispatch guarantee holds no matter
// which door a campaign enters by.
type Runner struct {
	store      SchedulerStore
	dispatcher CampaignDispatcher
	claimTTL   time.Duration
}

// NewRunner creates a campaign runner.
func NewRunner(store SchedulerStore, dispatcher CampaignDispatcher, claimTTL time.Duration) *Runner {
	if claimTTL <= 0 {
		claimTTL = 30 * time.Minute
	}
	return &Runner{store: store, dispatcher: dispatcher, claimTTL: claimTTL}
}

// Run claims and dispatches a single campaign. Returns claimed=false when
// another worker holds the campaign (not an error; the caller skips
// silently). When claimed, the campaign always reaches a terminal status:
// completed if the send loop ran to the end (recipient failures included),
// failed if dispatch could not start at all.
func (r *Runner) Run(ctx context.Context, c *domain.Campaign) (claimed bool, report *dispatch.Report, err error) {
	claimed, err = r.store.ClaimForSending(ctx, c.ID, r.claimTTL)
	if err != nil {
		return false, nil, fmt.Errorf("claim campaign %s: %w", c.ID, err)
	}
	if !claimed {
		return false, nil, nil
	}

	report, dispatchErr := r.dispatcher.Dispatch(ctx, c)
	if dispatchErr != nil {
		log.Printf("[Runner] Campaign %s dispatch failed: %v", c.ID, dispatchErr)
		if finErr := r.store.Finalize(ctx, c.ID, domain.CampaignFailed); finErr != nil {
			log.Printf("[Runner] Campaign %s: finalize failed-status error: %v", c.ID, finErr)
		}
		return true, nil, dispatchErr
	}

	if finErr := r.store.Finalize(ctx, c.ID, domain.CampaignCompleted); finErr != nil {
		return true, report, fmt.Errorf("finalize campaign %s: %w", c.ID, finErr)
	}
	return true, report, nil
}
