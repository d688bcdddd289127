package api

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/campaign"
	"github.com/ignite/outreach/internal/service/followup"
	"github.com/ignite/outreach/internal/worker"
)

// FollowupAPI handles follow-up eligibility, preview and creation.
type FollowupAPI struct {
	svc    *followup.Service
	runner *worker.Runner
}

// NewFollowupAPI creates the follow-up route group.
func NewFollowupAPI(svc *followup.Service, runner *worker.Runner) *FollowupAPI {
	return &FollowupAPI{svc: svc, runner: runner}
}

// RegisterRoutes registers follow-up routes under a parent campaign.
func (a *FollowupAPI) RegisterRoutes(r chi.Router) {
	r.Route("/campaigns/{id}/followup", func(r chi.Router) {
		r.Get("/eligibility", a.HandleEligibility)
		r.Get("/preview", a.HandlePreview)
		r.Post("/", a.HandleCreate)
	})
}

// HandleEligibility reports whether a parent campaign can be followed up,
// and why not when it can't.
// GET /api/campaigns/{id}/followup/eligibility
func (a *FollowupAPI) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	elig, _, err := a.svc.CheckEligibility(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, elig)
}

// HandlePreview returns the sender-to-recipients plan a follow-up would
// use, without creating one.
// GET /api/campaigns/{id}/followup/preview
func (a *FollowupAPI) HandlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := a.svc.PreviewFollowup(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	httputil.OK(w, preview)
}

// HandleCreate derives and dispatches a follow-up campaign.
// POST /api/campaigns/{id}/followup
func (a *FollowupAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input followup.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	input.ParentID = chi.URLParam(r, "id")

	c, err := a.svc.Create(r.Context(), userID(r), input)
	if err != nil {
		a.writeError(w, err)
		return
	}

	// Follow-ups are due immediately; dispatch off the request rather
	// than waiting for the next scheduler tick.
	go func() {
		claimed, report, err := a.runner.Run(context.Background(), c)
		switch {
		case err != nil:
			log.Printf("[API] Follow-up %s dispatch failed: %v", c.ID, err)
		case !claimed:
			log.Printf("[API] Follow-up %s already claimed by a worker", c.ID)
		default:
			log.Printf("[API] Follow-up %s completed: %d sent, %d failed of %d",
				c.ID, report.Sent, report.Failed, report.Total)
		}
	}()

	httputil.Created(w, c)
}

func (a *FollowupAPI) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		httputil.NotFound(w, "campaign not found")
	case errors.Is(err, followup.ErrAlreadyFollowedUp):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, followup.ErrParentNotCompleted),
		errors.Is(err, followup.ErrParentIsFollowup),
		errors.Is(err, followup.ErrParentTooRecent),
		errors.Is(err, followup.ErrEmptyPitch),
		errors.Is(err, followup.ErrNoSenderAccounts):
		httputil.BadRequest(w, err.Error())
	default:
		httputil.InternalError(w, err)
	}
}
