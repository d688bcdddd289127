package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/campaign"
	"github.com/ignite/outreach/internal/worker"
)

// CampaignAPI handles campaign CRUD and the immediate-send endpoint.
type CampaignAPI struct {
	svc    *campaign.Service
	runner *worker.Runner
}

// NewCampaignAPI creates the campaign route group.
func NewCampaignAPI(svc *campaign.Service, runner *worker.Runner) *CampaignAPI {
	return &CampaignAPI{svc: svc, runner: runner}
}

// RegisterRoutes registers campaign routes.
func (a *CampaignAPI) RegisterRoutes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", a.HandleList)
		r.Post("/", a.HandleCreate)
		r.Get("/{id}", a.HandleGet)
		r.Get("/{id}/recipients", a.HandleRecipients)
		r.Post("/{id}/send", a.HandleSendNow)
	})
}

// HandleList returns the user's campaigns, newest first.
// GET /api/campaigns?status=&limit=&offset=
func (a *CampaignAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	f := campaign.ListFilter{
		Status: r.URL.Query().Get("status"),
	}
	f.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	f.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	campaigns, total, err := a.svc.List(r.Context(), userID(r), f)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}
	httputil.OK(w, map[string]any{
		"campaigns": campaigns,
		"total":     total,
	})
}

// HandleCreate creates a campaign with its recipient list.
// POST /api/campaigns
func (a *CampaignAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input campaign.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}

	c, err := a.svc.Create(r.Context(), userID(r), input)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	// Immediate campaigns dispatch as soon as they are created, off the
	// request so a dropped client does not abort mid-send.
	if input.SendType == domain.SendImmediate {
		go a.dispatch(c)
	}

	httputil.Created(w, c)
}

// HandleGet returns a single campaign.
// GET /api/campaigns/{id}
func (a *CampaignAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, c)
}

// HandleRecipients returns the campaign's recipients with send outcomes.
// GET /api/campaigns/{id}/recipients
func (a *CampaignAPI) HandleRecipients(w http.ResponseWriter, r *http.Request) {
	recipients, err := a.svc.Recipients(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	if recipients == nil {
		recipients = []domain.CampaignRecipient{}
	}
	httputil.OK(w, map[string]any{"recipients": recipients})
}

// HandleSendNow dispatches a scheduled campaign right away, through the
// same claim discipline as the scheduler. A campaign already picked up by
// a worker responds 409.
// POST /api/campaigns/{id}/send
func (a *CampaignAPI) HandleSendNow(w http.ResponseWriter, r *http.Request) {
	c, err := a.svc.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, campaign.ErrNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	if c.Status != domain.CampaignScheduled {
		httputil.Conflict(w, campaign.ErrAlreadyDispatched.Error())
		return
	}

	go a.dispatch(c)
	httputil.JSON(w, http.StatusAccepted, map[string]string{
		"id":     c.ID,
		"status": "dispatching",
	})
}

// dispatch runs the claim/dispatch/finalize cycle detached from the
// request. A lost claim just means a worker got there first.
func (a *CampaignAPI) dispatch(c *domain.Campaign) {
	claimed, report, err := a.runner.Run(context.Background(), c)
	switch {
	case err != nil:
		log.Printf("[API] Campaign %s dispatch failed: %v", c.ID, err)
	case !claimed:
		log.Printf("[API] Campaign %s already claimed by a worker", c.ID)
	default:
		log.Printf("[API] Campaign %s completed: %d sent, %d failed of %d",
			c.ID, report.Sent, report.Failed, report.Total)
	}
}
