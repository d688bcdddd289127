package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
	"github.com/ignite/outreach/internal/service/lead"
)

// LeadAPI handles the lead admin surface.
type LeadAPI struct {
	svc *lead.Service
}

// NewLeadAPI creates the lead route group.
func NewLeadAPI(svc *lead.Service) *LeadAPI {
	return &LeadAPI{svc: svc}
}

// RegisterRoutes registers lead routes.
func (a *LeadAPI) RegisterRoutes(r chi.Router) {
	r.Route("/leads", func(r chi.Router) {
		r.Get("/", a.HandleList)
		r.Post("/", a.HandleCreate)
		r.Get("/{id}", a.HandleGet)
		r.Delete("/{id}", a.HandleDelete)
	})
}

// HandleList returns the user's leads, newest first.
// GET /api/leads?limit=&offset=
func (a *LeadAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	leads, err := a.svc.List(r.Context(), userID(r), limit, offset)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	httputil.OK(w, map[string]any{"leads": leads})
}

// HandleCreate records a manually captured lead.
// POST /api/leads
func (a *LeadAPI) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		FromEmail string `json:"from_email"`
		ToEmail   string `json:"to_email"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}

	l, err := a.svc.CreateManual(r.Context(), userID(r), input.FromEmail, input.ToEmail)
	if err != nil {
		if errors.Is(err, lead.ErrMissingEmail) {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, l)
}

// HandleGet returns a single lead.
// GET /api/leads/{id}
func (a *LeadAPI) HandleGet(w http.ResponseWriter, r *http.Request) {
	l, err := a.svc.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, l)
}

// HandleDelete removes a lead.
// DELETE /api/leads/{id}
func (a *LeadAPI) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			httputil.NotFound(w, "lead not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}
