package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/httputil"
)

// AccountLister lists the sender accounts owned by a user.
type AccountLister interface {
	ListUserAccounts(ctx context.Context, userID string) ([]domain.EmailAccount, error)
}

// AccountAPI exposes the user's configured sender accounts. Accounts are
// provisioned out of band; this surface is read-only.
type AccountAPI struct {
	accounts AccountLister
}

// NewAccountAPI creates the account route group.
func NewAccountAPI(accounts AccountLister) *AccountAPI {
	return &AccountAPI{accounts: accounts}
}

// RegisterRoutes registers account routes.
func (a *AccountAPI) RegisterRoutes(r chi.Router) {
	r.Get("/accounts", a.HandleList)
}

// HandleList returns the user's sender accounts. Credentials never leave
// the struct's json tags.
// GET /api/accounts
func (a *AccountAPI) HandleList(w http.ResponseWriter, r *http.Request) {
	accounts, err := a.accounts.ListUserAccounts(r.Context(), userID(r))
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if accounts == nil {
		accounts = []domain.EmailAccount{}
	}
	httputil.OK(w, map[string]any{"accounts": accounts})
}
