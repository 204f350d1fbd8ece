package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	mw "github.com/leadforge/leadforge/internal/api/middleware"
	"github.com/leadforge/leadforge/internal/api/response"
	"github.com/leadforge/leadforge/internal/store"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// NewListLeadsHandler returns the handler for GET /api/v1/leads.
func NewListLeadsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		q := r.URL.Query()
		filter := store.LeadFilter{
			AccountID:          accountID,
			VerificationStatus: q.Get("verification_status"),
			ExportStatus:       q.Get("export_status"),
		}

		if raw := q.Get("client_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid client_id", nil)
				return
			}
			filter.ClientID = &id
		}
		if raw := q.Get("job_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid job_id", nil)
				return
			}
			filter.JobID = &id
		}

		filter.Page = parsePositiveInt(q.Get("page"), 1)
		filter.Limit = parsePositiveInt(q.Get("limit"), defaultPageLimit)
		if filter.Limit > maxPageLimit {
			filter.Limit = maxPageLimit
		}

		leads, total, err := s.ListLeads(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list leads", nil)
			return
		}

		response.Collection(w, leads, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

func parsePositiveInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
