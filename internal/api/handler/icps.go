package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	mw "github.com/leadforge/leadforge/internal/api/middleware"
	"github.com/leadforge/leadforge/internal/api/response"
	"github.com/leadforge/leadforge/internal/store"
	"github.com/leadforge/leadforge/pkg/models"
)

// NewCreateICPHandler returns the handler for POST /api/v1/icps.
func NewCreateICPHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		var req struct {
			Name         string   `json:"name"`
			JobTitles    []string `json:"job_titles"`
			Industries   []string `json:"industries"`
			Keywords     []string `json:"keywords"`
			Country      string   `json:"country"`
			City         string   `json:"city"`
			HeadcountMin int      `json:"headcount_min"`
			HeadcountMax int      `json:"headcount_max"`
			FundingStage string   `json:"funding_stage"`
			Technologies []string `json:"technologies"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
			return
		}
		if req.Country != "" && req.City != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"country and city are mutually exclusive", nil)
			return
		}
		if req.HeadcountMin > 0 && req.HeadcountMax > 0 && req.HeadcountMin > req.HeadcountMax {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"headcount_min must not exceed headcount_max", nil)
			return
		}

		now := time.Now().UTC()
		icp := &models.ICP{
			ID:           uuid.New(),
			AccountID:    accountID,
			Name:         req.Name,
			JobTitles:    orEmpty(req.JobTitles),
			Industries:   orEmpty(req.Industries),
			Keywords:     orEmpty(req.Keywords),
			Country:      req.Country,
			City:         req.City,
			HeadcountMin: req.HeadcountMin,
			HeadcountMax: req.HeadcountMax,
			FundingStage: req.FundingStage,
			Technologies: orEmpty(req.Technologies),
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.CreateICP(r.Context(), icp); err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create ICP", nil)
			return
		}

		response.Created(w, icp)
	}
}

// NewListICPsHandler returns the handler for GET /api/v1/icps.
func NewListICPsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := mw.GetAccountID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing account", nil)
			return
		}

		icps, err := s.ListICPs(r.Context(), accountID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list ICPs", nil)
			return
		}

		response.JSON(w, icps)
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
