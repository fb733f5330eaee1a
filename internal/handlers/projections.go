package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/a1betting/prop-engine/internal/models"
)

const (
	defaultMinValue      = 0.05
	defaultMinConfidence = 0.7
)

// opportunityQuery holds the filters accepted by the opportunities listing
type opportunityQuery struct {
	MinValue      float64 `validate:"gte=0"`
	MinConfidence float64 `validate:"gte=0,lte=1"`
}

// ListProjections returns current projections, optionally narrowed by
// ?league= (exact, case-insensitive) or ?player= (name substring).
func (h *Handler) ListProjections(w http.ResponseWriter, r *http.Request) {
	league := strings.TrimSpace(r.URL.Query().Get("league"))
	player := strings.TrimSpace(r.URL.Query().Get("player"))

	var projections []models.Projection
	switch {
	case league != "" && player != "":
		for _, p := range h.svc.GetProjectionsByPlayer(player) {
			if strings.EqualFold(p.League, league) {
				projections = append(projections, p)
			}
		}
	case league != "":
		projections = h.svc.GetProjectionsByLeague(league)
	case player != "":
		projections = h.svc.GetProjectionsByPlayer(player)
	default:
		projections = h.svc.GetCurrentProjections()
	}
	if projections == nil {
		projections = []models.Projection{}
	}

	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"projections": projections,
		"count":       len(projections),
	})
}

func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.svc.GetProjection(id)
	if !ok {
		h.errorResponse(w, http.StatusNotFound, "projection not found")
		return
	}
	h.jsonResponse(w, http.StatusOK, p)
}

// GetAnalysis returns the live analysis for a projection. A projection that
// exists but has not been analyzed yet is reported as 404 too.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := h.svc.GetAnalysis(id)
	if !ok {
		h.errorResponse(w, http.StatusNotFound, "analysis not available")
		return
	}
	h.jsonResponse(w, http.StatusOK, a)
}

func (h *Handler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	q := opportunityQuery{MinValue: defaultMinValue, MinConfidence: defaultMinConfidence}

	var err error
	if v := r.URL.Query().Get("min_value"); v != "" {
		if q.MinValue, err = strconv.ParseFloat(v, 64); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "min_value must be a number")
			return
		}
	}
	if v := r.URL.Query().Get("min_confidence"); v != "" {
		if q.MinConfidence, err = strconv.ParseFloat(v, 64); err != nil {
			h.errorResponse(w, http.StatusBadRequest, "min_confidence must be a number")
			return
		}
	}
	if err := h.validator.Struct(q); err != nil {
		h.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	opps := h.svc.GetHighValueOpportunities(q.MinValue, q.MinConfidence)
	h.opportunityResponse(w, opps)
}

func (h *Handler) LatestOpportunities(w http.ResponseWriter, r *http.Request) {
	h.opportunityResponse(w, h.svc.GetLatestOpportunities())
}

func (h *Handler) opportunityResponse(w http.ResponseWriter, opps []models.Opportunity) {
	if opps == nil {
		opps = []models.Opportunity{}
	}
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"opportunities": opps,
		"count":         len(opps),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, h.svc.GetServiceStats())
}
