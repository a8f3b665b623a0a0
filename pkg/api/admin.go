package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// AdvisorReport is the read-only surface the engine exposes for the
// admin/reporting endpoints: the live QuerySet, the most recently
// computed recommendations per namespace, the last reconciliation result,
// and a manual sync trigger (spec §9, "admin reporting").
type AdvisorReport interface {
	Profiles() []*domain.QueryProfile
	Recommended() map[string]*domain.IndexSet
	LastResult(namespace string) (result interface{}, ok bool)
	TriggerSync() error
}

// AdminHandler serves the index advisor's reporting and control endpoints.
// It is separate from Handler because these routes report on the advisor
// engine, not on the document store.
type AdminHandler struct {
	report AdvisorReport
}

// NewAdminHandler creates an AdminHandler over report.
func NewAdminHandler(report AdvisorReport) *AdminHandler {
	return &AdminHandler{report: report}
}

// RegisterRoutes registers the admin endpoints with router.
func (h *AdminHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/querysets", h.HandleQuerySets).Methods("GET")
	router.HandleFunc("/admin/recommended", h.HandleRecommended).Methods("GET")
	router.HandleFunc("/admin/recommended/{coll}", h.HandleRecommendedForCollection).Methods("GET")
	router.HandleFunc("/admin/sync", h.HandleTriggerSync).Methods("POST")
}

// queryProfileView is the JSON shape for one reported QueryProfile.
type queryProfileView struct {
	Namespace  string                  `json:"namespace"`
	Exact      []string                `json:"exact"`
	Sort       []domain.SortKey        `json:"sort"`
	Range      []string                `json:"range"`
	UsageCount int64                   `json:"usageCount"`
	Candidates []*domain.CompoundIndex `json:"candidates"`
}

// HandleQuerySets reports every live observed query profile.
func (h *AdminHandler) HandleQuerySets(w http.ResponseWriter, r *http.Request) {
	profiles := h.report.Profiles()
	views := make([]queryProfileView, 0, len(profiles))
	for _, p := range profiles {
		views = append(views, queryProfileView{
			Namespace:  p.Namespace,
			Exact:      p.Exact.Ordered(),
			Sort:       p.Sort,
			Range:      p.Range.Ordered(),
			UsageCount: p.UsageCount,
			Candidates: p.Candidates,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// HandleRecommended reports the currently recommended IndexSet for every
// namespace the engine has computed recommendations for.
func (h *AdminHandler) HandleRecommended(w http.ResponseWriter, r *http.Request) {
	recommended := h.report.Recommended()
	out := make(map[string][]*domain.CompoundIndex, len(recommended))
	for namespace, set := range recommended {
		out[namespace] = set.All()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// HandleRecommendedForCollection reports one namespace's recommended
// indexes plus its most recent reconciliation result.
func (h *AdminHandler) HandleRecommendedForCollection(w http.ResponseWriter, r *http.Request) {
	collName := mux.Vars(r)["coll"]

	recommended := h.report.Recommended()
	set, ok := recommended[collName]
	if !ok {
		http.Error(w, "no recommendations computed for this collection yet", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"collection":  collName,
		"recommended": set.All(),
	}
	if result, ok := h.report.LastResult(collName); ok {
		response["lastReconciliation"] = result
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// HandleTriggerSync runs one synchronization cycle immediately, out of
// band from the regular interval (spec §9, "manual sync trigger").
func (h *AdminHandler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if err := h.report.TriggerSync(); err != nil {
		log.Error().Err(err).Msg("manual sync trigger failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
