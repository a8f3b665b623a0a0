package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HandleFindAll handles GET requests to find documents with filter criteria
func (h *Handler) HandleFindAll(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]

	log.Debug().Str("collection", collName).Msg("handleFindAll called")

	// Parse query parameters to build filter
	filter := make(map[string]interface{})
	queryParams := r.URL.Query()

	for key, values := range queryParams {
		if len(values) > 0 {
			value := values[0] // Take first value if multiple provided

			// Try to convert to number if possible
			if num, err := strconv.ParseFloat(value, 64); err == nil {
				filter[key] = num
			} else if num, err := strconv.ParseInt(value, 10, 64); err == nil {
				filter[key] = num
			} else {
				// Treat as string
				filter[key] = value
			}
		}
	}

	// Use the unified FindAll method with filter
	result, err := h.storage.FindAll(collName, filter, nil)
	if err != nil {
		log.Error().Err(err).Str("collection", collName).Msg("collection not found")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	docs := result.Documents

	log.Debug().Str("collection", collName).Int("count", len(docs)).Interface("filter", filter).Msg("find completed")
	h.observeQuery(collName, filter, nil, "")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}
