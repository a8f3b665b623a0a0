package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HandleGetIndexes handles GET requests to retrieve all indexes for a collection
func (h *Handler) HandleGetIndexes(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]

	log.Debug().Str("collection", collName).Msg("handleGetIndexes called")

	// Get all indexes for the collection
	indexes, err := h.indexer.GetIndexes(collName)
	if err != nil {
		log.Error().Err(err).Str("collection", collName).Msg("failed to get indexes")
		WriteJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Prepare response
	response := map[string]interface{}{
		"success":     true,
		"collection":  collName,
		"indexes":     indexes,
		"index_count": len(indexes),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	log.Debug().Str("collection", collName).Int("count", len(indexes)).Msg("indexes retrieved")
}
