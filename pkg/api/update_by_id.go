package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// HandleUpdateById handles PATCH requests to update a specific document by ID
func (h *Handler) HandleUpdateById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]
	docId := vars["id"]

	log.Debug().Str("collection", collName).Str("id", docId).Msg("handleUpdateById called")

	var updates map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		log.Error().Err(err).Msg("decoding request body failed")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Convert map to domain.Document
	updateDoc := domain.Document{}
	for k, v := range updates {
		updateDoc[k] = v
	}

	if err := h.storage.UpdateById(collName, docId, updateDoc); err != nil {
		log.Error().Err(err).Str("collection", collName).Str("id", docId).Msg("update failed")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Save collection to disk if transaction saves are enabled
	if err := h.storage.SaveCollectionAfterTransaction(collName); err != nil {
		log.Warn().Err(err).Str("collection", collName).Msg("failed to save collection after update")
		// Don't fail the request if save fails, just log the warning
	}

	log.Debug().Str("collection", collName).Str("id", docId).Msg("document updated")
	w.WriteHeader(http.StatusOK)
}
