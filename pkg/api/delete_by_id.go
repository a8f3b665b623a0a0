package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HandleDeleteById handles DELETE requests to remove a specific document by ID
func (h *Handler) HandleDeleteById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]
	docId := vars["id"]

	log.Debug().Str("collection", collName).Str("id", docId).Msg("handleDeleteById called")

	if err := h.storage.DeleteById(collName, docId); err != nil {
		log.Error().Err(err).Str("collection", collName).Str("id", docId).Msg("delete failed")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	// Save collection to disk if transaction saves are enabled
	if err := h.storage.SaveCollectionAfterTransaction(collName); err != nil {
		log.Warn().Err(err).Str("collection", collName).Msg("failed to save collection after delete")
		// Don't fail the request if save fails, just log the warning
	}

	log.Debug().Str("collection", collName).Str("id", docId).Msg("document deleted")
	w.WriteHeader(http.StatusNoContent)
}
