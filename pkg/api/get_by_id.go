package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// HandleGetById handles GET requests to retrieve a specific document by ID
func (h *Handler) HandleGetById(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]
	docId := vars["id"]

	log.Debug().Str("collection", collName).Str("id", docId).Msg("handleGetById called")

	doc, err := h.storage.GetById(collName, docId)
	if err != nil {
		log.Error().Err(err).Str("collection", collName).Str("id", docId).Msg("document not found")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	log.Debug().Str("collection", collName).Str("id", docId).Msg("document retrieved")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
