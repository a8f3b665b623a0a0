package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// HandleInsert handles POST requests to insert documents into collections
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]

	log.Debug().Str("collection", collName).Msg("handleInsert called")

	var doc map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		log.Error().Err(err).Msg("decoding request body failed")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Convert map to domain.Document
	document := domain.Document{}
	for k, v := range doc {
		document[k] = v
	}

	if err := h.storage.Insert(collName, document); err != nil {
		log.Error().Err(err).Str("collection", collName).Msg("insert failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Debug().Str("collection", collName).Msg("insert successful")
	w.WriteHeader(http.StatusCreated)
}
