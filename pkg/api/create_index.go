package api

import (
	"encoding/json"
	"net/http"

	"github.com/autoindex/idxadvisor/pkg/domain"
	"github.com/gorilla/mux"
)

// HandleCreateIndex creates a manual single-field ascending index on a
// collection and indexes the documents already in it. Compound indexes
// driven by the advisor are created through the storage engine's
// CreateCompoundIndex, not through this endpoint.
func (h *Handler) HandleCreateIndex(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	collName := vars["coll"]
	fieldName := vars["field"]

	if fieldName == "" {
		http.Error(w, "field name is required", http.StatusBadRequest)
		return
	}

	// Prevent creating index on _id (it's automatically created)
	if fieldName == domain.PrimaryKeyPath {
		http.Error(w, "cannot create index on _id field (automatically indexed)", http.StatusBadRequest)
		return
	}

	idx := domain.NewCompoundIndex(collName, domain.IndexKey{Path: fieldName, Direction: domain.Ascending})
	var err error
	if builder, ok := h.storage.(interface {
		CreateIndex(collName, fieldName string) error
	}); ok {
		err = builder.CreateIndex(collName, fieldName)
	} else {
		err = h.indexer.CreateIndex(collName, idx)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"success":    true,
		"message":    "Index created successfully",
		"collection": collName,
		"field":      fieldName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)
}
