package api

import (
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/autoindex/idxadvisor/pkg/domain"
)

// QueryObserver receives one observed query as it is served, so the index
// advisor engine can fold it into its live QuerySet. *storesource.DataSource
// implements this.
type QueryObserver interface {
	RecordQuery(namespace string, query, sort primitive.D, indexKeyPattern string)
}

// Handler provides HTTP handlers for the database API
type Handler struct {
	storage  domain.StorageEngine
	indexer  domain.IndexEngine
	observer QueryObserver
}

// NewHandler creates a new API handler with dependency injection
func NewHandler(storage domain.StorageEngine, indexer domain.IndexEngine) *Handler {
	return &Handler{
		storage: storage,
		indexer: indexer,
	}
}

// SetQueryObserver attaches the index advisor's query observer. Handlers
// that serve a filtered find report every query through it; nil (the
// zero value) disables reporting, e.g. in tests.
func (h *Handler) SetQueryObserver(observer QueryObserver) {
	h.observer = observer
}

// observeQuery reports a served query to the attached observer, if any.
// filter is this package's flat equality-filter map; it is rendered as an
// ordered predicate in map iteration order, since this embedded store has
// no query planner of its own to preserve a caller-specified order.
func (h *Handler) observeQuery(collName string, filter map[string]interface{}, sort primitive.D, indexKeyPattern string) {
	if h.observer == nil {
		return
	}
	query := make(primitive.D, 0, len(filter))
	for k, v := range filter {
		query = append(query, primitive.E{Key: k, Value: v})
	}
	h.observer.RecordQuery(collName, query, sort, indexKeyPattern)
}
