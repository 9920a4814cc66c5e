package transport

import (
	"net/http"
	"time"

	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/search"
)

func handleSearch(provider *search.SearchProvider, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}

		query := r.URL.Query().Get("q")
		opts := search.Options{
			Section:  r.URL.Query().Get("section"),
			Page:     queryInt(r, "page", 1),
			PageSize: queryInt(r, "page_size", 20),
		}

		start := time.Now()
		resp, err := provider.Search(r.Context(), sc.caps, query, opts)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		metrics.RecordSearch(time.Since(start))
		WriteJSON(w, http.StatusOK, resp)
	}
}
