package transport

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/metadata"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/table"
	"github.com/pitabwire/repairdesk/model"
)

// View interactions accepted by POST /ui/sections/{id}/view.
const (
	InteractionSearch       = "search"
	InteractionFilter       = "filter"
	InteractionClearFilters = "clear_filters"
	InteractionSort         = "sort"
	InteractionPage         = "page"
	InteractionPageSize     = "page_size"
	InteractionReset        = "reset"
)

type viewRequest struct {
	Interaction string `json:"interaction"`
	Query       string `json:"query,omitempty"`
	Key         string `json:"key,omitempty"`
	Value       string `json:"value,omitempty"`
	Page        int    `json:"page,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

type actionRequest struct {
	Action string `json:"action"`
	RowID  string `json:"row_id,omitempty"`
}

func handleGetSection(pages *metadata.PageProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}
		desc, err := pages.GetTable(sc.caps, chi.URLParam(r, "id"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleGetRows(pages *metadata.PageProvider, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}
		s, err := pages.DataSection(sc.caps, chi.URLParam(r, "id"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}

		sc.ws.Lock()
		defer sc.ws.Unlock()

		v := sc.ws.View(s.ID(), s.Bound(sc.ws, sc.caps))
		etag := rowsETag(s.Store().Version(), sc.caps, v)
		w.Header().Set("ETag", etag)
		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		WriteJSON(w, http.StatusOK, renderPage(pages, metrics, s, v, "rows"))
	}
}

// rowsETag identifies one rendering of a page: the store version, the view
// state, and the capabilities that decide which row actions are offered.
func rowsETag(version uint64, caps model.CapabilitySet, v *table.View) string {
	sortKey, dir := v.Sort()
	state, _ := json.Marshal(struct {
		Query    string            `json:"q"`
		Filters  map[string]string `json:"f"`
		SortKey  string            `json:"s"`
		SortDir  table.Direction   `json:"d"`
		Page     int               `json:"p"`
		PageSize int               `json:"n"`
		Caps     []string          `json:"c"`
	}{v.Query(), v.Filters(), sortKey, dir, v.Page(), v.PageSize(), slices.Sorted(maps.Keys(caps))})
	sum := sha256.Sum256(state)
	return fmt.Sprintf(`W/"%d-%s"`, version, hex.EncodeToString(sum[:8]))
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		if c := strings.TrimSpace(candidate); c == etag || c == "*" {
			return true
		}
	}
	return false
}

func handleView(pages *metadata.PageProvider, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}
		s, err := pages.DataSection(sc.caps, chi.URLParam(r, "id"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		var req viewRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}

		_, span := observability.StartSpan(r.Context(), "table.view",
			observability.AttrSection.String(s.ID()),
			observability.AttrInteraction.String(req.Interaction),
		)
		defer func() { observability.EndSpanWithError(span, err) }()

		sc.ws.Lock()
		defer sc.ws.Unlock()

		v := sc.ws.View(s.ID(), s.Bound(sc.ws, sc.caps))
		if err = applyInteraction(v, req); err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, renderPage(pages, metrics, s, v, req.Interaction))
	}
}

// applyInteraction changes v as the user's table control would.
func applyInteraction(v *table.View, req viewRequest) error {
	switch req.Interaction {
	case InteractionSearch:
		v.SetQuery(req.Query)
	case InteractionFilter:
		return v.SetFilter(req.Key, req.Value)
	case InteractionClearFilters:
		v.ClearFilters()
	case InteractionSort:
		return v.ToggleSort(req.Key)
	case InteractionPage:
		v.SetPage(req.Page)
	case InteractionPageSize:
		return v.SetPageSize(req.PageSize)
	case InteractionReset:
		v.Reset()
	default:
		return model.NewBadRequestError(fmt.Sprintf("unknown view interaction %q", req.Interaction))
	}
	return nil
}

func renderPage(pages *metadata.PageProvider, metrics *observability.Metrics, s *section.Section, v *table.View, interaction string) model.TableResponse {
	start := time.Now()
	payload := pages.Page(s, v)
	metrics.RecordTableQuery(s.ID(), interaction, payload.TotalCount, time.Since(start))
	return model.TableResponse{Data: payload}
}

// targetKinds are the clicks a table accepts.
var targetKinds = map[string]table.TargetKind{
	string(table.TargetRow):    table.TargetRow,
	string(table.TargetEdit):   table.TargetEdit,
	string(table.TargetDelete): table.TargetDelete,
	string(table.TargetCreate): table.TargetCreate,
}

// handleAction dispatches a click on a row, a row button, or the create
// button. Clicks that open a dialog answer with the dialog; a delete answers
// with the ID of the removed record.
func handleAction(pages *metadata.PageProvider, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}
		s, err := pages.DataSection(sc.caps, chi.URLParam(r, "id"))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		var req actionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}
		kind, known := targetKinds[req.Action]
		if !known {
			writeRequestError(w, r, model.NewBadRequestError(fmt.Sprintf("unknown table action %q", req.Action)))
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "table.action",
			observability.AttrSection.String(s.ID()),
			observability.AttrAction.String(req.Action),
			observability.AttrRecordID.String(req.RowID),
		)
		defer func() { observability.EndSpanWithError(span, err) }()

		sc.ws.Lock()
		defer sc.ws.Unlock()

		v := sc.ws.View(s.ID(), s.Bound(sc.ws, sc.caps))
		err = s.Dispatch(ctx, sc.ws, sc.caps, v, table.Target{Kind: kind, RowID: req.RowID})
		metrics.RecordRowAction(s.ID(), req.Action, err)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}

		observability.RequestLogger(ctx, zap.NewNop()).Debug("table action",
			zap.String("section", s.ID()),
			zap.String("action", req.Action),
			zap.String("row_id", req.RowID),
		)

		if kind == table.TargetDelete {
			metrics.SetStoreRecords(s.ID(), s.Store().Len())
			WriteJSON(w, http.StatusOK, model.CommandResponse{
				Success: true,
				Result:  map[string]any{"deleted": req.RowID},
			})
			return
		}

		resp := model.CommandResponse{Success: true}
		if e := sc.ws.Editor(s.ID()); e != nil && e.IsOpen() {
			metrics.RecordDialogOpened(s.ID(), string(e.Mode()))
			desc := metadata.DescribeDialog(e)
			resp.Dialog = &desc
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}
