package transport

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/command"
	"github.com/pitabwire/repairdesk/internal/form"
	"github.com/pitabwire/repairdesk/internal/metadata"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/model"
)

// IdempotencyKeyHeader carries the client's key for a form submit.
const IdempotencyKeyHeader = "X-Idempotency-Key"

// replayHeader is set on a submit answered from the idempotency store.
const replayHeader = "X-Idempotent-Replay"

// Field changes accepted by POST /ui/sections/{id}/form/change.
const (
	ChangeSet       = "set"
	ChangeText      = "text"
	ChangeToggle    = "toggle"
	ChangeTypeTag   = "type_tag"
	ChangeCommitTag = "commit_tag"
	ChangeRemoveTag = "remove_tag"
)

type openRequest struct {
	Mode     string `json:"mode"`
	RecordID string `json:"record_id,omitempty"`
}

type changeRequest struct {
	Op      string `json:"op"`
	Key     string `json:"key"`
	Value   any    `json:"value,omitempty"`
	Text    string `json:"text,omitempty"`
	Option  string `json:"option,omitempty"`
	Checked bool   `json:"checked,omitempty"`
	Index   int    `json:"index,omitempty"`
}

// submitRequest may carry final field values, applied before validation.
type submitRequest struct {
	Values map[string]any `json:"values,omitempty"`
}

func dialogResponse(e *section.Editor) model.DialogResponse {
	return model.DialogResponse{Data: metadata.DescribeDialog(e)}
}

func handleGetForm(pages *metadata.PageProvider) http.HandlerFunc {
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

		e, err := s.OpenEditor(sc.ws)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, dialogResponse(e))
	}
}

func handleOpenForm(pages *metadata.PageProvider, metrics *observability.Metrics) http.HandlerFunc {
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
		var req openRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}
		mode, err := form.ParseMode(req.Mode)
		if err != nil {
			writeRequestError(w, r, model.NewBadRequestError(err.Error()))
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "form.open",
			observability.AttrSection.String(s.ID()),
			observability.AttrMode.String(string(mode)),
			observability.AttrRecordID.String(req.RecordID),
		)
		defer func() { observability.EndSpanWithError(span, err) }()

		sc.ws.Lock()
		defer sc.ws.Unlock()

		e, err := s.OpenDialog(ctx, sc.ws, sc.caps, mode, req.RecordID)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		metrics.RecordDialogOpened(s.ID(), string(mode))
		WriteJSON(w, http.StatusOK, dialogResponse(e))
	}
}

func handleChangeForm(pages *metadata.PageProvider) http.HandlerFunc {
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
		var req changeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}

		sc.ws.Lock()
		defer sc.ws.Unlock()

		e, err := s.OpenEditor(sc.ws)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		if err := applyChange(e, req); err != nil {
			writeRequestError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, dialogResponse(e))
	}
}

// applyChange feeds one control event into the dialog.
func applyChange(e *section.Editor, req changeRequest) error {
	switch req.Op {
	case ChangeSet:
		return e.SetValue(req.Key, req.Value)
	case ChangeText:
		return e.SetText(req.Key, req.Text)
	case ChangeToggle:
		return e.ToggleOption(req.Key, req.Option, req.Checked)
	case ChangeTypeTag:
		_, err := e.TypeTag(req.Key, req.Text)
		return err
	case ChangeCommitTag:
		_, err := e.CommitTag(req.Key)
		return err
	case ChangeRemoveTag:
		return e.RemoveTag(req.Key, req.Index)
	}
	return model.NewBadRequestError(fmt.Sprintf("unknown form change %q", req.Op))
}

// handleSubmitForm validates and submits the open dialog. A rejected submit
// is a 200 with success false and the field errors; the dialog stays open.
// With an idempotency key, a repeated accepted submit is answered from the
// store without touching the dialog.
func handleSubmitForm(pages *metadata.PageProvider, guard *command.Guard, metrics *observability.Metrics) http.HandlerFunc {
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
		var req submitRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}

		ctx, span := observability.StartSpan(r.Context(), "form.submit",
			observability.AttrSection.String(s.ID()),
		)
		defer func() { observability.EndSpanWithError(span, err) }()

		sc.ws.Lock()
		defer sc.ws.Unlock()

		sub := command.Submission{
			Subject: sc.rctx.SubjectID,
			Section: s.ID(),
			Key:     r.Header.Get(IdempotencyKeyHeader),
			Input:   req,
		}
		resp, replayed, err := guard.Do(ctx, sub, func(ctx context.Context) (model.CommandResponse, error) {
			return submitDialog(ctx, s, sc.ws, req, metrics)
		})
		span.SetAttributes(observability.AttrReplayed.Bool(replayed))
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		if replayed {
			mode, _ := resp.Result["mode"].(string)
			metrics.RecordFormSubmission(s.ID(), mode, observability.OutcomeReplayed)
			w.Header().Set(replayHeader, "true")
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func submitDialog(ctx context.Context, s *section.Section, desk section.Desk, req submitRequest, metrics *observability.Metrics) (model.CommandResponse, error) {
	e, err := s.OpenEditor(desk)
	if err != nil {
		return model.CommandResponse{}, err
	}
	mode := string(e.Mode())
	if err := e.SetValues(req.Values); err != nil {
		return model.CommandResponse{}, err
	}

	res, err := e.Submit(ctx)
	if err != nil {
		metrics.RecordFormSubmission(s.ID(), mode, observability.OutcomeError)
		return model.CommandResponse{}, err
	}
	if !res.Accepted() {
		metrics.RecordFormSubmission(s.ID(), mode, observability.OutcomeRejected)
		for _, fe := range res.Errors {
			metrics.RecordValidationFailure(s.ID(), fe.Field, fe.Code)
		}
		observability.RequestLogger(ctx, zap.NewNop()).Debug("form rejected",
			zap.String("section", s.ID()),
			zap.Int("errors", len(res.Errors)),
		)
		desc := metadata.DescribeDialog(e)
		return model.CommandResponse{
			Success: false,
			Message: "One or more fields are invalid",
			Errors:  res.Errors,
			Dialog:  &desc,
		}, nil
	}

	metrics.RecordFormSubmission(s.ID(), mode, observability.OutcomeAccepted)
	result := map[string]any{"mode": mode, "outcome": string(res.Outcome)}
	if saved := e.Saved(); saved != nil {
		result["record_id"] = e.RecordID()
		result["record"] = saved
		metrics.SetStoreRecords(s.ID(), s.Store().Len())
	}
	return model.CommandResponse{Success: true, Message: "Saved", Result: result}, nil
}

func handleDeleteForm(pages *metadata.PageProvider, metrics *observability.Metrics) http.HandlerFunc {
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

		ctx, span := observability.StartSpan(r.Context(), "form.delete",
			observability.AttrSection.String(s.ID()),
		)
		defer func() { observability.EndSpanWithError(span, err) }()

		sc.ws.Lock()
		defer sc.ws.Unlock()

		e, err := s.OpenEditor(sc.ws)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		id := e.RecordID()
		if err = e.Delete(ctx); err != nil {
			writeRequestError(w, r, err)
			return
		}
		metrics.SetStoreRecords(s.ID(), s.Store().Len())
		WriteJSON(w, http.StatusOK, model.CommandResponse{
			Success: true,
			Result:  map[string]any{"deleted": id},
		})
	}
}

func handleCloseForm(pages *metadata.PageProvider) http.HandlerFunc {
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

		e, err := s.OpenEditor(sc.ws)
		if err != nil {
			writeRequestError(w, r, err)
			return
		}
		e.Close()
		WriteJSON(w, http.StatusOK, dialogResponse(e))
	}
}
