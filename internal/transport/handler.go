package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/model"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// decodeJSON reads the request body into v. An empty body leaves v
// untouched. At debug level the body is logged with sensitive fields
// redacted.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewBadRequestError("request body too large")
		}
		return model.NewBadRequestError("failed to read request body")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return model.NewBadRequestError("invalid JSON request body: " + err.Error())
	}

	logger := observability.RequestLogger(r.Context(), zap.NewNop())
	if logger.Core().Enabled(zapcore.DebugLevel) {
		var raw map[string]any
		if json.Unmarshal(data, &raw) == nil {
			logger.Debug("request body",
				zap.String("path", r.URL.Path),
				zap.Any("body", observability.RedactBody(raw, nil)),
			)
		}
	}
	return nil
}

// scope is the per-request identity of an authenticated handler.
type scope struct {
	rctx *model.RequestContext
	ws   *session.Workspace
	caps model.CapabilitySet
}

// requestScope returns the caller's scope, writing 401 when the request did
// not pass the session middleware.
func requestScope(w http.ResponseWriter, r *http.Request) (scope, bool) {
	rctx := model.RequestContextFrom(r.Context())
	ws := WorkspaceFrom(r.Context())
	if rctx == nil || ws == nil {
		writeRequestError(w, r, model.NewUnauthorizedError("missing session"))
		return scope{}, false
	}
	return scope{rctx: rctx, ws: ws, caps: CapabilitiesFrom(r.Context())}, true
}

// queryInt parses an integer query parameter, falling back to def when the
// parameter is absent or malformed.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
