package transport

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/pitabwire/repairdesk/internal/metadata"
	"github.com/pitabwire/repairdesk/internal/observability"
	"github.com/pitabwire/repairdesk/internal/session"
	"github.com/pitabwire/repairdesk/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func handleLogin(sessions *session.Manager, resolver model.CapabilityResolver, menu *metadata.MenuProvider, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeRequestError(w, r, err)
			return
		}
		if req.Username == "" || req.Password == "" {
			writeRequestError(w, r, model.NewBadRequestError("username and password are required"))
			return
		}

		login, err := sessions.Login(req.Username, req.Password)
		metrics.RecordLogin(err == nil)
		if err != nil {
			if errors.Is(err, session.ErrInvalidCredentials) {
				observability.LoggerFrom(r.Context(), zap.NewNop()).Info("login rejected",
					zap.String("username", req.Username),
				)
			}
			writeRequestError(w, r, err)
			return
		}
		metrics.SetActiveSessions(sessions.Active())

		resp := model.LoginResponse{
			Token:     login.Token,
			Role:      login.Claims.Role,
			Username:  login.Claims.Subject,
			ExpiresAt: login.Claims.ExpiresAt.Time,
		}
		rctx := &model.RequestContext{SubjectID: login.Claims.Subject, Role: login.Claims.Role, SessionID: login.Claims.SessionID}
		if caps, err := resolver.Resolve(rctx); err == nil {
			resp.Landing = menu.Landing(caps)
		}

		observability.LoggerFrom(r.Context(), zap.NewNop()).Info("login",
			zap.String("subject_id", resp.Username),
			zap.String("role", resp.Role),
			zap.String("session_id", login.Claims.SessionID),
		)
		WriteJSON(w, http.StatusOK, resp)
	}
}

func handleLogout(sessions *session.Manager, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := requestScope(w, r)
		if !ok {
			return
		}
		sessions.Logout(sc.rctx.SessionID)
		metrics.SetActiveSessions(sessions.Active())
		WriteJSON(w, http.StatusOK, model.CommandResponse{Success: true, Message: "Logged out"})
	}
}
