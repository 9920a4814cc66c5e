package model

import "context"

// The four login roles. Capabilities are granted per role by the policy.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleTechnician = "technician"
	RoleOperator   = "operator"
)

// Roles lists the login roles from most to least privileged.
var Roles = []string{RoleAdmin, RoleManager, RoleTechnician, RoleOperator}

// RequestContext identifies the caller of one request. SessionAuth builds
// it from the session token; it is never modified afterwards.
type RequestContext struct {
	SubjectID     string
	Role          string
	SessionID     string
	CorrelationID string
	TraceID       string
	Locale        string
}

type requestContextKey struct{}

func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rctx)
}

// RequestContextFrom returns nil outside an authenticated request.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(requestContextKey{}).(*RequestContext)
	return rctx
}
