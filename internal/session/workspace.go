package session

import (
	"sync"
	"time"

	"github.com/pitabwire/repairdesk/internal/section"
	"github.com/pitabwire/repairdesk/internal/table"
)

// Workspace is the server-side state of one logged-in session: a table view
// per section and at most one open dialog per section.
//
// Views and dialogs are not safe for concurrent use, so every interaction
// runs under Lock. The section.Desk methods assume the caller holds it.
type Workspace struct {
	mu sync.Mutex

	id       string
	subject  string
	role     string
	created  time.Time
	lastSeen time.Time

	views   map[string]*table.View
	editors map[string]*section.Editor
}

func newWorkspace(id, subject, role string, now time.Time) *Workspace {
	return &Workspace{
		id:       id,
		subject:  subject,
		role:     role,
		created:  now,
		lastSeen: now,
		views:    make(map[string]*table.View),
		editors:  make(map[string]*section.Editor),
	}
}

// ID returns the session ID.
func (w *Workspace) ID() string { return w.id }

// Subject returns the username.
func (w *Workspace) Subject() string { return w.subject }

// Role returns the login role.
func (w *Workspace) Role() string { return w.role }

// Lock serializes interactions within the workspace.
func (w *Workspace) Lock() { w.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (w *Workspace) Unlock() { w.mu.Unlock() }

// View returns the section's table view, creating it on first use. The view
// is rebound to tbl so that a reloaded definition drops stale state.
func (w *Workspace) View(sectionID string, tbl *table.Table) *table.View {
	v, ok := w.views[sectionID]
	if !ok {
		v = tbl.NewView(sectionID)
		w.views[sectionID] = v
		return v
	}
	v.Bind(tbl, sectionID)
	return v
}

// Editor implements section.Desk.
func (w *Workspace) Editor(sectionID string) *section.Editor { return w.editors[sectionID] }

// SetEditor implements section.Desk.
func (w *Workspace) SetEditor(sectionID string, e *section.Editor) {
	if e == nil {
		delete(w.editors, sectionID)
		return
	}
	w.editors[sectionID] = e
}

// OpenDialogs returns how many dialogs are currently open.
func (w *Workspace) OpenDialogs() int {
	n := 0
	for _, e := range w.editors {
		if e.IsOpen() {
			n++
		}
	}
	return n
}
