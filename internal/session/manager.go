package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Session errors.
var (
	ErrInvalidCredentials = errors.New("session: invalid username or password")
	ErrSessionNotFound    = errors.New("session: session not found")
	ErrSessionExpired     = errors.New("session: session idle too long")
)

// Login is the result of a successful login.
type Login struct {
	Token     string
	Claims    *Claims
	Workspace *Workspace
}

// Manager owns the live workspaces.
type Manager struct {
	accounts *Accounts
	signer   *Signer
	idleTTL  time.Duration
	now      func() time.Time

	mu         sync.RWMutex
	workspaces map[string]*Workspace
}

// NewManager creates a Manager. A zero idleTTL keeps workspaces until logout
// or token expiry.
func NewManager(accounts *Accounts, signer *Signer, idleTTL time.Duration) *Manager {
	return &Manager{
		accounts:   accounts,
		signer:     signer,
		idleTTL:    idleTTL,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
}

// Accounts returns the account table.
func (m *Manager) Accounts() *Accounts { return m.accounts }

// Login checks the credentials and opens a new workspace.
func (m *Manager) Login(username, password string) (*Login, error) {
	acc, ok := m.accounts.Check(username, password)
	if !ok {
		return nil, ErrInvalidCredentials
	}
	token, claims, err := m.signer.Issue(acc.Username, acc.Role)
	if err != nil {
		return nil, err
	}
	ws := newWorkspace(claims.SessionID, acc.Username, acc.Role, m.now())

	m.mu.Lock()
	m.workspaces[ws.id] = ws
	m.mu.Unlock()

	return &Login{Token: token, Claims: claims, Workspace: ws}, nil
}

// Authenticate verifies a session token and returns its workspace.
func (m *Manager) Authenticate(token string) (*Workspace, *Claims, error) {
	claims, err := m.signer.Verify(token)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			m.Logout(sidOf(token))
		}
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ws, ok := m.workspaces[claims.SessionID]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}
	now := m.now()
	if m.idle(ws, now) {
		delete(m.workspaces, ws.id)
		return nil, nil, ErrSessionExpired
	}
	ws.lastSeen = now
	return ws, claims, nil
}

// sidOf is best effort; an expired token still names its session.
func sidOf(token string) string {
	var c Claims
	if _, _, err := jwtParser.ParseUnverified(token, &c); err != nil {
		return ""
	}
	return c.SessionID
}

// Logout drops the workspace of sid. Unknown IDs are ignored.
func (m *Manager) Logout(sid string) {
	if sid == "" {
		return
	}
	m.mu.Lock()
	delete(m.workspaces, sid)
	m.mu.Unlock()
}

// Active returns the number of live workspaces.
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// Sweep drops idle workspaces and returns how many it removed.
func (m *Manager) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, ws := range m.workspaces {
		if m.idle(ws, now) {
			delete(m.workspaces, id)
			n++
		}
	}
	return n
}

func (m *Manager) idle(ws *Workspace, now time.Time) bool {
	return m.idleTTL > 0 && now.Sub(ws.lastSeen) > m.idleTTL
}

// RunSweeper sweeps idle workspaces every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Info("expired idle sessions", zap.Int("count", n), zap.Int("active", m.Active()))
			}
		}
	}
}
