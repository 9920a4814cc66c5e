// Package session implements the login gate and the per-user workspace that
// holds table view state and open record dialogs between requests.
package session

import (
	"crypto/subtle"
	"fmt"
	"slices"
	"strings"

	"github.com/pitabwire/repairdesk/model"
)

// Account is one login on the gate. There is no identity provider; accounts
// are fixed at startup.
type Account struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	Role     string `yaml:"role" json:"role"`
}

// DefaultAccounts returns the demo accounts, one per role.
func DefaultAccounts() []Account {
	return []Account{
		{Username: "admin", Password: "admin", Role: model.RoleAdmin},
		{Username: "manager", Password: "manager", Role: model.RoleManager},
		{Username: "tech", Password: "tech", Role: model.RoleTechnician},
		{Username: "operator", Password: "operator", Role: model.RoleOperator},
	}
}

// ValidRole reports whether role is one of the four login roles.
func ValidRole(role string) bool {
	return slices.Contains(model.Roles, role)
}

// Accounts is an immutable account table.
type Accounts struct {
	byName map[string]Account
}

// NewAccounts validates list and indexes it by username.
func NewAccounts(list []Account) (*Accounts, error) {
	a := &Accounts{byName: make(map[string]Account, len(list))}
	var problems []string
	for i, acc := range list {
		switch {
		case strings.TrimSpace(acc.Username) == "":
			problems = append(problems, fmt.Sprintf("account %d: username is required", i))
			continue
		case acc.Password == "":
			problems = append(problems, fmt.Sprintf("account %q: password is required", acc.Username))
		case !ValidRole(acc.Role):
			problems = append(problems, fmt.Sprintf("account %q: unknown role %q", acc.Username, acc.Role))
		}
		if _, dup := a.byName[acc.Username]; dup {
			problems = append(problems, fmt.Sprintf("account %q: defined twice", acc.Username))
		}
		a.byName[acc.Username] = acc
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("session: invalid accounts: %s", strings.Join(problems, "; "))
	}
	return a, nil
}

// Check returns the account matching username and password.
func (a *Accounts) Check(username, password string) (Account, bool) {
	acc, ok := a.byName[username]
	if !ok {
		return Account{}, false
	}
	if subtle.ConstantTimeCompare([]byte(acc.Password), []byte(password)) != 1 {
		return Account{}, false
	}
	return acc, true
}

// List returns every account sorted by username.
func (a *Accounts) List() []Account {
	out := make([]Account, 0, len(a.byName))
	for _, acc := range a.byName {
		out = append(out, acc)
	}
	slices.SortFunc(out, func(x, y Account) int { return strings.Compare(x.Username, y.Username) })
	return out
}
