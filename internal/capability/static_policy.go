package capability

import (
	_ "embed"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/repairdesk/model"
)

//go:embed policy.yaml
var defaultPolicy []byte

// StaticPolicyEvaluator grants capabilities from a YAML policy:
//
//	roles:
//	  technician: [orders:view, orders:edit, devices:*]
type StaticPolicyEvaluator struct {
	path  string
	mu    sync.RWMutex
	grant map[string]model.CapabilitySet
}

// NewStaticPolicyEvaluator loads the policy at path, or the embedded policy
// when path is empty.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Reload(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns a copy the caller may modify. A role the
// policy does not name gets nothing.
func (e *StaticPolicyEvaluator) ResolveCapabilities(role string) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if caps, ok := e.grant[role]; ok {
		return maps.Clone(caps), nil
	}
	return model.CapabilitySet{}, nil
}

// Roles are sorted.
func (e *StaticPolicyEvaluator) Roles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.grant))
}

// Reload rereads the policy. On error the previous policy stays in force.
func (e *StaticPolicyEvaluator) Reload() error {
	data, source := defaultPolicy, "embedded policy"
	if e.path != "" {
		b, err := os.ReadFile(e.path)
		if err != nil {
			return fmt.Errorf("capability: read policy: %w", err)
		}
		data, source = b, e.path
	}

	grant, err := parsePolicy(data)
	if err != nil {
		return fmt.Errorf("capability: %s: %w", source, err)
	}
	e.mu.Lock()
	e.grant = grant
	e.mu.Unlock()
	return nil
}

func parsePolicy(data []byte) (map[string]model.CapabilitySet, error) {
	var doc struct {
		Roles map[string][]string `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Roles) == 0 {
		return nil, fmt.Errorf("no roles defined")
	}

	grant := make(map[string]model.CapabilitySet, len(doc.Roles))
	for role, caps := range doc.Roles {
		for _, c := range caps {
			if !wellFormed(c) {
				return nil, fmt.Errorf("role %s: capability %q is not <section>:<verb>", role, c)
			}
		}
		grant[role] = model.NewCapabilitySet(caps...)
	}
	return grant, nil
}

func wellFormed(c string) bool {
	if c == "*" {
		return true
	}
	section, verb, ok := strings.Cut(c, ":")
	return ok && section != "" && verb != "" && !strings.Contains(verb, ":")
}
