// Package scenario holds the demonstration scenarios: named sequences of
// store commands whose replies are checked and reported.
package scenario

import (
	"context"
	"errors"
	"fmt"

	"github.com/leafsii/redis-demo/pkg/kv"
)

// ErrUnknownScenario is returned when a name is not in the registry
var ErrUnknownScenario = errors.New("unknown scenario")

// Func issues a scenario's commands, recording what it sees on rec. A
// returned error aborts the scenario; a failed check does not.
type Func func(ctx context.Context, env *Env, rec *Recorder) error

// Scenario is a named, self-clearing command sequence
type Scenario struct {
	Name        string
	Description string
	// Keys are the unprefixed keys the scenario writes. They are deleted
	// before every run.
	Keys []string
	Run  Func
}

// Info is the serializable description of a scenario
type Info struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Keys        []string `json:"keys" yaml:"keys"`
}

func (s Scenario) Info(prefix string) Info {
	keys := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = prefix + k
	}
	return Info{Name: s.Name, Description: s.Description, Keys: keys}
}

// Env is what a scenario runs against
type Env struct {
	Template kv.Template
	Prefix   string
}

// Key namespaces name with the configured prefix
func (e *Env) Key(name string) string {
	return e.Prefix + name
}

// clear deletes every key the scenario owns
func (e *Env) clear(ctx context.Context, s Scenario) error {
	if len(s.Keys) == 0 {
		return nil
	}
	keys := make([]string, len(s.Keys))
	for i, k := range s.Keys {
		keys[i] = e.Key(k)
	}
	if _, err := e.Template.Keys().Delete(ctx, keys...); err != nil {
		return fmt.Errorf("clear %s: %w", s.Name, err)
	}
	return nil
}

// Registry is an ordered set of scenarios
type Registry struct {
	order  []string
	byName map[string]Scenario
}

// NewRegistry builds a registry. Later scenarios replace earlier ones with
// the same name.
func NewRegistry(scenarios ...Scenario) *Registry {
	r := &Registry{byName: make(map[string]Scenario, len(scenarios))}
	for _, s := range scenarios {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Scenario) {
	if _, exists := r.byName[s.Name]; !exists {
		r.order = append(r.order, s.Name)
	}
	r.byName[s.Name] = s
}

// Lookup finds a scenario by name
func (r *Registry) Lookup(name string) (Scenario, error) {
	s, ok := r.byName[name]
	if !ok {
		return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return s, nil
}

// List returns scenarios in registration order
func (r *Registry) List() []Scenario {
	out := make([]Scenario, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns scenario names in registration order
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
