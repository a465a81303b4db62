package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/talentdesk/talentdesk/internal/shared"
)

type edgeKey struct {
	from Status
	to   Status
}

// Registry holds the declared machines. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	machines map[Kind]Machine
	edges    map[Kind]map[edgeKey]Edge
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		machines: make(map[Kind]Machine),
		edges:    make(map[Kind]map[edgeKey]Edge),
	}
}

// Register validates and adds a machine. Registering a kind twice is an error.
func (r *Registry) Register(m Machine) error {
	if err := validateMachine(m); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.machines[m.Kind]; exists {
		return fmt.Errorf("%w: machine %s already registered", shared.ErrValidation, m.Kind)
	}
	index := make(map[edgeKey]Edge, len(m.Edges))
	for _, e := range m.Edges {
		index[edgeKey{from: e.From, to: e.To}] = e
	}
	r.machines[m.Kind] = m
	r.edges[m.Kind] = index
	return nil
}

// MustRegister panics when m is invalid.
func (r *Registry) MustRegister(m Machine) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Machine returns the machine registered for kind.
func (r *Registry) Machine(kind Kind) (Machine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[kind]
	return m, ok
}

// Kinds lists the registered kinds in lexical order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.machines))
	for k := range r.machines {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Lookup returns the edge from -> to. A request to stay in a known state resolves
// to a synthetic edge guarded by the machine's StayPermission.
func (r *Registry) Lookup(kind Kind, from, to Status) (Edge, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[kind]
	if !ok {
		return Edge{}, false
	}
	if from == to {
		if !m.HasState(from) {
			return Edge{}, false
		}
		return Edge{From: from, To: to, Permission: m.StayPermission}, true
	}
	e, ok := r.edges[kind][edgeKey{from: from, to: to}]
	return e, ok
}

// Targets returns the edges leaving from, in declaration order.
func (r *Registry) Targets(kind Kind, from Status) []Edge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Edge
	for _, e := range r.machines[kind].Edges {
		if e.From == from {
			out = append(out, e)
		}
	}
	return out
}

// Graph returns the adjacency list of kind keyed by source state.
func (r *Registry) Graph(kind Kind) (map[Status][]Status, error) {
	m, ok := r.Machine(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown workflow kind %q", shared.ErrNotFound, kind)
	}
	graph := make(map[Status][]Status, len(m.States))
	for _, s := range m.States {
		graph[s] = nil
	}
	for _, e := range m.Edges {
		graph[e.From] = append(graph[e.From], e.To)
	}
	return graph, nil
}

func validateMachine(m Machine) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: machine %s: %s", shared.ErrValidation, m.Kind, fmt.Sprintf(format, args...))
	}
	if m.Kind == "" {
		return fmt.Errorf("%w: machine kind required", shared.ErrValidation)
	}
	if len(m.States) == 0 {
		return invalid("no states")
	}
	if m.StayPermission.IsZero() {
		return invalid("stay permission required")
	}
	states := make(map[Status]struct{}, len(m.States))
	for _, s := range m.States {
		if s == "" {
			return invalid("empty state")
		}
		if _, dup := states[s]; dup {
			return invalid("duplicate state %s", s)
		}
		states[s] = struct{}{}
	}
	if _, ok := states[m.Initial]; !ok {
		return invalid("initial state %q not declared", m.Initial)
	}
	for _, t := range m.Terminal {
		if _, ok := states[t]; !ok {
			return invalid("terminal state %q not declared", t)
		}
	}
	seen := make(map[edgeKey]struct{}, len(m.Edges))
	for _, e := range m.Edges {
		if _, ok := states[e.From]; !ok {
			return invalid("edge from unknown state %q", e.From)
		}
		if _, ok := states[e.To]; !ok {
			return invalid("edge to unknown state %q", e.To)
		}
		if e.From == e.To {
			return invalid("self edge on %s", e.From)
		}
		if e.Permission.IsZero() {
			return invalid("edge %s -> %s has no permission", e.From, e.To)
		}
		key := edgeKey{from: e.From, to: e.To}
		if _, dup := seen[key]; dup {
			return invalid("duplicate edge %s -> %s", e.From, e.To)
		}
		seen[key] = struct{}{}
		if m.IsTerminal(e.From) && !e.Reopen {
			return invalid("terminal state %s has outgoing edge to %s", e.From, e.To)
		}
		if e.Reopen && !m.IsTerminal(e.From) {
			return invalid("reopen edge %s -> %s must leave a terminal state", e.From, e.To)
		}
	}
	return nil
}
