package graph

import (
	"fmt"
	"strings"
)

// DuplicatePolicy decides what happens when a name is declared twice.
type DuplicatePolicy uint8

const (
	// DuplicateOverwrite keeps the latest declaration and records a diagnostic.
	DuplicateOverwrite DuplicatePolicy = iota
	// DuplicateReject keeps the first declaration and records a diagnostic.
	DuplicateReject
)

func (p DuplicatePolicy) String() string {
	if p == DuplicateReject {
		return "reject"
	}
	return "overwrite"
}

// ParseDuplicatePolicy maps a configuration value to a policy.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return DuplicateOverwrite, nil
	case "reject":
		return DuplicateReject, nil
	}
	return DuplicateOverwrite, fmt.Errorf("unknown duplicate policy %q (want overwrite or reject)", s)
}

// DiagnosticKind classifies a Diagnostic.
type DiagnosticKind string

const (
	DiagDuplicate           DiagnosticKind = "duplicate_declaration"
	DiagUnsupportedNegation DiagnosticKind = "unsupported_negation"
	DiagCycle               DiagnosticKind = "cyclic_dependency"
)

// Diagnostic is a non-fatal observation made while building the graph.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Name     string         `json:"name"`
	Line     int            `json:"line"`
	PrevLine int            `json:"prev_line,omitempty"`
	Message  string         `json:"message"`
}

// Registry is the name-indexed arena of every node discovered in one
// source unit. It is not safe for concurrent mutation.
type Registry struct {
	policy   DuplicatePolicy
	maxDepth int
	nodes    []Node
	byName   map[string]NodeID
	diags    []Diagnostic
}

// Option configures a Registry.
type Option func(*Registry)

// WithDuplicatePolicy sets the re-declaration policy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(r *Registry) { r.policy = p }
}

// WithMaxDepth bounds the length of a dependency chain during resolution.
// Non-positive values select DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(r *Registry) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		maxDepth: DefaultMaxDepth,
		byName:   make(map[string]NodeID),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Build adds nodes in order, links the graph and records a diagnostic for
// every dependency cycle.
func Build(nodes []Node, opts ...Option) *Registry {
	r := NewRegistry(opts...)
	for _, n := range nodes {
		// Rejections and invalid nodes are already recorded or meaningless here.
		_, _ = r.Add(n)
	}
	r.Link()
	for _, cycle := range r.cycleIDs() {
		head := r.node(cycle[0])
		r.diags = append(r.diags, Diagnostic{
			Kind:    DiagCycle,
			Name:    head.Name,
			Line:    head.Line,
			Message: "dependency cycle: " + strings.Join(r.names(cycle), " -> "),
		})
	}
	return r
}

// Add registers n and returns its id. Symbolic expression terms naming an
// already-registered node are bound to it; others stay pending until Link.
func (r *Registry) Add(n Node) (NodeID, error) {
	if n.Name == "" || (n.Kind != KindBuffer && n.Kind != KindInteger) {
		return NoNodeID, fmt.Errorf("%w: %q", ErrInvalidNode, n.Name)
	}

	if prev, ok := r.byName[n.Name]; ok {
		prevLine := r.node(prev).Line
		if r.policy == DuplicateReject {
			r.diags = append(r.diags, Diagnostic{
				Kind:     DiagDuplicate,
				Name:     n.Name,
				Line:     n.Line,
				PrevLine: prevLine,
				Message:  fmt.Sprintf("%s %q re-declared; keeping the first declaration", n.Kind, n.Name),
			})
			return prev, &DuplicateError{Name: n.Name, Line: n.Line, PrevLine: prevLine}
		}
		r.diags = append(r.diags, Diagnostic{
			Kind:     DiagDuplicate,
			Name:     n.Name,
			Line:     n.Line,
			PrevLine: prevLine,
			Message:  fmt.Sprintf("%s %q re-declared; the later declaration wins", n.Kind, n.Name),
		})
	}

	op := n.Operand()
	if op.Kind == OperandExpr {
		op.Terms = r.bind(append([]Term(nil), op.Terms...))
	}
	for _, d := range n.Dropped {
		r.diags = append(r.diags, Diagnostic{
			Kind:    DiagUnsupportedNegation,
			Name:    n.Name,
			Line:    n.Line,
			Message: fmt.Sprintf("negated term %q in %q is not supported and was ignored", d, n.Text),
		})
	}

	n.ID = NodeID(len(r.nodes) + 1)
	r.nodes = append(r.nodes, n)
	r.byName[n.Name] = n.ID
	return n.ID, nil
}

// ResolveAgainstRegistry parses expr and binds every symbolic term that
// names a registered node.
func (r *Registry) ResolveAgainstRegistry(expr string) []Term {
	return r.bind(ParseDependencies(expr))
}

func (r *Registry) bind(terms []Term) []Term {
	for i, t := range terms {
		if t.IsConst() || t.Bound() {
			continue
		}
		if id, ok := r.byName[t.Name]; ok {
			terms[i].Ref = id
		}
	}
	return terms
}

// Lookup returns the id currently registered under name.
func (r *Registry) Lookup(name string) (NodeID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// Node returns a copy of the node with the given id.
func (r *Registry) Node(id NodeID) (Node, bool) {
	if n := r.node(id); n != nil {
		return *n, true
	}
	return Node{}, false
}

func (r *Registry) node(id NodeID) *Node {
	if !id.IsValid() || int(id) > len(r.nodes) {
		return nil
	}
	return &r.nodes[id-1]
}

// Live reports whether id is the declaration currently bound to its name.
func (r *Registry) Live(id NodeID) bool {
	n := r.node(id)
	return n != nil && r.byName[n.Name] == id
}

// Nodes returns every node in the arena, including overwritten ones, in
// declaration order.
func (r *Registry) Nodes() []Node {
	out := make([]Node, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// Buffers returns the live buffer nodes in declaration order.
func (r *Registry) Buffers() []Node { return r.live(KindBuffer) }

// Integers returns the live integer nodes in declaration order.
func (r *Registry) Integers() []Node { return r.live(KindInteger) }

func (r *Registry) live(kind Kind) []Node {
	var out []Node
	for i := range r.nodes {
		n := &r.nodes[i]
		if n.Kind == kind && r.byName[n.Name] == n.ID {
			out = append(out, *n)
		}
	}
	return out
}

// Diagnostics returns the observations recorded so far.
func (r *Registry) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Len returns the number of nodes in the arena.
func (r *Registry) Len() int { return len(r.nodes) }
