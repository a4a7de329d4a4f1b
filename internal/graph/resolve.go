package graph

import "fmt"

// DefaultMaxDepth bounds dependency chains when no WithMaxDepth option is given.
const DefaultMaxDepth = 256

// Resolve reduces the node's size or value to an integer. It fails with
// *UnresolvedError, *CycleError, ErrDepthExceeded, ErrOverflow or
// ErrNodeNotFound and never mutates the registry.
func (r *Registry) Resolve(id NodeID) (int64, error) {
	if r.node(id) == nil {
		return 0, fmt.Errorf("%w: id %d", ErrNodeNotFound, id)
	}
	res := r.newResolution()
	return res.node(id)
}

// ResolveName resolves the node currently registered under name.
func (r *Registry) ResolveName(name string) (int64, error) {
	id, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return r.Resolve(id)
}

// ResolveNode resolves n's operand against the registry. n need not be
// registered; a literal operand resolves to itself whatever the registry holds.
func (r *Registry) ResolveNode(n Node) (int64, error) {
	res := r.newResolution()
	if reg := r.node(n.ID); reg != nil && reg.Name == n.Name {
		return res.node(n.ID)
	}
	return res.operand(&n)
}

type resolution struct {
	reg      *Registry
	maxDepth int
	stack    []NodeID
	onStack  map[NodeID]bool
	values   map[NodeID]int64 // nodes already reduced in this resolution
}

func (r *Registry) newResolution() *resolution {
	depth := r.maxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &resolution{reg: r, maxDepth: depth, onStack: make(map[NodeID]bool), values: make(map[NodeID]int64)}
}

func (s *resolution) node(id NodeID) (int64, error) {
	n := s.reg.node(id)
	if n == nil {
		return 0, fmt.Errorf("%w: id %d", ErrNodeNotFound, id)
	}
	if v, ok := s.values[id]; ok {
		return v, nil
	}
	if s.onStack[id] {
		return 0, &CycleError{Path: s.cyclePath(id)}
	}
	if len(s.stack) >= s.maxDepth {
		return 0, fmt.Errorf("%w: %d levels at %s", ErrDepthExceeded, s.maxDepth, n.Name)
	}

	s.stack = append(s.stack, id)
	s.onStack[id] = true
	defer func() {
		s.stack = s.stack[:len(s.stack)-1]
		delete(s.onStack, id)
	}()

	v, err := s.operand(n)
	if err != nil {
		return 0, err
	}
	s.values[id] = v
	return v, nil
}

func (s *resolution) operand(n *Node) (int64, error) {
	op := n.Operand()
	switch op.Kind {
	case OperandLiteral:
		return op.Literal, nil
	case OperandRef:
		return s.node(op.Ref)
	case OperandExpr:
		if op.Overflow {
			return 0, fmt.Errorf("%w: literal in %s", ErrOverflow, n.Name)
		}
		var total int64
		for _, t := range op.Terms {
			v := t.Const
			if !t.IsConst() {
				if !t.Bound() {
					return 0, &UnresolvedError{Node: n.Name, Name: t.Name, Reason: "not declared"}
				}
				var err error
				if v, err = s.node(t.Ref); err != nil {
					return 0, err
				}
			}
			sum, ok := addInt64(total, v)
			if !ok {
				return 0, fmt.Errorf("%w: sum in %s", ErrOverflow, n.Name)
			}
			total = sum
		}
		return total, nil
	case OperandName:
		return 0, &UnresolvedError{Node: n.Name, Name: op.Name, Reason: "not declared"}
	default:
		return 0, &UnresolvedError{Node: n.Name, Name: n.Name, Reason: "declared without a value"}
	}
}

func (s *resolution) cyclePath(id NodeID) []string {
	start := 0
	for i, sid := range s.stack {
		if sid == id {
			start = i
			break
		}
	}
	path := make([]string, 0, len(s.stack)-start+1)
	for _, sid := range s.stack[start:] {
		path = append(path, s.reg.node(sid).Name)
	}
	return append(path, s.reg.node(id).Name)
}
