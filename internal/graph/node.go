// Package graph models the declarations found in a source unit as a
// dependency graph of buffer and integer nodes, and resolves a buffer's
// declared size to a concrete integer by following that graph.
//
// Nodes live in an append-only arena owned by a Registry and are addressed
// by NodeID. A size or value is an Operand: a literal, a bare name that has
// not been linked yet, a reference to another node, or an additive
// expression of dependency terms.
package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeID identifies a node within one Registry. Zero is the sentinel.
type NodeID uint32

// NoNodeID is the invalid node identifier.
const NoNodeID NodeID = 0

// IsValid returns true if the ID is valid (non-zero).
func (id NodeID) IsValid() bool { return id != NoNodeID }

// Kind tags a node as a buffer or an integer.
type Kind uint8

const (
	KindBuffer Kind = iota + 1
	KindInteger
)

var kindNames = [...]string{
	KindBuffer:  "buffer",
	KindInteger: "integer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

func (k Kind) MarshalText() ([]byte, error) {
	if k != KindBuffer && k != KindInteger {
		return nil, fmt.Errorf("invalid node kind %d", k)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "buffer":
		*k = KindBuffer
	case "integer":
		*k = KindInteger
	default:
		return fmt.Errorf("unknown node kind %q", text)
	}
	return nil
}

// OperandKind tags the representation held by an Operand.
type OperandKind uint8

const (
	OperandUnknown OperandKind = iota // declared without a size or value
	OperandLiteral
	OperandName // bare symbolic name awaiting Link
	OperandRef
	OperandExpr
)

var operandNames = [...]string{
	OperandUnknown: "unknown",
	OperandLiteral: "literal",
	OperandName:    "name",
	OperandRef:     "ref",
	OperandExpr:    "expr",
}

func (k OperandKind) String() string {
	if int(k) < len(operandNames) {
		return operandNames[k]
	}
	return "operand(" + strconv.Itoa(int(k)) + ")"
}

func (k OperandKind) MarshalText() ([]byte, error) {
	if int(k) >= len(operandNames) {
		return nil, fmt.Errorf("invalid operand kind %d", k)
	}
	return []byte(operandNames[k]), nil
}

func (k *OperandKind) UnmarshalText(text []byte) error {
	for i, name := range operandNames {
		if name == string(text) {
			*k = OperandKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown operand kind %q", text)
}

// Term is one contributor to an expression: a signed constant when Name is
// empty, otherwise a symbolic reference that is bound once Ref is valid.
type Term struct {
	Const int64  `json:"const,omitempty"`
	Name  string `json:"name,omitempty"`
	Ref   NodeID `json:"ref,omitempty"`
}

// ConstTerm returns a constant term.
func ConstTerm(v int64) Term { return Term{Const: v} }

// SymbolTerm returns an unbound symbolic term.
func SymbolTerm(name string) Term { return Term{Name: name} }

// IsConst reports whether the term is an integer constant.
func (t Term) IsConst() bool { return t.Name == "" }

// Bound reports whether a symbolic term points at a registered node.
func (t Term) Bound() bool { return t.Ref.IsValid() }

func (t Term) String() string {
	if t.IsConst() {
		return strconv.FormatInt(t.Const, 10)
	}
	return t.Name
}

// Operand is the size of a buffer or the value of an integer.
type Operand struct {
	Kind    OperandKind `json:"kind"`
	Literal int64       `json:"literal,omitempty"`
	Name    string      `json:"name,omitempty"`
	Ref     NodeID      `json:"ref,omitempty"`
	Terms   []Term      `json:"terms,omitempty"`

	// Overflow marks an expression whose literals do not fit in an int64.
	// Such an operand never resolves.
	Overflow bool `json:"overflow,omitempty"`
}

// Unknown returns the operand of a declaration that carries no value.
func Unknown() Operand { return Operand{Kind: OperandUnknown} }

// Literal returns a literal operand.
func Literal(v int64) Operand { return Operand{Kind: OperandLiteral, Literal: v} }

// Name returns a bare symbolic operand.
func Name(name string) Operand { return Operand{Kind: OperandName, Name: name} }

// Ref returns an operand referencing the node id, remembering its name.
func Ref(id NodeID, name string) Operand { return Operand{Kind: OperandRef, Ref: id, Name: name} }

// Expr returns an expression operand over terms.
func Expr(terms []Term) Operand { return Operand{Kind: OperandExpr, Terms: terms} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandLiteral:
		return strconv.FormatInt(o.Literal, 10)
	case OperandName, OperandRef:
		return o.Name
	case OperandExpr:
		if len(o.Terms) == 0 {
			return "0"
		}
		parts := make([]string, len(o.Terms))
		for i, t := range o.Terms {
			parts[i] = t.String()
		}
		return strings.Join(parts, " + ")
	default:
		return ""
	}
}

// Node is a buffer or integer declaration. Size is meaningful for buffers
// and Value for integers.
type Node struct {
	ID      NodeID   `json:"id,omitempty"`
	Kind    Kind     `json:"kind"`
	Name    string   `json:"name"`
	Line    int      `json:"line,omitempty"`
	Text    string   `json:"text,omitempty"`
	Size    Operand  `json:"size"`
	Value   Operand  `json:"value"`
	Dropped []string `json:"dropped,omitempty"`
}

// NewBuffer builds a buffer node from its declared size expression.
func NewBuffer(name, size string) Node {
	op, dropped := parseOperand(size)
	return Node{Kind: KindBuffer, Name: name, Text: strings.TrimSpace(size), Size: op, Dropped: dropped}
}

// NewInteger builds an integer node from its initializer expression, which
// may be empty.
func NewInteger(name, value string) Node {
	op, dropped := parseOperand(value)
	return Node{Kind: KindInteger, Name: name, Text: strings.TrimSpace(value), Value: op, Dropped: dropped}
}

// Operand returns the kind-specific size or value of the node.
func (n *Node) Operand() *Operand {
	if n.Kind == KindBuffer {
		return &n.Size
	}
	return &n.Value
}

// Dependencies returns the ids of the nodes this node's operand refers to.
func (n *Node) Dependencies() []NodeID {
	op := n.Operand()
	switch op.Kind {
	case OperandRef:
		return []NodeID{op.Ref}
	case OperandExpr:
		var ids []NodeID
		for _, t := range op.Terms {
			if t.Bound() {
				ids = append(ids, t.Ref)
			}
		}
		return ids
	}
	return nil
}

func (n Node) String() string {
	if n.Kind == KindBuffer {
		return fmt.Sprintf("%s[%s]", n.Name, n.Size)
	}
	return fmt.Sprintf("%s = %s", n.Name, n.Value)
}

func parseOperand(text string) (Operand, []string) {
	text = strings.TrimSpace(text)
	switch {
	case text == "":
		return Unknown(), nil
	case isDigits(text):
		if v, err := strconv.ParseInt(text, 10, 64); err == nil {
			return Literal(v), nil
		}
	case isWord(text):
		return Name(text), nil
	}
	p := parseExpression(text)
	op := Expr(p.terms)
	op.Overflow = p.overflow
	return op, p.dropped
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isWordByte(s[i]) {
			return false
		}
	}
	return true
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
