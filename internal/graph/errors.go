package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnresolved is returned when a dependency cannot be reduced to an integer.
	ErrUnresolved = errors.New("unresolved dependency")

	// ErrCyclicDependency is returned when resolution revisits a node it is
	// still resolving.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrDepthExceeded is returned when a dependency chain is longer than the
	// resolver's depth bound.
	ErrDepthExceeded = errors.New("resolution depth exceeded")

	// ErrOverflow is returned when a literal or a partial sum does not fit
	// in an int64.
	ErrOverflow = errors.New("integer overflow")

	// ErrDuplicateDeclaration is returned by Add under DuplicateReject.
	ErrDuplicateDeclaration = errors.New("duplicate declaration")

	// ErrNodeNotFound is returned for an unknown id or name.
	ErrNodeNotFound = errors.New("node not found")

	// ErrInvalidNode is returned when adding a node without a name or kind.
	ErrInvalidNode = errors.New("invalid node")
)

// UnresolvedError names the symbol that stopped a resolution.
type UnresolvedError struct {
	Node   string // node whose operand could not be reduced
	Name   string // missing symbol, or Node itself when it has no value
	Reason string
}

func (e *UnresolvedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s: %s", ErrUnresolved, e.Name, e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrUnresolved, e.Name)
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// CycleError carries the chain of node names that closes on itself, with
// the repeated name at both ends.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCyclicDependency, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCyclicDependency }

// DuplicateError reports a rejected re-declaration.
type DuplicateError struct {
	Name     string
	Line     int
	PrevLine int
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s at line %d (first declared at line %d)", ErrDuplicateDeclaration, e.Name, e.Line, e.PrevLine)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateDeclaration }
