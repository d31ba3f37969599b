package dag

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDefinition matches every error reporting a problem with the definition
// itself, as opposed to a failure while executing it.
var ErrDefinition = errors.New("invalid texture set definition")

// ErrorKind classifies a DefinitionError.
type ErrorKind string

const (
	KindInvalid           ErrorKind = "invalid-definition"
	KindUnknownModule     ErrorKind = "unknown-module"
	KindVersionMismatch   ErrorKind = "version-mismatch"
	KindInvalidParameters ErrorKind = "invalid-parameters"
	KindArityMismatch     ErrorKind = "arity-mismatch"
	KindTypeMismatch      ErrorKind = "type-mismatch"
	KindUnknownReference  ErrorKind = "unknown-reference"
	KindDuplicateName     ErrorKind = "duplicate-name"
)

// DefinitionError is a problem found while assembling the graph.
type DefinitionError struct {
	Kind ErrorKind
	Node string
	Msg  string
	Err  error
}

func (e *DefinitionError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Node != "" {
		fmt.Fprintf(&sb, " in %q", e.Node)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Msg)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *DefinitionError) Unwrap() error { return e.Err }

// Is makes every DefinitionError match ErrDefinition.
func (e *DefinitionError) Is(target error) bool { return target == ErrDefinition }

func defErr(kind ErrorKind, node, format string, args ...any) *DefinitionError {
	return &DefinitionError{Kind: kind, Node: node, Msg: fmt.Sprintf(format, args...)}
}

// CyclicDependencyError names the nodes on a dependency cycle in order; the
// first node is repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

func (e *CyclicDependencyError) Is(target error) bool { return target == ErrDefinition }
