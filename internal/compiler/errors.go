package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCancelled reports a compile stopped by its context. It is distinct from
// a failure: nothing was wrong with the texture set.
var ErrCancelled = errors.New("compile cancelled")

// NodeStatus is the outcome of one node in a compile.
type NodeStatus int32

const (
	Pending NodeStatus = iota
	Succeeded
	Failed
	Skipped
	Cancelled
)

func (s NodeStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// ModuleExecutionError is a failure while producing one node.
type ModuleExecutionError struct {
	Node   string
	Module string
	Err    error
}

func (e *ModuleExecutionError) Error() string {
	return fmt.Sprintf("node %q (%s): %v", e.Node, e.Module, e.Err)
}

func (e *ModuleExecutionError) Unwrap() error {
	return e.Err
}

// CompileError aggregates every failed, skipped and cancelled node of a
// compile that did not produce a result.
type CompileError struct {
	TextureSet string
	// Failures are the root causes, in topological order.
	Failures  []*ModuleExecutionError
	Skipped   []string
	Cancelled []string
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "compile %q", e.TextureSet)
	if len(e.Failures) > 0 {
		failed := make([]string, len(e.Failures))
		for i, f := range e.Failures {
			failed[i] = f.Node
		}
		fmt.Fprintf(&sb, ": failed: %s", strings.Join(failed, ", "))
	}
	if len(e.Skipped) > 0 {
		fmt.Fprintf(&sb, "; skipped: %s", strings.Join(e.Skipped, ", "))
	}
	if len(e.Cancelled) > 0 {
		fmt.Fprintf(&sb, "; cancelled: %s", strings.Join(e.Cancelled, ", "))
	}
	if len(e.Failures) > 0 {
		fmt.Fprintf(&sb, ": %v", e.Failures[0])
	}
	return sb.String()
}

// Unwrap exposes every root cause, plus ErrCancelled when any node was
// cancelled.
func (e *CompileError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, f := range e.Failures {
		errs = append(errs, f)
	}
	if len(e.Cancelled) > 0 {
		errs = append(errs, ErrCancelled)
	}
	return errs
}

// Failed returns the failure of the named node, if any.
func (e *CompileError) Failed(node string) (*ModuleExecutionError, bool) {
	for _, f := range e.Failures {
		if f.Node == node {
			return f, true
		}
	}
	return nil, false
}
