package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWorkflow wraps structural validation failures that are not
	// cycles (duplicate ids, dangling deps, self-loops).
	ErrInvalidWorkflow = errors.New("invalid workflow")
	// ErrCycleFound wraps a detected cycle.
	ErrCycleFound = errors.New("cycle detected")
)

// WorkflowError is returned for construction-time failures; per spec.md §7
// these are fatal — the run never starts.
type WorkflowError struct {
	Kind error
	Msg  string
}

func (e *WorkflowError) Error() string {
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *WorkflowError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &WorkflowError{Kind: ErrInvalidWorkflow, Msg: fmt.Sprintf(format, args...)}
}

// CycleError names one witness cycle path; see Graph.validateAcyclic.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycleFound.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycleFound.Error(), strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleFound }

func cycleError(path []string) error {
	return &CycleError{Path: path}
}
