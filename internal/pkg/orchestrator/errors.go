package orchestrator

import (
	"errors"
	"fmt"

	errno "github.com/kart-io/megaservice/pkg/errors"
)

// ErrSegmenterClosed is returned when a segmenter is fed after Close.
var ErrSegmenterClosed = errors.New("segmenter already closed")

// DuplicateNodeError is returned by Add when the node id is taken.
type DuplicateNodeError struct {
	ID string
}

func (e *DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate node %q", e.ID)
}

// Errno maps the error onto its registered code.
func (e *DuplicateNodeError) Errno() *errno.Errno {
	return errno.ErrDuplicateNode.WithCause(e)
}

// UnknownNodeError is returned when an operation names an absent node.
type UnknownNodeError struct {
	ID string
}

func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("unknown node %q", e.ID)
}

// Errno maps the error onto its registered code.
func (e *UnknownNodeError) Errno() *errno.Errno {
	return errno.ErrUnknownNode.WithCause(e)
}

// CycleError is returned when an edge would close a cycle.
type CycleError struct {
	From, To string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving node '%s' (edge %s -> %s)", e.To, e.From, e.To)
}

// Errno maps the error onto its registered code.
func (e *CycleError) Errno() *errno.Errno {
	return errno.ErrGraphCycle.WithCause(e)
}

// RemoteInvocationError wraps a failed call to a remote node.
type RemoteInvocationError struct {
	NodeID     string
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteInvocationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("invoke %s (%s): status %d: %v", e.NodeID, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("invoke %s (%s): %v", e.NodeID, e.URL, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }

// Errno maps the error onto its registered code.
func (e *RemoteInvocationError) Errno() *errno.Errno {
	return errno.ErrRemoteInvocation.WithCause(e)
}

// AdapterError reports a payload that could not be aligned for or from a node.
type AdapterError struct {
	NodeID string
	Kind   NodeKind
	Reason string
	Err    error
}

func (e *AdapterError) Error() string {
	msg := fmt.Sprintf("adapt %s (%s): %s", e.NodeID, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Errno maps the error onto its registered code.
func (e *AdapterError) Errno() *errno.Errno {
	return errno.ErrAdapter.WithCause(e)
}

// UnsupportedTemplateError reports a chat template whose variables are neither
// {question} nor {context, question}. It is never returned to callers; the
// default prompt is used instead.
type UnsupportedTemplateError struct {
	Variables []string
}

func (e *UnsupportedTemplateError) Error() string {
	return fmt.Sprintf("unsupported chat template variables %v", e.Variables)
}

// Errno maps the error onto its registered code.
func (e *UnsupportedTemplateError) Errno() *errno.Errno {
	return errno.ErrUnsupportedTemplate.WithCause(e)
}

func adapterErr(n ServiceNode, reason string, err error) error {
	return &AdapterError{NodeID: n.ID(), Kind: n.Kind(), Reason: reason, Err: err}
}
