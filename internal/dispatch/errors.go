package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConcurrentExecution is the sentinel behind ConcurrentExecutionError.
	ErrConcurrentExecution = errors.New("agent already has an execution in flight")
	// ErrLeaseNotHeld is returned by Run when the lease was released or does not cover every participant.
	ErrLeaseNotHeld = errors.New("lease does not cover participants")
	// ErrNoResponder is recorded for a participant nothing can reach.
	ErrNoResponder = errors.New("no responder for agent")
)

// ConcurrentExecutionError names the agents that were busy.
type ConcurrentExecutionError struct {
	AgentIDs []string
}

func (e *ConcurrentExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConcurrentExecution, strings.Join(e.AgentIDs, ", "))
}

func (e *ConcurrentExecutionError) Unwrap() error { return ErrConcurrentExecution }
