package job

import (
	"sync"
	"time"
)

// Request describes one unit of work submitted to a remote inference
// provider. Payload values are opaque to the engine: raw bytes, data URLs,
// or references to previously uploaded resources. A Request must not be
// modified after submission.
type Request struct {
	Provider     string
	Model        string
	Payload      map[string]any
	PollInterval time.Duration
	Timeout      time.Duration
}

// State is the lifecycle state reported by a provider for a submitted job.
type State int

const (
	StatePending State = iota
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further state transition can occur.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Status is a single point-in-time observation of a remote job.
// Output is populated only when State is StateSucceeded, Reason only
// when State is StateFailed.
type Status struct {
	State  State
	Output map[string]any
	Reason string
}

// Outcome tags the terminal result of a job.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeFailed
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of a remote job. It is never mutated
// after creation.
type Result struct {
	Outcome Outcome
	Output  map[string]any
	Reason  string
}

// Succeeded builds a successful Result carrying the provider's output.
func Succeeded(output map[string]any) *Result {
	return &Result{Outcome: OutcomeSucceeded, Output: output}
}

// Failed builds a failed Result with the provider-reported reason.
func Failed(reason string) *Result {
	return &Result{Outcome: OutcomeFailed, Reason: reason}
}

// TimedOut builds a Result for a job that never reached a terminal state
// within its budget.
func TimedOut() *Result {
	return &Result{Outcome: OutcomeTimedOut, Reason: "deadline elapsed while job still in progress"}
}

// Handle identifies a job accepted by a provider. Once a terminal Result
// has been observed it is cached on the handle, so awaiting the same
// handle again returns the same Result without touching the provider.
type Handle struct {
	Provider    string
	ID          string
	SubmittedAt time.Time

	mu       sync.Mutex
	terminal *Result
}

// Terminal returns the cached terminal Result, or nil if the job has not
// been observed in a terminal state yet.
func (h *Handle) Terminal() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminal
}

// finalize caches the terminal Result. The first terminal observation
// wins; later calls return the already-cached value.
func (h *Handle) finalize(r *Result) *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.terminal == nil {
		h.terminal = r
	}
	return h.terminal
}
