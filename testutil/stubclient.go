package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/babyforge/babyforge/job"
)

// Script describes how the stub provider behaves for one model: an
// optional synchronous submit error, then a sequence of poll statuses.
// The last status repeats once the sequence is exhausted.
type Script struct {
	SubmitErr error
	Statuses  []job.Status
}

// StubClient is a scripted job.Client for tests. Behavior is keyed by the
// requested model identifier, and every submit and poll is recorded so
// tests can assert on ordering and counts.
type StubClient struct {
	mu      sync.Mutex
	scripts map[string]*Script
	byJob   map[string]*Script
	polls   map[string]int

	SubmitLog []string
	Requests  []*job.Request
}

// NewStubClient builds a stub provider with the given per-model scripts.
func NewStubClient(scripts map[string]*Script) *StubClient {
	return &StubClient{
		scripts: scripts,
		byJob:   make(map[string]*Script),
		polls:   make(map[string]int),
	}
}

func (c *StubClient) Name() string { return "stub" }

func (c *StubClient) Submit(_ context.Context, req *job.Request) (*job.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.SubmitLog = append(c.SubmitLog, req.Model)
	c.Requests = append(c.Requests, req)

	s, ok := c.scripts[req.Model]
	if !ok {
		s = &Script{Statuses: []job.Status{{State: job.StatePending}}}
	}
	if s.SubmitErr != nil {
		return nil, s.SubmitErr
	}

	id := req.Model + "-job"
	c.byJob[id] = s
	return &job.Handle{Provider: c.Name(), ID: id, SubmittedAt: time.Now()}, nil
}

func (c *StubClient) Poll(_ context.Context, h *job.Handle) (job.Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.byJob[h.ID]
	if !ok {
		return job.Status{State: job.StateFailed, Reason: "unknown job"}, nil
	}
	n := c.polls[h.ID]
	c.polls[h.ID] = n + 1
	if n >= len(s.Statuses) {
		n = len(s.Statuses) - 1
	}
	return s.Statuses[n], nil
}

// PollCount returns how many times the given job id has been polled.
func (c *StubClient) PollCount(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polls[jobID]
}
