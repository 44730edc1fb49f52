package job

import (
	"context"
	"fmt"
	"time"

	"github.com/babyforge/babyforge/types"
)

// Client wraps a single asynchronous inference provider's HTTP contract.
//
// Submit hands a Request to the provider and returns a Handle for the
// accepted job. It fails with a types.Error coded TRANSPORT when the
// provider cannot be reached and REJECTED (or AUTHENTICATION) when the
// provider synchronously refuses the payload.
//
// Poll performs a single remote status read for a previously submitted
// job. It has no side effects beyond that read.
type Client interface {
	Submit(ctx context.Context, req *Request) (*Handle, error)
	Poll(ctx context.Context, h *Handle) (Status, error)
	Name() string
}

const defaultPollInterval = 2 * time.Second

// AwaitResult polls the job at a fixed interval until it reaches a
// terminal state or the timeout elapses, returning a TimedOut Result in
// the latter case. It is the sole blocking operation in the engine; the
// context is checked every iteration so cancellation returns promptly
// instead of waiting out the budget.
//
// Transient poll failures are tolerated until the deadline: a single
// dropped status read should not fail a multi-minute job. Authentication
// failures abort immediately since no amount of polling will fix them.
//
// Awaiting a handle that already holds a terminal Result returns that
// Result without any remote call.
func AwaitResult(ctx context.Context, c Client, h *Handle, timeout, interval time.Duration) (*Result, error) {
	if r := h.Terminal(); r != nil {
		return r, nil
	}
	if interval <= 0 {
		interval = defaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("await %s job %s: %w", h.Provider, h.ID, ctx.Err())
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return h.finalize(TimedOut()), nil
		}

		st, err := c.Poll(ctx, h)
		if err != nil {
			if types.IsCode(err, types.ErrAuthentication) {
				return nil, err
			}
			continue
		}

		switch st.State {
		case StateSucceeded:
			return h.finalize(Succeeded(st.Output)), nil
		case StateFailed:
			return h.finalize(Failed(st.Reason)), nil
		}
	}
}
