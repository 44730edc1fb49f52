package fallback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/babyforge/babyforge/internal/metrics"
	"github.com/babyforge/babyforge/job"
	"github.com/babyforge/babyforge/types"
)

// BuildFunc constructs the provider-specific request for one candidate
// model. Payload shape varies per model, so the stage supplies the
// builder and the selector stays payload-agnostic.
type BuildFunc func(model string) (*job.Request, error)

// Selection is the outcome of a successful fallback pass: the terminal
// job result plus the candidate that produced it.
type Selection struct {
	Model  string
	Result *job.Result
}

// Selector tries an ordered list of candidate models against a single
// provider until one succeeds. Candidates are attempted strictly
// sequentially in caller order, each exactly once; the first success
// short-circuits the rest.
type Selector struct {
	client  job.Client
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewSelector creates a Selector over the given provider client.
// The metrics collector may be nil.
func NewSelector(client job.Client, logger *zap.Logger, collector *metrics.Collector) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{client: client, logger: logger, metrics: collector}
}

// TryCandidates submits each candidate in turn and awaits its result.
// Per-candidate failures of every kind (synchronous rejection, transport
// failure, provider-reported failure, timeout) are absorbed as "try the
// next one". Two conditions propagate immediately instead: context
// cancellation, and authentication failures, which would fail every
// remaining candidate identically.
//
// When all candidates are exhausted the returned error carries code
// ALL_CANDIDATES_EXHAUSTED with one recorded reason per candidate, in
// candidate order.
func (s *Selector) TryCandidates(ctx context.Context, candidates []string, build BuildFunc) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, types.NewError(types.ErrAllCandidatesExhausted, "no candidate models configured").
			WithProvider(s.client.Name())
	}

	attempts := make([]types.CandidateFailure, 0, len(candidates))
	fail := func(model, reason string) {
		attempts = append(attempts, types.CandidateFailure{Model: model, Reason: reason})
		s.metrics.RecordCandidateFailed(s.client.Name(), model)
		s.logger.Warn("candidate failed, advancing to next",
			zap.String("provider", s.client.Name()),
			zap.String("model", model),
			zap.String("reason", reason),
		)
	}

	for _, model := range candidates {
		req, err := build(model)
		if err != nil {
			fail(model, fmt.Sprintf("build request: %v", err))
			continue
		}

		h, err := s.client.Submit(ctx, req)
		if err != nil {
			if types.IsCode(err, types.ErrAuthentication) {
				// Bad credentials fail every candidate the same way;
				// falling through would only burn quota.
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, err
			}
			fail(model, err.Error())
			continue
		}
		s.metrics.RecordJobSubmitted(s.client.Name())

		res, err := job.AwaitResult(ctx, s.client, h, req.Timeout, req.PollInterval)
		if err != nil {
			if ctx.Err() != nil || types.IsCode(err, types.ErrAuthentication) {
				return nil, err
			}
			fail(model, err.Error())
			continue
		}
		s.metrics.RecordJobCompleted(s.client.Name(), res.Outcome.String())

		if res.Outcome == job.OutcomeSucceeded {
			s.logger.Info("candidate succeeded",
				zap.String("provider", s.client.Name()),
				zap.String("model", model),
				zap.Int("attempt", len(attempts)+1),
			)
			return &Selection{Model: model, Result: res}, nil
		}
		fail(model, res.Reason)
	}

	return nil, types.NewError(types.ErrAllCandidatesExhausted,
		fmt.Sprintf("all %d candidate models failed", len(candidates))).
		WithProvider(s.client.Name()).
		WithAttempts(attempts)
}
