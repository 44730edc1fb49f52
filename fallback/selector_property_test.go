package fallback_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/babyforge/babyforge/fallback"
	"github.com/babyforge/babyforge/job"
	"github.com/babyforge/babyforge/testutil"
	"github.com/babyforge/babyforge/types"
)

// Property: for any candidate list where candidate k is the first to
// succeed, the selector submits exactly candidates[0..k] in order and
// returns candidate k's result; if none succeeds, it submits every
// candidate once and reports one failure reason per candidate in order.
func TestTryCandidates_OrderingProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(rt, "candidates")
		// -1 means no candidate ever succeeds.
		winner := rapid.IntRange(-1, n-1).Draw(rt, "winner")

		scripts := make(map[string]*testutil.Script, n)
		candidates := make([]string, n)
		for i := 0; i < n; i++ {
			model := fmt.Sprintf("model-%02d", i)
			candidates[i] = model
			if i == winner {
				scripts[model] = &testutil.Script{Statuses: []job.Status{
					{State: job.StateSucceeded, Output: map[string]any{"output": model}},
				}}
				continue
			}
			// Alternate between the recoverable failure kinds.
			if i%2 == 0 {
				scripts[model] = &testutil.Script{
					SubmitErr: types.NewError(types.ErrRejected, "rejected").WithRetryable(true),
				}
			} else {
				scripts[model] = &testutil.Script{Statuses: []job.Status{
					{State: job.StateFailed, Reason: "failed"},
				}}
			}
		}

		client := testutil.NewStubClient(scripts)
		sel := fallback.NewSelector(client, zap.NewNop(), nil)
		selection, err := sel.TryCandidates(context.Background(), candidates, func(model string) (*job.Request, error) {
			return &job.Request{Model: model, PollInterval: time.Microsecond, Timeout: time.Second}, nil
		})

		if winner >= 0 {
			if err != nil {
				rt.Fatalf("expected success, got %v", err)
			}
			if selection.Model != candidates[winner] {
				rt.Fatalf("expected winner %s, got %s", candidates[winner], selection.Model)
			}
			want := candidates[:winner+1]
			if len(client.SubmitLog) != len(want) {
				rt.Fatalf("expected submits %v, got %v", want, client.SubmitLog)
			}
			for i := range want {
				if client.SubmitLog[i] != want[i] {
					rt.Fatalf("submit order mismatch at %d: %v vs %v", i, want, client.SubmitLog)
				}
			}
			return
		}

		if err == nil {
			rt.Fatalf("expected exhaustion error")
		}
		var terr *types.Error
		if !errors.As(err, &terr) || terr.Code != types.ErrAllCandidatesExhausted {
			rt.Fatalf("expected ALL_CANDIDATES_EXHAUSTED, got %v", err)
		}
		if len(terr.Attempts) != n {
			rt.Fatalf("expected %d attempt reasons, got %d", n, len(terr.Attempts))
		}
		for i, a := range terr.Attempts {
			if a.Model != candidates[i] {
				rt.Fatalf("attempt %d recorded for %s, want %s", i, a.Model, candidates[i])
			}
		}
	})
}
