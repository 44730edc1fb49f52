package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("connection refused")
	err := NewError(ErrTransport, "replicate unreachable").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("replicate").
		WithModel("model-x")

	if GetErrorCode(err) != ErrTransport {
		t.Fatalf("expected code %s, got %s", ErrTransport, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_AttemptsInMessage(t *testing.T) {
	t.Parallel()

	err := NewError(ErrAllCandidatesExhausted, "stage 1 exhausted").
		WithAttempts([]CandidateFailure{
			{Model: "model-a", Reason: "rejected"},
			{Model: "model-b", Reason: "timed out"},
		})

	msg := err.Error()
	for _, want := range []string{"model-a", "rejected", "model-b", "timed out"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error message %q missing %q", msg, want)
		}
	}
}

func TestIsCode_WrappedError(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrRejected, "bad payload")
	wrapped := fmt.Errorf("submit: %w", inner)

	if !IsCode(wrapped, ErrRejected) {
		t.Fatalf("expected IsCode to see through fmt wrapping")
	}
	if IsCode(wrapped, ErrTransport) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(errors.New("plain"), ErrRejected) {
		t.Fatalf("plain error should carry no code")
	}
}
