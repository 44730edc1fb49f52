package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/babyforge/babyforge/job"
	"github.com/babyforge/babyforge/providers"
	"github.com/babyforge/babyforge/types"
)

func testClient(baseURL string) *Client {
	return NewClient(providers.ReplicateConfig{
		APIToken:          "test-token",
		BaseURL:           baseURL,
		RequestsPerSecond: 1000,
	}, zap.NewNop())
}

func TestClient_SubmitAndPoll(t *testing.T) {
	t.Parallel()

	var polls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/predictions":
			assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))

			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "model-x", body["version"])
			input, _ := body["input"].(map[string]any)
			assert.Equal(t, "https://cdn.example/a.jpg", input["source_image"])

			json.NewEncoder(w).Encode(map[string]any{"id": "p1", "status": "starting"})
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			switch polls.Add(1) {
			case 1:
				json.NewEncoder(w).Encode(map[string]any{"id": "p1", "status": "starting"})
			case 2:
				json.NewEncoder(w).Encode(map[string]any{"id": "p1", "status": "processing"})
			default:
				json.NewEncoder(w).Encode(map[string]any{
					"id": "p1", "status": "succeeded",
					"output": []any{"https://cdn.example/out.png"},
				})
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	h, err := c.Submit(context.Background(), &job.Request{
		Model:   "model-x",
		Payload: map[string]any{"source_image": "https://cdn.example/a.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", h.ID)
	assert.Equal(t, "replicate", h.Provider)

	res, err := job.AwaitResult(context.Background(), c, h, 5*time.Second, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, job.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, []any{"https://cdn.example/out.png"}, res.Output["output"])
}

func TestClient_SubmitUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"detail": "invalid token"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), &job.Request{Model: "model-x"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAuthentication))
	assert.False(t, types.IsRetryable(err))
}

func TestClient_SubmitRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]any{"detail": "input.image: unexpected field"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Submit(context.Background(), &job.Request{Model: "model-x"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRejected))
	assert.True(t, types.IsRetryable(err), "rejection should be recoverable by the next candidate")
	assert.Contains(t, err.Error(), "unexpected field")
}

func TestClient_SubmitTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	_, err := testClient(srv.URL).Submit(context.Background(), &job.Request{Model: "model-x"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrTransport))
}

func TestClient_PollFailedCarriesProviderReason(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "p2", "status": "failed", "error": "CUDA out of memory",
		})
	}))
	defer srv.Close()

	st, err := testClient(srv.URL).Poll(context.Background(), &job.Handle{Provider: "replicate", ID: "p2"})
	require.NoError(t, err)
	assert.Equal(t, job.StateFailed, st.State)
	assert.Equal(t, "CUDA out of memory", st.Reason)
}

func TestModelVersion(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "278abc", modelVersion("codeplugtech/face-swap:278abc"))
	assert.Equal(t, "278abc", modelVersion("278abc"))
	assert.Equal(t, "black-forest-labs/flux-schnell", modelVersion("black-forest-labs/flux-schnell"))
}
