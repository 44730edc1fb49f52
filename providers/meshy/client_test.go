package meshy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/babyforge/babyforge/job"
	"github.com/babyforge/babyforge/providers"
	"github.com/babyforge/babyforge/types"
)

func testClient(baseURL string) *Client {
	return NewClient(providers.MeshyConfig{
		APIToken:          "meshy-token",
		BaseURL:           baseURL,
		RequestsPerSecond: 1000,
	}, zap.NewNop())
}

func TestClient_Submit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/openapi/v1/image-to-3d", r.URL.Path)
		assert.Equal(t, "Bearer meshy-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://cdn.example/full_body.png", body["image_url"])
		assert.Equal(t, true, body["enable_pbr"])
		assert.Equal(t, "meshy-5", body["ai_model"])

		json.NewEncoder(w).Encode(map[string]any{"result": "task-123"})
	}))
	defer srv.Close()

	h, err := testClient(srv.URL).Submit(context.Background(), &job.Request{
		Model:   "meshy-5",
		Payload: map[string]any{"image_url": "https://cdn.example/full_body.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "task-123", h.ID)
	assert.Equal(t, "meshy", h.Provider)
}

func TestClient_SubmitMissingImageURL(t *testing.T) {
	t.Parallel()

	_, err := testClient("http://127.0.0.1:0").Submit(context.Background(), &job.Request{
		Model:   "meshy-5",
		Payload: map[string]any{},
	})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrRejected))
}

func TestClient_PollStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		body    map[string]any
		want    job.State
		wantGLB string
		wantWhy string
	}{
		{
			name: "pending",
			body: map[string]any{"status": "PENDING"},
			want: job.StatePending,
		},
		{
			name: "in progress",
			body: map[string]any{"status": "IN_PROGRESS", "progress": 40},
			want: job.StateRunning,
		},
		{
			name: "succeeded",
			body: map[string]any{
				"status":        "SUCCEEDED",
				"model_urls":    map[string]any{"glb": "https://assets.example/baby.glb"},
				"thumbnail_url": "https://assets.example/thumb.png",
			},
			want:    job.StateSucceeded,
			wantGLB: "https://assets.example/baby.glb",
		},
		{
			name:    "failed",
			body:    map[string]any{"status": "FAILED", "task_error": map[string]any{"message": "mesh reconstruction failed"}},
			want:    job.StateFailed,
			wantWhy: "mesh reconstruction failed",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/openapi/v1/image-to-3d/task-1", r.URL.Path)
				json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			st, err := testClient(srv.URL).Poll(context.Background(), &job.Handle{Provider: "meshy", ID: "task-1"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, st.State)
			if tc.wantGLB != "" {
				assert.Equal(t, tc.wantGLB, st.Output["glb_url"])
			}
			if tc.wantWhy != "" {
				assert.Equal(t, tc.wantWhy, st.Reason)
			}
		})
	}
}

func TestClient_PollRateLimitedIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Poll(context.Background(), &job.Handle{Provider: "meshy", ID: "task-1"})
	require.Error(t, err)
	// 429 must stay retryable so AwaitResult keeps polling instead of
	// failing the multi-minute job.
	assert.True(t, types.IsCode(err, types.ErrRateLimited))
	assert.True(t, types.IsRetryable(err))
}
