// Package meshy implements job.Client over the Meshy image-to-3D OpenAPI:
// a task is created with POST /openapi/v1/image-to-3d and polled via GET
// /openapi/v1/image-to-3d/{id}. 3D conversion is an order of magnitude
// slower than the image stages, so callers pair this client with a long
// timeout and a coarse poll interval.
package meshy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/babyforge/babyforge/internal/tlsutil"
	"github.com/babyforge/babyforge/job"
	"github.com/babyforge/babyforge/providers"
	"github.com/babyforge/babyforge/types"
)

const providerName = "meshy"

// Client is a job.Client for Meshy.
type Client struct {
	cfg     providers.MeshyConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Meshy client.
func NewClient(cfg providers.MeshyConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.meshy.ai"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		// Meshy rate-limits status reads aggressively (429s in the wild).
		rps = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		client:  tlsutil.SecureHTTPClient(timeout),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}
}

func (c *Client) Name() string { return providerName }

type createTaskRequest struct {
	ImageURL      string `json:"image_url"`
	EnablePBR     bool   `json:"enable_pbr"`
	ShouldTexture bool   `json:"should_texture"`
	AIModel       string `json:"ai_model,omitempty"`
}

type createTaskResponse struct {
	Result string `json:"result"`
}

type task struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	ModelURLs struct {
		GLB  string `json:"glb"`
		FBX  string `json:"fbx"`
		OBJ  string `json:"obj"`
		USDZ string `json:"usdz"`
	} `json:"model_urls"`
	ThumbnailURL string `json:"thumbnail_url"`
	TaskError    struct {
		Message string `json:"message"`
	} `json:"task_error"`
}

// Submit creates an image-to-3D task. The payload's image_url field
// carries the composite image; the model identifier selects the Meshy
// generation backbone (ai_model).
func (c *Client) Submit(ctx context.Context, req *job.Request) (*job.Handle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	imageURL, _ := req.Payload["image_url"].(string)
	if imageURL == "" {
		return nil, types.NewError(types.ErrRejected, "payload missing image_url").
			WithProvider(providerName).WithModel(req.Model)
	}

	body, _ := json.Marshal(createTaskRequest{
		ImageURL:      imageURL,
		EnablePBR:     boolPayload(req.Payload, "enable_pbr", true),
		ShouldTexture: boolPayload(req.Payload, "should_texture", true),
		AIModel:       req.Model,
	})

	endpoint := c.endpoint("/openapi/v1/image-to-3d")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "meshy unreachable").
			WithProvider(providerName).WithModel(req.Model).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.mapHTTPError(resp, req.Model, "create image-to-3d task")
	}

	var created createTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, types.NewError(types.ErrDecode, "decode task response").
			WithProvider(providerName).WithModel(req.Model).WithCause(err)
	}
	if created.Result == "" {
		return nil, types.NewError(types.ErrDecode, "task response missing id").
			WithProvider(providerName).WithModel(req.Model)
	}

	c.logger.Debug("image-to-3d task created",
		zap.String("model", req.Model),
		zap.String("task_id", created.Result),
	)
	return &job.Handle{Provider: providerName, ID: created.Result, SubmittedAt: time.Now()}, nil
}

// Poll reads the task status once. The succeeded output is normalized to
// flat keys (glb_url, fbx_url, obj_url, usdz_url, thumbnail_url) so stage
// decoding never depends on Meshy's nested response shape.
func (c *Client) Poll(ctx context.Context, h *job.Handle) (job.Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return job.Status{}, err
	}

	endpoint := c.endpoint("/openapi/v1/image-to-3d/" + h.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return job.Status{}, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return job.Status{}, types.NewError(types.ErrTransport, "meshy unreachable").
			WithProvider(providerName).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return job.Status{}, c.mapHTTPError(resp, "", "fetch task status")
	}

	var t task
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return job.Status{}, types.NewError(types.ErrDecode, "decode task status").
			WithProvider(providerName).WithCause(err)
	}

	switch t.Status {
	case "PENDING":
		return job.Status{State: job.StatePending}, nil
	case "IN_PROGRESS", "PROCESSING":
		return job.Status{State: job.StateRunning}, nil
	case "SUCCEEDED":
		return job.Status{State: job.StateSucceeded, Output: map[string]any{
			"glb_url":       t.ModelURLs.GLB,
			"fbx_url":       t.ModelURLs.FBX,
			"obj_url":       t.ModelURLs.OBJ,
			"usdz_url":      t.ModelURLs.USDZ,
			"thumbnail_url": t.ThumbnailURL,
		}}, nil
	case "FAILED", "EXPIRED":
		reason := t.TaskError.Message
		if reason == "" {
			reason = "task " + strings.ToLower(t.Status)
		}
		return job.Status{State: job.StateFailed, Reason: reason}, nil
	default:
		return job.Status{State: job.StateFailed, Reason: fmt.Sprintf("unknown task status %q", t.Status)}, nil
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) mapHTTPError(resp *http.Response, model, op string) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := fmt.Sprintf("%s: status=%d body=%s", op, resp.StatusCode, strings.TrimSpace(string(data)))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, msg).
			WithProvider(providerName).WithModel(model).WithHTTPStatus(resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithProvider(providerName).WithModel(model).WithHTTPStatus(resp.StatusCode).WithRetryable(true)
	case resp.StatusCode >= 500:
		return types.NewError(types.ErrTransport, msg).
			WithProvider(providerName).WithModel(model).WithHTTPStatus(resp.StatusCode).WithRetryable(true)
	default:
		return types.NewError(types.ErrRejected, msg).
			WithProvider(providerName).WithModel(model).WithHTTPStatus(resp.StatusCode).WithRetryable(true)
	}
}

func boolPayload(p map[string]any, key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}
