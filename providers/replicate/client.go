// Package replicate implements job.Client over the Replicate predictions
// API: a prediction is created with POST /v1/predictions and then polled
// via GET /v1/predictions/{id} until it reports a terminal status.
package replicate

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

const providerName = "replicate"

// Client is a job.Client for Replicate. All outbound requests pass
// through a shared rate limiter so concurrent pipeline runs cannot
// exceed the provider-side quota.
type Client struct {
	cfg     providers.ReplicateConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a Replicate client.
func NewClient(cfg providers.ReplicateConfig, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com/v1"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
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

type predictionRequest struct {
	Version string         `json:"version"`
	Input   map[string]any `json:"input"`
}

type prediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
}

type errorResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Submit creates a prediction. The request payload is passed through as
// the model input untouched. Model references follow the Replicate
// convention "owner/name:version"; only the version id is sent.
func (c *Client) Submit(ctx context.Context, req *job.Request) (*job.Handle, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(predictionRequest{Version: modelVersion(req.Model), Input: req.Payload})
	if err != nil {
		return nil, types.NewError(types.ErrRejected, "encode prediction input").
			WithProvider(providerName).WithModel(req.Model).WithCause(err)
	}

	endpoint := c.endpoint("/predictions")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "replicate unreachable").
			WithProvider(providerName).WithModel(req.Model).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, c.mapHTTPError(resp, req.Model, "create prediction")
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, types.NewError(types.ErrDecode, "decode prediction response").
			WithProvider(providerName).WithModel(req.Model).WithCause(err)
	}
	if pred.ID == "" {
		return nil, types.NewError(types.ErrDecode, "prediction response missing id").
			WithProvider(providerName).WithModel(req.Model)
	}

	c.logger.Debug("prediction created",
		zap.String("model", req.Model),
		zap.String("prediction_id", pred.ID),
	)
	return &job.Handle{Provider: providerName, ID: pred.ID, SubmittedAt: time.Now()}, nil
}

// Poll reads the prediction status once.
func (c *Client) Poll(ctx context.Context, h *job.Handle) (job.Status, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return job.Status{}, err
	}

	endpoint := c.endpoint("/predictions/" + h.ID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return job.Status{}, err
	}
	c.setHeaders(httpReq)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return job.Status{}, types.NewError(types.ErrTransport, "replicate unreachable").
			WithProvider(providerName).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return job.Status{}, c.mapHTTPError(resp, "", "fetch prediction status")
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return job.Status{}, types.NewError(types.ErrDecode, "decode prediction status").
			WithProvider(providerName).WithCause(err)
	}

	switch pred.Status {
	case "starting":
		return job.Status{State: job.StatePending}, nil
	case "processing":
		return job.Status{State: job.StateRunning}, nil
	case "succeeded":
		return job.Status{State: job.StateSucceeded, Output: map[string]any{"output": pred.Output}}, nil
	case "failed", "canceled":
		return job.Status{State: job.StateFailed, Reason: reasonString(pred.Error, pred.Status)}, nil
	default:
		return job.Status{State: job.StateFailed, Reason: fmt.Sprintf("unknown prediction status %q", pred.Status)}, nil
	}
}

// modelVersion extracts the version id from an "owner/name:version"
// reference. Bare version ids pass through unchanged.
func modelVersion(model string) string {
	if i := strings.LastIndex(model, ":"); i >= 0 {
		return model[i+1:]
	}
	return model
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Token "+c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (c *Client) mapHTTPError(resp *http.Response, model, op string) error {
	detail := readErrDetail(resp.Body)
	msg := fmt.Sprintf("%s: status=%d detail=%s", op, resp.StatusCode, detail)

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

func readErrDetail(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var er errorResponse
	if json.Unmarshal(data, &er) == nil {
		if er.Detail != "" {
			return er.Detail
		}
		if er.Message != "" {
			return er.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func reasonString(v any, fallbackStatus string) string {
	switch e := v.(type) {
	case nil:
		return "prediction " + fallbackStatus
	case string:
		return e
	case map[string]any:
		if d, ok := e["detail"].(string); ok {
			return d
		}
		if m, ok := e["message"].(string); ok {
			return m
		}
	}
	return fmt.Sprintf("%v", v)
}
