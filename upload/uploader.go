package upload

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/babyforge/babyforge/types"
)

// Uploader publishes raw image bytes somewhere a remote inference
// provider can fetch them and returns the resulting URL.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// maxDataURLBytes bounds inline base64 payloads; providers reject
// request bodies much beyond this.
const maxDataURLBytes = 10 << 20

// DataURL is the terminal uploader fallback: it performs no network call
// and encodes the bytes as a data: URL that providers accept inline.
type DataURL struct{}

// Upload encodes data as a base64 data URL.
func (DataURL) Upload(_ context.Context, _ string, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", types.NewError(types.ErrInvalidInput, "empty image data")
	}
	if len(data) > maxDataURLBytes {
		return "", types.NewError(types.ErrUploadFailed,
			fmt.Sprintf("image too large for inline encoding: %d bytes (max %d)", len(data), maxDataURLBytes))
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Chain tries each uploader in order, returning the first URL obtained.
// The original glue code walked a ladder of upload strategies before
// giving up; Chain is that ladder with the strategies injected.
type Chain struct {
	uploaders []Uploader
	logger    *zap.Logger
}

// NewChain builds an uploader chain. Order is significant.
func NewChain(logger *zap.Logger, uploaders ...Uploader) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{uploaders: uploaders, logger: logger}
}

// Upload delegates to each uploader in turn.
func (c *Chain) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	var lastErr error
	for _, u := range c.uploaders {
		url, err := u.Upload(ctx, name, data, contentType)
		if err == nil {
			return url, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		c.logger.Warn("uploader failed, trying next",
			zap.String("name", name),
			zap.Error(err),
		)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = types.NewError(types.ErrUploadFailed, "no uploaders configured")
	}
	return "", fmt.Errorf("all uploaders failed for %s: %w", name, lastErr)
}
