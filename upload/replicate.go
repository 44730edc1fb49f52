package upload

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

	"github.com/babyforge/babyforge/internal/tlsutil"
	"github.com/babyforge/babyforge/providers"
	"github.com/babyforge/babyforge/types"
)

// ReplicateFiles uploads through the Replicate files API using the
// slot-based flow: request an upload slot, PUT the bytes to the signed
// URL, then read the public URL off the file metadata.
type ReplicateFiles struct {
	cfg    providers.ReplicateConfig
	client *http.Client
	logger *zap.Logger
}

// NewReplicateFiles creates the files-API uploader.
func NewReplicateFiles(cfg providers.ReplicateConfig, logger *zap.Logger) *ReplicateFiles {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.replicate.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReplicateFiles{
		cfg:    cfg,
		client: tlsutil.SecureHTTPClient(60 * time.Second),
		logger: logger,
	}
}

type fileSlot struct {
	UploadURL string `json:"upload_url"`
	File      struct {
		ID   string            `json:"id"`
		URLs map[string]string `json:"urls"`
	} `json:"file"`
	ID   string            `json:"id"`
	URLs map[string]string `json:"urls"`
}

// Upload publishes the bytes and returns a public HTTPS URL.
func (u *ReplicateFiles) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	slot, err := u.requestSlot(ctx, name, contentType)
	if err != nil {
		return "", err
	}
	if err := u.putBytes(ctx, slot.UploadURL, data, contentType); err != nil {
		return "", err
	}

	fileID := slot.File.ID
	if fileID == "" {
		fileID = slot.ID
	}
	if url := firstHTTPURL(slot.File.URLs); url != "" {
		return url, nil
	}
	if url := firstHTTPURL(slot.URLs); url != "" {
		return url, nil
	}
	return u.resolvePublicURL(ctx, fileID)
}

func (u *ReplicateFiles) requestSlot(ctx context.Context, name, contentType string) (*fileSlot, error) {
	body, _ := json.Marshal(map[string]string{
		"filename":     name,
		"content_type": contentType,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint("/files"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+u.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrTransport, "request upload slot").WithProvider("replicate").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, types.NewError(types.ErrUploadFailed,
			fmt.Sprintf("upload slot refused: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(detail)))).
			WithProvider("replicate").WithHTTPStatus(resp.StatusCode)
	}

	var slot fileSlot
	if err := json.NewDecoder(resp.Body).Decode(&slot); err != nil {
		return nil, types.NewError(types.ErrDecode, "decode upload slot").WithProvider("replicate").WithCause(err)
	}
	if slot.UploadURL == "" {
		return nil, types.NewError(types.ErrDecode, "upload slot missing upload_url").WithProvider("replicate")
	}
	return &slot, nil
}

func (u *ReplicateFiles) putBytes(ctx context.Context, uploadURL string, data []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.client.Do(req)
	if err != nil {
		return types.NewError(types.ErrTransport, "put upload bytes").WithProvider("replicate").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return types.NewError(types.ErrUploadFailed,
			fmt.Sprintf("upload put failed: status=%d", resp.StatusCode)).
			WithProvider("replicate").WithHTTPStatus(resp.StatusCode)
	}
	return nil
}

func (u *ReplicateFiles) resolvePublicURL(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", types.NewError(types.ErrDecode, "upload slot missing file id").WithProvider("replicate")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.endpoint("/files/"+fileID), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Token "+u.cfg.APIToken)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", types.NewError(types.ErrTransport, "fetch file metadata").WithProvider("replicate").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", types.NewError(types.ErrUploadFailed,
			fmt.Sprintf("file metadata fetch failed: status=%d", resp.StatusCode)).
			WithProvider("replicate").WithHTTPStatus(resp.StatusCode)
	}

	var meta fileSlot
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return "", types.NewError(types.ErrDecode, "decode file metadata").WithProvider("replicate").WithCause(err)
	}
	if url := firstHTTPURL(meta.URLs); url != "" {
		return url, nil
	}
	if url := firstHTTPURL(meta.File.URLs); url != "" {
		return url, nil
	}
	return "", types.NewError(types.ErrDecode, "file metadata holds no public URL").WithProvider("replicate")
}

func (u *ReplicateFiles) endpoint(path string) string {
	return strings.TrimRight(u.cfg.BaseURL, "/") + path
}

// firstHTTPURL prefers the canonical "get" URL, then any HTTPS entry.
func firstHTTPURL(urls map[string]string) string {
	if urls == nil {
		return ""
	}
	if v, ok := urls["get"]; ok && strings.HasPrefix(v, "http") {
		return v
	}
	for _, v := range urls {
		if strings.HasPrefix(v, "http") {
			return v
		}
	}
	return ""
}
