package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/babyforge/babyforge/internal/tlsutil"
	"github.com/babyforge/babyforge/types"
)

// Fetcher downloads stage outputs referenced by URL so they can be
// persisted locally. Data URLs are decoded in place without a network
// round trip.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with a download-sized timeout.
func NewFetcher() *Fetcher {
	return &Fetcher{client: tlsutil.SecureHTTPClient(120 * time.Second)}
}

// Fetch returns the referenced bytes and their content type.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURL(url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", types.NewError(types.ErrTransport, "download stage output").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, "", types.NewError(types.ErrTransport,
			fmt.Sprintf("download stage output: status=%d", resp.StatusCode)).
			WithHTTPStatus(resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", types.NewError(types.ErrTransport, "read stage output").WithCause(err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func decodeDataURL(url string) ([]byte, string, error) {
	rest := strings.TrimPrefix(url, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", types.NewError(types.ErrDecode, "malformed data URL")
	}
	contentType := strings.TrimSuffix(meta, ";base64")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", types.NewError(types.ErrDecode, "decode data URL payload").WithCause(err)
	}
	return data, contentType, nil
}
