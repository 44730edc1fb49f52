// Package artifact persists completed stage outputs under a stable
// naming convention, so a failure in a later stage never loses the work
// of earlier ones.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/babyforge/babyforge/types"
)

// Store saves a completed stage's bytes and returns a location the
// caller can hand to users (a filesystem path or an object-storage
// reference).
type Store interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// StageName returns the stable artifact name for a stage:
// stage1_output.jpg, stage2_output.jpg, stage3_output.glb.
func StageName(stage int, ext string) string {
	return fmt.Sprintf("stage%d_output%s", stage, ext)
}

// FSStore writes artifacts into a local directory.
type FSStore struct {
	dir string
}

// NewFSStore creates the directory if needed.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, types.NewError(types.ErrStorage, "create artifact directory").WithCause(err)
	}
	return &FSStore{dir: dir}, nil
}

// Save writes the artifact atomically: a temp file in the same directory
// is renamed into place, so readers never observe a half-written output.
func (s *FSStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", types.NewError(types.ErrStorage, "create temp artifact").WithCause(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", types.NewError(types.ErrStorage, "write artifact").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", types.NewError(types.ErrStorage, "close artifact").WithCause(err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", types.NewError(types.ErrStorage, "finalize artifact").WithCause(err)
	}
	return dst, nil
}
