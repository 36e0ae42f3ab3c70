package ports

import (
	"context"
	"io"
	"io/fs"
)

// FileStorage stores uploaded model files. Save replaces an existing file of
// the same path in place.
type FileStorage interface {
	Save(ctx context.Context, path string, r io.Reader) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	URL(path string) string
	FS(ctx context.Context) fs.FS
}
