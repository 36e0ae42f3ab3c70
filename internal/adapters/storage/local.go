package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/usgin/modelmanager/internal/core/ports"
)

// Local keeps model files below a root directory and serves them under
// mediaURL.
type Local struct {
	root     string
	mediaURL string
}

func NewLocal(root, mediaURL string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	return &Local{root: root, mediaURL: strings.TrimRight(mediaURL, "/")}, nil
}

// Save writes to a temporary file first so readers never see a partial
// upload. An existing file at path is replaced.
func (l *Local) Save(_ context.Context, path string, r io.Reader) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	full, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

// Delete ignores files that are already gone.
func (l *Local) Delete(_ context.Context, path string) error {
	full, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

func (l *Local) URL(path string) string {
	return l.mediaURL + "/" + path
}

func (l *Local) FS(context.Context) fs.FS {
	return os.DirFS(l.root)
}

func (l *Local) resolve(path string) (string, error) {
	if !fs.ValidPath(path) || path == "." {
		return "", &fs.PathError{Op: "resolve", Path: path, Err: fs.ErrInvalid}
	}
	return filepath.Join(l.root, filepath.FromSlash(path)), nil
}

var _ ports.FileStorage = (*Local)(nil)
