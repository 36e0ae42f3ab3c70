package xmlschema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
)

const (
	remoteDir     = "remote"
	maxRemoteSize = 8 << 20

	// GMLBaseSchema is always served from the local bundle.
	GMLBaseSchema = "http://schemas.opengis.net/gml/3.1.1/base/gml.xsd"
)

var gmlBundlePath = strings.TrimPrefix(GMLBaseSchema, "http://")

// resolvingFS serves a schema and everything it includes or imports.
// Stored documents come from the file storage. Absolute schema locations in
// served documents are rewritten to relative paths under remote/<scheme>/,
// which are answered from the bundle when it holds the document and fetched
// over HTTP otherwise. The GML base schema never leaves the bundle.
type resolvingFS struct {
	ctx    context.Context
	stored fs.FS
	bundle fs.FS
	client *http.Client
	log    *zap.Logger
}

func (f *resolvingFS) Open(name string) (fs.File, error) {
	data, err := f.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return &memFile{Reader: bytes.NewReader(data), name: name, size: int64(len(data))}, nil
}

func (f *resolvingFS) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	var (
		data []byte
		err  error
	)
	if rest, ok := strings.CutPrefix(name, remoteDir+"/"); ok {
		data, err = f.remote(rest)
	} else {
		data, err = fs.ReadFile(f.stored, name)
	}
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if strings.HasSuffix(name, ".xsd") {
		data = rewriteLocations(data, path.Dir(name))
	}
	return data, nil
}

// remote answers remote/<scheme>/<host>/<path>.
func (f *resolvingFS) remote(rest string) ([]byte, error) {
	scheme, hostPath, ok := strings.Cut(rest, "/")
	if !ok || (scheme != "http" && scheme != "https") {
		return nil, fs.ErrNotExist
	}
	if hostPath == gmlBundlePath {
		if f.bundle == nil {
			return nil, fmt.Errorf("%w: no schema bundle configured for %s", domain.ErrSchema, GMLBaseSchema)
		}
		data, err := fs.ReadFile(f.bundle, hostPath)
		if err != nil {
			return nil, fmt.Errorf("%w: bundled %s: %w", domain.ErrSchema, GMLBaseSchema, err)
		}
		return data, nil
	}
	if f.bundle != nil {
		if data, err := fs.ReadFile(f.bundle, hostPath); err == nil {
			return data, nil
		}
	}
	return f.fetch(scheme + "://" + hostPath)
}

func (f *resolvingFS) fetch(url string) ([]byte, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(f.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d", domain.ErrFetch, url, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrFetch, url, err)
	}
	f.log.Debug("fetched remote schema", zap.String("url", url), zap.Duration("took", time.Since(start)))
	return data, nil
}

var absoluteLocation = regexp.MustCompile(`(\bschemaLocation\s*=\s*)(["'])(https?)://([^"'#?]+)[^"']*(["'])`)

// rewriteLocations points absolute schema locations of a document living in
// dir at the remote tree.
func rewriteLocations(data []byte, dir string) []byte {
	up := ""
	if dir != "." {
		up = strings.Repeat("../", strings.Count(dir, "/")+1)
	}
	return absoluteLocation.ReplaceAll(data, []byte("${1}${2}"+up+remoteDir+"/${3}/${4}${5}"))
}

type memFile struct {
	*bytes.Reader
	name string
	size int64
}

func (f *memFile) Stat() (fs.FileInfo, error) { return memInfo{name: path.Base(f.name), size: f.size}, nil }
func (f *memFile) Close() error               { return nil }

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o444 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }

var _ fs.ReadFileFS = (*resolvingFS)(nil)
