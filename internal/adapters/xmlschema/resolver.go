package xmlschema

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jacoelho/xsd"
	xsderrors "github.com/jacoelho/xsd/errors"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

const defaultFetchTimeout = 30 * time.Second

// Resolver compiles stored XSD files. Compiled schemas are cached per path
// until Invalidate is called for it.
type Resolver struct {
	files  ports.FileStorage
	bundle fs.FS
	client *http.Client
	log    *zap.Logger
	cache  sync.Map // key: xsd path → *Schema
}

// NewResolver returns a Resolver reading stored schemas from files. bundle
// holds local copies of well-known remote schemas laid out as <host>/<path>;
// it may be nil.
func NewResolver(files ports.FileStorage, bundle fs.FS, timeout time.Duration, log *zap.Logger) *Resolver {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		files:  files,
		bundle: bundle,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, xsdPath string) (ports.ElementValidator, error) {
	if cached, ok := r.cache.Load(xsdPath); ok {
		return cached.(*Schema), nil
	}

	fsys := &resolvingFS{
		ctx:    ctx,
		stored: r.files.FS(ctx),
		bundle: r.bundle,
		client: r.client,
		log:    r.log,
	}
	compiled, err := xsd.Load(fsys, xsdPath)
	if err != nil {
		r.log.Warn("schema compile failed", zap.String("path", xsdPath), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrSchema, err)
	}

	s := &Schema{Path: xsdPath, compiled: compiled}
	r.cache.Store(xsdPath, s)
	return s, nil
}

func (r *Resolver) Invalidate(xsdPath string) {
	r.cache.Delete(xsdPath)
}

// Schema is a compiled XSD. It is read-only and safe to share.
type Schema struct {
	Path     string
	compiled *xsd.Schema
}

func (s *Schema) ValidateElement(doc []byte) []string {
	err := s.compiled.Validate(bytes.NewReader(doc))
	if err == nil {
		return nil
	}
	violations, ok := xsderrors.AsValidations(err)
	if !ok {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, message(v))
	}
	return out
}

// message drops the line and column so the same violation reads the same in
// every element.
func message(v xsderrors.Validation) string {
	msg := fmt.Sprintf("[%s] %s", v.Code, v.Message)
	if v.Path != "" {
		msg += " at " + v.Path
	}
	if len(v.Expected) > 0 {
		msg += " (expected: " + strings.Join(v.Expected, ", ") + ")"
	}
	return msg
}

var (
	_ ports.SchemaResolver   = (*Resolver)(nil)
	_ ports.ElementValidator = (*Schema)(nil)
)
