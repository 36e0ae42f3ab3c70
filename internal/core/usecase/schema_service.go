package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

const maxSchemaSize = 8 << 20

// SchemaService reads the XSD of model versions. Field descriptors are cached
// per stored path; a path is invalidated whenever its version is saved.
type SchemaService struct {
	files    ports.FileStorage
	resolver ports.SchemaResolver
	inspect  ports.SchemaIntrospector
	fields   sync.Map // key: xsd path → []domain.FieldInfo
}

func NewSchemaService(files ports.FileStorage, resolver ports.SchemaResolver, inspect ports.SchemaIntrospector) *SchemaService {
	return &SchemaService{files: files, resolver: resolver, inspect: inspect}
}

// Validator compiles the schema of v, wrapping failures in domain.ErrSchema.
func (s *SchemaService) Validator(ctx context.Context, v domain.ModelVersion) (ports.ElementValidator, error) {
	if v.XSDFile == "" {
		return nil, fmt.Errorf("%w: version %s has no schema file", domain.ErrSchema, v.Version)
	}
	return s.resolver.Resolve(ctx, v.XSDFile)
}

func (s *SchemaService) Fields(ctx context.Context, v domain.ModelVersion) ([]domain.FieldInfo, error) {
	if cached, ok := s.fields.Load(v.XSDFile); ok {
		return cached.([]domain.FieldInfo), nil
	}
	raw, err := s.read(ctx, v)
	if err != nil {
		return nil, err
	}
	fields, err := s.inspect.Fields(raw)
	if err != nil {
		return nil, err
	}
	s.fields.Store(v.XSDFile, fields)
	return fields, nil
}

// TypeDetails degrades to empty values when the schema cannot be read.
func (s *SchemaService) TypeDetails(ctx context.Context, v domain.ModelVersion) domain.TypeDetails {
	raw, err := s.read(ctx, v)
	if err != nil {
		return domain.TypeDetails{}
	}
	return s.inspect.TypeDetails(raw)
}

func (s *SchemaService) Layers(ctx context.Context, v domain.ModelVersion) (map[string][]domain.FieldInfo, error) {
	raw, err := s.read(ctx, v)
	if err != nil {
		return nil, err
	}
	return s.inspect.LayerFields(raw)
}

func (s *SchemaService) Invalidate(xsdPath string) {
	s.fields.Delete(xsdPath)
	s.resolver.Invalidate(xsdPath)
}

func (s *SchemaService) read(ctx context.Context, v domain.ModelVersion) ([]byte, error) {
	if v.XSDFile == "" {
		return nil, fmt.Errorf("%w: version %s has no schema file", domain.ErrSchema, v.Version)
	}
	rc, err := s.files.Open(ctx, v.XSDFile)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrSchema, v.XSDFile, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxSchemaSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrSchema, v.XSDFile, err)
	}
	return raw, nil
}
