package ports

import (
	"context"

	"github.com/usgin/modelmanager/internal/core/domain"
)

// ElementValidator checks one standalone XML element document and returns
// its violation messages.
type ElementValidator interface {
	ValidateElement(doc []byte) []string
}

type SchemaResolver interface {
	Resolve(ctx context.Context, xsdPath string) (ElementValidator, error)
	Invalidate(xsdPath string)
}

type SchemaIntrospector interface {
	Fields(xsd []byte) ([]domain.FieldInfo, error)
	TypeDetails(xsd []byte) domain.TypeDetails
	LayerFields(xsd []byte) (map[string][]domain.FieldInfo, error)
}

type WFSClient interface {
	Capabilities(ctx context.Context, url string) domain.CapabilitiesReport
	ValidateFeatures(ctx context.Context, req domain.FeatureRequest, schema ElementValidator) domain.ValidationReport
}

type CSVValidator interface {
	Validate(ctx context.Context, upload domain.CSVUpload, target domain.CSVTarget) domain.CSVResult
}
