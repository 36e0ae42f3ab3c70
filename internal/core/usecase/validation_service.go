package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
	"github.com/usgin/modelmanager/internal/metrics"
)

// ValidationService checks external data against the schemas of stored model
// versions. Problems with the data itself come back inside the result; only
// lookup and schema failures are returned as errors.
type ValidationService struct {
	catalog *CatalogService
	schemas *SchemaService
	wfs     ports.WFSClient
	csv     ports.CSVValidator
	links   domain.Links
	log     *zap.Logger
}

func NewValidationService(catalog *CatalogService, schemas *SchemaService, wfs ports.WFSClient, csv ports.CSVValidator, links domain.Links, log *zap.Logger) *ValidationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ValidationService{catalog: catalog, schemas: schemas, wfs: wfs, csv: csv, links: links, log: log}
}

func (s *ValidationService) Capabilities(ctx context.Context, url string) domain.CapabilitiesReport {
	report := s.wfs.Capabilities(ctx, strings.TrimSpace(url))
	metrics.ValidationsTotal.WithLabelValues("capabilities", metrics.Outcome(report.Valid)).Inc()
	return report
}

func (s *ValidationService) ValidateWFS(ctx context.Context, req domain.FeatureRequest) (domain.ValidationReport, error) {
	v, _, err := s.catalog.GetVersion(ctx, req.VersionID)
	if err != nil {
		return domain.ValidationReport{}, err
	}
	validator, err := s.schemas.Validator(ctx, v)
	if err != nil {
		s.log.Warn("resolve version schema", zap.Int64("version_id", v.ID), zap.Error(err))
		return domain.ValidationReport{}, err
	}

	req.CapabilitiesURL = strings.TrimSpace(req.CapabilitiesURL)
	report := s.wfs.ValidateFeatures(ctx, req, validator)
	metrics.ValidationsTotal.WithLabelValues("wfs", metrics.Outcome(report.Valid)).Inc()
	s.log.Info("wfs validated",
		zap.String("url", report.URL),
		zap.String("feature_type", req.FeatureType),
		zap.Int("count", report.Count),
		zap.Bool("valid", report.Valid),
	)
	return report, nil
}

// ValidateCSV checks an upload against a layer of a version schema.
func (s *ValidationService) ValidateCSV(ctx context.Context, upload domain.CSVUpload, versionID int64, layer string) (domain.CSVResult, error) {
	v, m, err := s.catalog.GetVersion(ctx, versionID)
	if err != nil {
		return domain.CSVResult{}, err
	}
	layers, err := s.schemas.Layers(ctx, v)
	if err != nil {
		return domain.CSVResult{}, fmt.Errorf("read layers: %w", err)
	}
	if layer == "" {
		layer = s.schemas.TypeDetails(ctx, v).LayerName
	}

	result := s.csv.Validate(ctx, upload, domain.CSVTarget{
		VersionURI: s.links.VersionURI(m, v),
		Layer:      layer,
		Layers:     layers,
	})
	metrics.ValidationsTotal.WithLabelValues("csv", metrics.Outcome(result.Valid)).Inc()
	return result, nil
}
