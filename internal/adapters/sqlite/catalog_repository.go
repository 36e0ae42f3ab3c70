package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// CatalogRepository stores content models and their versions. Versions are
// always returned ordered by version string.
type CatalogRepository struct {
	tx *gorm.DB
}

func NewCatalogRepository(tx *gorm.DB) *CatalogRepository {
	return &CatalogRepository{tx: tx}
}

func (r *CatalogRepository) ListModels(ctx context.Context) ([]domain.ContentModel, error) {
	var rows []contentModelModel
	if err := r.tx.WithContext(ctx).Order("title ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list content models: %w", err)
	}
	if len(rows) == 0 {
		return []domain.ContentModel{}, nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var versions []modelVersionModel
	if err := r.tx.WithContext(ctx).Where("content_model_id IN ?", ids).Order("version ASC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("list model versions: %w", err)
	}
	byModel := map[int64][]domain.ModelVersion{}
	for _, v := range versions {
		byModel[v.ContentModelID] = append(byModel[v.ContentModelID], toVersion(v))
	}

	result := make([]domain.ContentModel, 0, len(rows))
	for _, row := range rows {
		m := toModel(row)
		m.Versions = byModel[row.ID]
		result = append(result, m)
	}
	return result, nil
}

func (r *CatalogRepository) GetModel(ctx context.Context, id int64) (domain.ContentModel, error) {
	var row contentModelModel
	if err := r.tx.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return domain.ContentModel{}, notFound(err, "get content model")
	}
	return r.withVersions(ctx, row)
}

func (r *CatalogRepository) GetModelByLabel(ctx context.Context, label string) (domain.ContentModel, error) {
	var row contentModelModel
	if err := r.tx.WithContext(ctx).Where("label = ?", label).First(&row).Error; err != nil {
		return domain.ContentModel{}, notFound(err, "get content model by label")
	}
	return r.withVersions(ctx, row)
}

func (r *CatalogRepository) withVersions(ctx context.Context, row contentModelModel) (domain.ContentModel, error) {
	var versions []modelVersionModel
	if err := r.tx.WithContext(ctx).Where("content_model_id = ?", row.ID).Order("version ASC").Find(&versions).Error; err != nil {
		return domain.ContentModel{}, fmt.Errorf("list model versions: %w", err)
	}
	m := toModel(row)
	for _, v := range versions {
		m.Versions = append(m.Versions, toVersion(v))
	}
	return m, nil
}

// SaveModel inserts a model when ID is zero and updates it otherwise. The
// returned model carries no versions.
func (r *CatalogRepository) SaveModel(ctx context.Context, m domain.ContentModel) (domain.ContentModel, error) {
	now := time.Now().UTC()
	row := contentModelModel{
		ID:            m.ID,
		Title:         m.Title,
		Label:         m.Label,
		Description:   m.Description,
		Discussion:    m.Discussion,
		Status:        m.Status,
		RewriteRuleID: m.RewriteRuleID,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     now,
	}

	var err error
	if row.ID == 0 {
		row.CreatedAt = now
		err = r.tx.WithContext(ctx).Create(&row).Error
	} else {
		var existing contentModelModel
		if err := r.tx.WithContext(ctx).Where("id = ?", row.ID).First(&existing).Error; err != nil {
			return domain.ContentModel{}, notFound(err, "load content model")
		}
		row.CreatedAt = existing.CreatedAt
		err = r.tx.WithContext(ctx).Save(&row).Error
	}
	if err != nil {
		if isUniqueViolation(err, "content_models.label") {
			return domain.ContentModel{}, domain.ErrDuplicateLabel
		}
		return domain.ContentModel{}, fmt.Errorf("save content model: %w", err)
	}
	return toModel(row), nil
}

func (r *CatalogRepository) DeleteModel(ctx context.Context, id int64) (bool, error) {
	res := r.tx.WithContext(ctx).Where("id = ?", id).Delete(&contentModelModel{})
	if res.Error != nil {
		return false, fmt.Errorf("delete content model: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *CatalogRepository) GetVersion(ctx context.Context, id int64) (domain.ModelVersion, error) {
	var row modelVersionModel
	if err := r.tx.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return domain.ModelVersion{}, notFound(err, "get model version")
	}
	return toVersion(row), nil
}

// LatestVersion is the most recently created version of a model.
func (r *CatalogRepository) LatestVersion(ctx context.Context, modelID int64) (domain.ModelVersion, error) {
	var row modelVersionModel
	err := r.tx.WithContext(ctx).
		Where("content_model_id = ?", modelID).
		Order("created_at DESC").Order("id DESC").
		First(&row).Error
	if err != nil {
		return domain.ModelVersion{}, notFound(err, "latest model version")
	}
	return toVersion(row), nil
}

func (r *CatalogRepository) SaveVersion(ctx context.Context, v domain.ModelVersion) (domain.ModelVersion, error) {
	row := modelVersionModel{
		ID:               v.ID,
		ContentModelID:   v.ContentModelID,
		Version:          v.Version,
		XSDFile:          v.XSDFile,
		XLSFile:          v.XLSFile,
		SLDFile:          v.SLDFile,
		LYRFile:          v.LYRFile,
		SampleWFSRequest: v.SampleWFSRequest,
		RewriteRuleID:    v.RewriteRuleID,
		CreatedAt:        v.CreatedAt,
	}

	var err error
	if row.ID == 0 {
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		err = r.tx.WithContext(ctx).Create(&row).Error
	} else {
		var existing modelVersionModel
		if err := r.tx.WithContext(ctx).Where("id = ?", row.ID).First(&existing).Error; err != nil {
			return domain.ModelVersion{}, notFound(err, "load model version")
		}
		row.CreatedAt = existing.CreatedAt
		err = r.tx.WithContext(ctx).Save(&row).Error
	}
	if err != nil {
		if isUniqueViolation(err, "model_versions.content_model_id") {
			return domain.ModelVersion{}, fmt.Errorf("%w: version %s already exists", domain.ErrInvalidVersion, v.Version)
		}
		return domain.ModelVersion{}, fmt.Errorf("save model version: %w", err)
	}
	return toVersion(row), nil
}

func (r *CatalogRepository) DeleteVersion(ctx context.Context, id int64) (bool, error) {
	res := r.tx.WithContext(ctx).Where("id = ?", id).Delete(&modelVersionModel{})
	if res.Error != nil {
		return false, fmt.Errorf("delete model version: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *CatalogRepository) AttachRule(ctx context.Context, kind domain.OwnerKind, ownerID, ruleID int64) error {
	var model any
	switch kind {
	case domain.OwnerContentModel:
		model = &contentModelModel{}
	case domain.OwnerModelVersion:
		model = &modelVersionModel{}
	default:
		return fmt.Errorf("attach rule: unknown owner kind %q", kind)
	}
	res := r.tx.WithContext(ctx).Model(model).Where("id = ?", ownerID).Update("rewrite_rule_id", ruleID)
	if res.Error != nil {
		return fmt.Errorf("attach rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toModel(row contentModelModel) domain.ContentModel {
	return domain.ContentModel{
		ID:            row.ID,
		Title:         row.Title,
		Label:         row.Label,
		Description:   row.Description,
		Discussion:    row.Discussion,
		Status:        row.Status,
		RewriteRuleID: row.RewriteRuleID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toVersion(row modelVersionModel) domain.ModelVersion {
	return domain.ModelVersion{
		ID:               row.ID,
		ContentModelID:   row.ContentModelID,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt,
		XSDFile:          row.XSDFile,
		XLSFile:          row.XLSFile,
		SLDFile:          row.SLDFile,
		LYRFile:          row.LYRFile,
		SampleWFSRequest: row.SampleWFSRequest,
		RewriteRuleID:    row.RewriteRuleID,
	}
}

func isUniqueViolation(err error, column string) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}

var _ ports.CatalogRepository = (*CatalogRepository)(nil)
