package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// URIRegistry stores URI registers, rewrite rules and their accept mappings.
type URIRegistry struct {
	tx *gorm.DB
}

func NewURIRegistry(tx *gorm.DB) *URIRegistry {
	return &URIRegistry{tx: tx}
}

// EnsureRegister returns the register with reg.Label, creating it if needed.
// An existing register is returned unchanged.
func (r *URIRegistry) EnsureRegister(ctx context.Context, reg domain.URIRegister) (domain.URIRegister, error) {
	var row uriRegisterModel
	err := r.tx.WithContext(ctx).Where("label = ?", reg.Label).First(&row).Error
	switch {
	case err == nil:
		return toRegister(row), nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return domain.URIRegister{}, fmt.Errorf("find uri register: %w", err)
	}

	row = uriRegisterModel{Label: reg.Label, URL: reg.URL, CanBeResolved: reg.CanBeResolved}
	if err := r.tx.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.URIRegister{}, fmt.Errorf("create uri register: %w", err)
	}
	return toRegister(row), nil
}

func (r *URIRegistry) GetRegisterByLabel(ctx context.Context, label string) (domain.URIRegister, error) {
	var row uriRegisterModel
	if err := r.tx.WithContext(ctx).Where("label = ?", label).First(&row).Error; err != nil {
		return domain.URIRegister{}, notFound(err, "get uri register")
	}
	return toRegister(row), nil
}

func (r *URIRegistry) EnsureMediaType(ctx context.Context, media domain.MediaType) (domain.MediaType, error) {
	row := mediaTypeModel{MimeType: media.MimeType, FileExtension: media.FileExtension}
	err := r.tx.WithContext(ctx).
		Where("mime_type = ? AND file_extension = ?", media.MimeType, media.FileExtension).
		FirstOrCreate(&row).Error
	if err != nil {
		return domain.MediaType{}, fmt.Errorf("ensure media type: %w", err)
	}
	return domain.MediaType{ID: row.ID, MimeType: row.MimeType, FileExtension: row.FileExtension}, nil
}

func (r *URIRegistry) GetRule(ctx context.Context, id int64) (domain.RewriteRule, error) {
	var row rewriteRuleModel
	if err := r.tx.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return domain.RewriteRule{}, notFound(err, "get rewrite rule")
	}
	return toRule(row), nil
}

func (r *URIRegistry) SaveRule(ctx context.Context, rule domain.RewriteRule) (domain.RewriteRule, error) {
	now := time.Now().UTC()
	row := rewriteRuleModel{
		ID:          rule.ID,
		RegisterID:  rule.RegisterID,
		Label:       rule.Label,
		Description: rule.Description,
		Pattern:     rule.Pattern,
		CreatedAt:   rule.CreatedAt,
		UpdatedAt:   now,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}

	var err error
	if row.ID == 0 {
		err = r.tx.WithContext(ctx).Create(&row).Error
	} else {
		err = r.tx.WithContext(ctx).Save(&row).Error
	}
	if err != nil {
		return domain.RewriteRule{}, fmt.Errorf("save rewrite rule: %w", err)
	}
	return toRule(row), nil
}

// DeleteRule removes a rule. Its mappings go with it and owners are detached
// by the foreign keys.
func (r *URIRegistry) DeleteRule(ctx context.Context, id int64) (bool, error) {
	res := r.tx.WithContext(ctx).Where("id = ?", id).Delete(&rewriteRuleModel{})
	if res.Error != nil {
		return false, fmt.Errorf("delete rewrite rule: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *URIRegistry) RulesByRegister(ctx context.Context, registerID int64) ([]domain.RewriteRule, error) {
	var rows []rewriteRuleModel
	if err := r.tx.WithContext(ctx).Where("register_id = ?", registerID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list rewrite rules: %w", err)
	}
	result := make([]domain.RewriteRule, 0, len(rows))
	for _, row := range rows {
		result = append(result, toRule(row))
	}
	return result, nil
}

func (r *URIRegistry) FindRuleByPattern(ctx context.Context, registerID int64, pattern string) (domain.RewriteRule, error) {
	var row rewriteRuleModel
	err := r.tx.WithContext(ctx).
		Where("register_id = ? AND pattern = ?", registerID, pattern).
		Order("id ASC").
		First(&row).Error
	if err != nil {
		return domain.RewriteRule{}, notFound(err, "find rewrite rule")
	}
	return toRule(row), nil
}

// UpsertMapping keeps one mapping per rule and media type; a second upsert
// only moves the redirect target.
func (r *URIRegistry) UpsertMapping(ctx context.Context, mapping domain.AcceptMapping) (domain.AcceptMapping, error) {
	row := acceptMappingModel{
		RuleID:      mapping.RuleID,
		MediaTypeID: mapping.Media.ID,
		RedirectTo:  mapping.RedirectTo,
	}
	err := r.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "rule_id"}, {Name: "media_type_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"redirect_to"}),
	}).Create(&row).Error
	if err != nil {
		return domain.AcceptMapping{}, fmt.Errorf("upsert accept mapping: %w", err)
	}

	var stored acceptMappingModel
	if err := r.tx.WithContext(ctx).
		Where("rule_id = ? AND media_type_id = ?", row.RuleID, row.MediaTypeID).
		First(&stored).Error; err != nil {
		return domain.AcceptMapping{}, fmt.Errorf("load accept mapping: %w", err)
	}
	mapping.ID = stored.ID
	return mapping, nil
}

// PruneMappings deletes the mappings of ruleID whose media type is not kept.
func (r *URIRegistry) PruneMappings(ctx context.Context, ruleID int64, keepMediaIDs []int64) error {
	query := r.tx.WithContext(ctx).Where("rule_id = ?", ruleID)
	if len(keepMediaIDs) > 0 {
		query = query.Where("media_type_id NOT IN ?", keepMediaIDs)
	}
	if err := query.Delete(&acceptMappingModel{}).Error; err != nil {
		return fmt.Errorf("prune accept mappings: %w", err)
	}
	return nil
}

func (r *URIRegistry) Mappings(ctx context.Context, ruleID int64) ([]domain.AcceptMapping, error) {
	var rows []acceptMappingRow
	err := r.tx.WithContext(ctx).
		Table("accept_mappings").
		Select("accept_mappings.*, media_types.mime_type, media_types.file_extension").
		Joins("JOIN media_types ON media_types.id = accept_mappings.media_type_id").
		Where("accept_mappings.rule_id = ?", ruleID).
		Order("accept_mappings.media_type_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list accept mappings: %w", err)
	}

	result := make([]domain.AcceptMapping, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.AcceptMapping{
			ID:     row.ID,
			RuleID: row.RuleID,
			Media: domain.MediaType{
				ID:            row.MediaTypeID,
				MimeType:      row.MimeType,
				FileExtension: row.FileExtension,
			},
			RedirectTo: row.RedirectTo,
		})
	}
	return result, nil
}

func toRegister(row uriRegisterModel) domain.URIRegister {
	return domain.URIRegister{ID: row.ID, Label: row.Label, URL: row.URL, CanBeResolved: row.CanBeResolved}
}

func toRule(row rewriteRuleModel) domain.RewriteRule {
	return domain.RewriteRule{
		ID:          row.ID,
		RegisterID:  row.RegisterID,
		Label:       row.Label,
		Description: row.Description,
		Pattern:     row.Pattern,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

var _ ports.URIRegistry = (*URIRegistry)(nil)
