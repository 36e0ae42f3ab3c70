package ports

import (
	"context"

	"github.com/usgin/modelmanager/internal/core/domain"
)

// Store runs fn inside a transaction. Repositories handed out by Tx are only
// valid until fn returns.
type Store interface {
	ReadTX(ctx context.Context, fn func(tx Tx) error) error
	WriteTX(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	Catalog() CatalogRepository
	URIs() URIRegistry
	Outbox() OutboxWriter
}

type CatalogRepository interface {
	ListModels(ctx context.Context) ([]domain.ContentModel, error)
	GetModel(ctx context.Context, id int64) (domain.ContentModel, error)
	GetModelByLabel(ctx context.Context, label string) (domain.ContentModel, error)
	SaveModel(ctx context.Context, m domain.ContentModel) (domain.ContentModel, error)
	DeleteModel(ctx context.Context, id int64) (bool, error)

	GetVersion(ctx context.Context, id int64) (domain.ModelVersion, error)
	LatestVersion(ctx context.Context, modelID int64) (domain.ModelVersion, error)
	SaveVersion(ctx context.Context, v domain.ModelVersion) (domain.ModelVersion, error)
	DeleteVersion(ctx context.Context, id int64) (bool, error)

	AttachRule(ctx context.Context, kind domain.OwnerKind, ownerID, ruleID int64) error
}

type URIRegistry interface {
	EnsureRegister(ctx context.Context, reg domain.URIRegister) (domain.URIRegister, error)
	GetRegisterByLabel(ctx context.Context, label string) (domain.URIRegister, error)
	EnsureMediaType(ctx context.Context, media domain.MediaType) (domain.MediaType, error)

	GetRule(ctx context.Context, id int64) (domain.RewriteRule, error)
	SaveRule(ctx context.Context, rule domain.RewriteRule) (domain.RewriteRule, error)
	DeleteRule(ctx context.Context, id int64) (bool, error)
	RulesByRegister(ctx context.Context, registerID int64) ([]domain.RewriteRule, error)
	FindRuleByPattern(ctx context.Context, registerID int64, pattern string) (domain.RewriteRule, error)

	UpsertMapping(ctx context.Context, mapping domain.AcceptMapping) (domain.AcceptMapping, error)
	PruneMappings(ctx context.Context, ruleID int64, keepMediaIDs []int64) error
	Mappings(ctx context.Context, ruleID int64) ([]domain.AcceptMapping, error)
}
