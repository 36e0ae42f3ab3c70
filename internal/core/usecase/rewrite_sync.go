package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
	"github.com/usgin/modelmanager/internal/metrics"
)

// RewriteSynchronizer keeps one rewrite rule per content model and model
// version, with one accept mapping per media type. Its lifecycle methods run
// inside the caller's write transaction so a failed sync aborts the save.
type RewriteSynchronizer struct {
	register domain.URIRegister
	links    domain.Links
	log      *zap.Logger
}

// NewRewriteSynchronizer binds rules to register, which must already be stored
// (see EnsureDefaultRegister).
func NewRewriteSynchronizer(register domain.URIRegister, links domain.Links, log *zap.Logger) *RewriteSynchronizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &RewriteSynchronizer{register: register, links: links, log: log}
}

// EnsureDefaultRegister gets or creates the register rules are filed under,
// along with the media types mappings refer to. Call it once at startup.
func EnsureDefaultRegister(ctx context.Context, store ports.Store, label, url string) (domain.URIRegister, error) {
	if label == "" {
		return domain.URIRegister{}, errors.New("register label is required")
	}
	var reg domain.URIRegister
	err := store.WriteTX(ctx, func(tx ports.Tx) error {
		var err error
		reg, err = tx.URIs().EnsureRegister(ctx, domain.URIRegister{Label: label, URL: url, CanBeResolved: true})
		if err != nil {
			return err
		}
		for _, media := range []domain.MediaType{domain.MediaXSD, domain.MediaXLS, domain.MediaHTML, domain.MediaJSON} {
			if _, err := tx.URIs().EnsureMediaType(ctx, media); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.URIRegister{}, fmt.Errorf("ensure default register: %w", err)
	}
	return reg, nil
}

func (s *RewriteSynchronizer) Register() domain.URIRegister {
	return s.register
}

// BeforeSave creates the owner's rule, or updates it in place when the owner
// already has one. The caller stores the returned rule id on the owner.
func (s *RewriteSynchronizer) BeforeSave(ctx context.Context, tx ports.Tx, owner domain.RuleOwner) (domain.RewriteRule, error) {
	return s.upsert(ctx, tx, owner)
}

// AfterSave re-derives the rules that depend on a stored owner. A version
// save refreshes its model, whose latest version may have changed. A model
// save refreshes every version, and its own rule when it was just created
// since its view URLs only exist once it has an id.
func (s *RewriteSynchronizer) AfterSave(ctx context.Context, tx ports.Tx, owner domain.RuleOwner, created bool) error {
	switch o := owner.(type) {
	case domain.VersionOwner:
		return s.RefreshModel(ctx, tx, o.Version.ContentModelID)
	case domain.ModelOwner:
		m, err := tx.Catalog().GetModel(ctx, o.Model.ID)
		if err != nil {
			return fmt.Errorf("load saved model: %w", err)
		}
		if created {
			if err := s.refresh(ctx, tx, domain.ModelOwner{Model: m}); err != nil {
				return err
			}
		}
		for _, v := range m.Versions {
			if err := s.refresh(ctx, tx, domain.VersionOwner{Version: v, Model: m}); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported rule owner %T", owner)
	}
}

// RefreshModel re-derives a model's rule from its stored state.
func (s *RewriteSynchronizer) RefreshModel(ctx context.Context, tx ports.Tx, modelID int64) error {
	m, err := tx.Catalog().GetModel(ctx, modelID)
	if err != nil {
		return fmt.Errorf("load model %d: %w", modelID, err)
	}
	return s.refresh(ctx, tx, domain.ModelOwner{Model: m})
}

// AfterDelete removes the owner's rule. Mappings go with it.
func (s *RewriteSynchronizer) AfterDelete(ctx context.Context, tx ports.Tx, owner domain.RuleOwner) error {
	id := owner.RuleID()
	if id == nil {
		return nil
	}
	rule, err := tx.URIs().GetRule(ctx, *id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load rule %d: %w", *id, err)
	}
	if _, err := tx.URIs().DeleteRule(ctx, rule.ID); err != nil {
		return err
	}
	metrics.RuleSyncTotal.WithLabelValues("delete").Inc()
	s.log.Debug("rewrite rule deleted", zap.Int64("rule_id", rule.ID), zap.String("pattern", rule.Pattern))

	return appendRuleEvent(ctx, tx, domain.EventRuleDeleted, domain.RulePayload{
		RuleID:   rule.ID,
		Owner:    owner.Kind(),
		OwnerID:  owner.OwnerID(),
		Register: s.register.Label,
		Label:    rule.Label,
		Pattern:  rule.Pattern,
	})
}

func (s *RewriteSynchronizer) refresh(ctx context.Context, tx ports.Tx, owner domain.RuleOwner) error {
	rule, err := s.upsert(ctx, tx, owner)
	if err != nil {
		return err
	}
	if id := owner.RuleID(); id == nil || *id != rule.ID {
		if err := tx.Catalog().AttachRule(ctx, owner.Kind(), owner.OwnerID(), rule.ID); err != nil {
			return fmt.Errorf("attach rule: %w", err)
		}
	}
	return nil
}

func (s *RewriteSynchronizer) upsert(ctx context.Context, tx ports.Tx, owner domain.RuleOwner) (domain.RewriteRule, error) {
	rule := domain.RewriteRule{
		RegisterID:  s.register.ID,
		Label:       owner.DisplayName(),
		Description: domain.RuleDescription(owner),
		Pattern:     owner.RegexPattern(),
	}
	if id := owner.RuleID(); id != nil {
		existing, err := tx.URIs().GetRule(ctx, *id)
		switch {
		case err == nil:
			rule.ID = existing.ID
			rule.CreatedAt = existing.CreatedAt
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.RewriteRule{}, fmt.Errorf("load rule %d: %w", *id, err)
		}
	}

	saved, err := tx.URIs().SaveRule(ctx, rule)
	if err != nil {
		return domain.RewriteRule{}, err
	}

	var written []domain.MediaTarget
	keep := make([]int64, 0, 4)
	for _, target := range owner.MediaTargets(s.links) {
		if target.RedirectTo == "" {
			continue
		}
		media, err := tx.URIs().EnsureMediaType(ctx, target.Media)
		if err != nil {
			return domain.RewriteRule{}, err
		}
		if _, err := tx.URIs().UpsertMapping(ctx, domain.AcceptMapping{
			RuleID:     saved.ID,
			Media:      media,
			RedirectTo: target.RedirectTo,
		}); err != nil {
			return domain.RewriteRule{}, err
		}
		keep = append(keep, media.ID)
		written = append(written, target)
	}
	if err := tx.URIs().PruneMappings(ctx, saved.ID, keep); err != nil {
		return domain.RewriteRule{}, err
	}

	metrics.RuleSyncTotal.WithLabelValues("upsert").Inc()
	s.log.Debug("rewrite rule synced",
		zap.String("owner", string(owner.Kind())),
		zap.Int64("owner_id", owner.OwnerID()),
		zap.Int64("rule_id", saved.ID),
		zap.Int("mappings", len(written)),
	)

	err = appendRuleEvent(ctx, tx, domain.EventRuleUpserted, domain.RulePayload{
		RuleID:   saved.ID,
		Owner:    owner.Kind(),
		OwnerID:  owner.OwnerID(),
		Register: s.register.Label,
		Label:    saved.Label,
		Pattern:  saved.Pattern,
		Mappings: written,
	})
	if err != nil {
		return domain.RewriteRule{}, err
	}
	return saved, nil
}

func appendRuleEvent(ctx context.Context, tx ports.Tx, eventType string, payload domain.RulePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rule payload: %w", err)
	}
	envelope := domain.EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		AggregateType: string(payload.Owner),
		AggregateID:   strconv.FormatInt(payload.OwnerID, 10),
		OccurredAt:    time.Now().UTC(),
		Payload:       body,
	}
	return tx.Outbox().Append(ctx, "uri."+eventType, envelope)
}
