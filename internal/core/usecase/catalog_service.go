package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

type FileKind string

const (
	FileXSD FileKind = "xsd"
	FileXLS FileKind = "xls"
	FileSLD FileKind = "sld"
	FileLYR FileKind = "lyr"
)

// VersionFile is an upload attached to a model version.
type VersionFile struct {
	Kind     FileKind
	Filename string
	Content  io.Reader
}

// CatalogService manages content models and versions. Every save and delete
// runs the rewrite synchronizer in the same transaction.
type CatalogService struct {
	store   ports.Store
	files   ports.FileStorage
	sync    *RewriteSynchronizer
	schemas *SchemaService
	log     *zap.Logger
}

func NewCatalogService(store ports.Store, files ports.FileStorage, sync *RewriteSynchronizer, schemas *SchemaService, log *zap.Logger) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogService{store: store, files: files, sync: sync, schemas: schemas, log: log}
}

func (s *CatalogService) ListModels(ctx context.Context) ([]domain.ContentModel, error) {
	var models []domain.ContentModel
	err := s.store.ReadTX(ctx, func(tx ports.Tx) error {
		var err error
		models, err = tx.Catalog().ListModels(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return models, nil
}

// RecentModels returns up to n models ordered by their latest version,
// newest first. Models without versions come last.
func (s *CatalogService) RecentModels(ctx context.Context, n int) ([]domain.ContentModel, error) {
	models, err := s.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(models, func(i, j int) bool {
		a, b := models[i].DateUpdated(), models[j].DateUpdated()
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	if n > 0 && len(models) > n {
		models = models[:n]
	}
	return models, nil
}

func (s *CatalogService) GetModel(ctx context.Context, id int64) (domain.ContentModel, error) {
	var m domain.ContentModel
	err := s.store.ReadTX(ctx, func(tx ports.Tx) error {
		var err error
		m, err = tx.Catalog().GetModel(ctx, id)
		return err
	})
	return m, err
}

// GetVersion returns a version together with its model.
func (s *CatalogService) GetVersion(ctx context.Context, id int64) (domain.ModelVersion, domain.ContentModel, error) {
	var (
		v domain.ModelVersion
		m domain.ContentModel
	)
	err := s.store.ReadTX(ctx, func(tx ports.Tx) error {
		var err error
		if v, err = tx.Catalog().GetVersion(ctx, id); err != nil {
			return err
		}
		m, err = tx.Catalog().GetModel(ctx, v.ContentModelID)
		return err
	})
	return v, m, err
}

func (s *CatalogService) SaveModel(ctx context.Context, m domain.ContentModel) (domain.ContentModel, error) {
	if err := m.Validate(); err != nil {
		return domain.ContentModel{}, err
	}

	var out domain.ContentModel
	err := s.store.WriteTX(ctx, func(tx ports.Tx) error {
		created := m.ID == 0

		clash, err := tx.Catalog().GetModelByLabel(ctx, m.Label)
		switch {
		case err == nil && clash.ID != m.ID:
			return domain.ErrDuplicateLabel
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			return err
		}

		if !created {
			current, err := tx.Catalog().GetModel(ctx, m.ID)
			if err != nil {
				return err
			}
			m.RewriteRuleID = current.RewriteRuleID
			m.Versions = current.Versions
			m.CreatedAt = current.CreatedAt
		}

		rule, err := s.sync.BeforeSave(ctx, tx, domain.ModelOwner{Model: m})
		if err != nil {
			return fmt.Errorf("sync model rule: %w", err)
		}
		m.RewriteRuleID = &rule.ID

		saved, err := tx.Catalog().SaveModel(ctx, m)
		if err != nil {
			return err
		}
		if err := s.sync.AfterSave(ctx, tx, domain.ModelOwner{Model: saved}, created); err != nil {
			return fmt.Errorf("sync dependent rules: %w", err)
		}

		out, err = tx.Catalog().GetModel(ctx, saved.ID)
		return err
	})
	if err != nil {
		return domain.ContentModel{}, err
	}
	s.log.Info("content model saved", zap.Int64("id", out.ID), zap.String("label", out.Label))
	return out, nil
}

// DeleteModel removes a model, its versions and every rule they own.
func (s *CatalogService) DeleteModel(ctx context.Context, id int64) (bool, error) {
	var (
		deleted bool
		paths   []string
	)
	err := s.store.WriteTX(ctx, func(tx ports.Tx) error {
		m, err := tx.Catalog().GetModel(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for _, v := range m.Versions {
			if _, err := tx.Catalog().DeleteVersion(ctx, v.ID); err != nil {
				return err
			}
			if err := s.sync.AfterDelete(ctx, tx, domain.VersionOwner{Version: v, Model: m}); err != nil {
				return fmt.Errorf("delete version rule: %w", err)
			}
			paths = append(paths, versionPaths(v)...)
		}

		if deleted, err = tx.Catalog().DeleteModel(ctx, m.ID); err != nil {
			return err
		}
		return s.sync.AfterDelete(ctx, tx, domain.ModelOwner{Model: m})
	})
	if err != nil {
		return false, err
	}
	s.removeFiles(ctx, paths)
	return deleted, nil
}

// SaveVersion stores uploaded files and the version. A new version needs an
// XSD and an XLS file; on update, files not re-uploaded are kept.
func (s *CatalogService) SaveVersion(ctx context.Context, v domain.ModelVersion, files []VersionFile) (domain.ModelVersion, error) {
	if err := v.Validate(); err != nil {
		return domain.ModelVersion{}, err
	}
	created := v.ID == 0

	m, err := s.GetModel(ctx, v.ContentModelID)
	if err != nil {
		return domain.ModelVersion{}, err
	}
	if !created {
		current, _, err := s.GetVersion(ctx, v.ID)
		if err != nil {
			return domain.ModelVersion{}, err
		}
		v.CreatedAt = current.CreatedAt
		v.RewriteRuleID = current.RewriteRuleID
		v.XSDFile, v.XLSFile = current.XSDFile, current.XLSFile
		v.SLDFile, v.LYRFile = current.SLDFile, current.LYRFile
	} else {
		v.CreatedAt = time.Now().UTC()
	}
	for _, other := range m.Versions {
		if other.Version == v.Version && other.ID != v.ID {
			return domain.ModelVersion{}, fmt.Errorf("%w: %s already exists", domain.ErrInvalidVersion, v.Version)
		}
	}

	for _, f := range files {
		p := v.FilePath(m, f.Filename)
		switch f.Kind {
		case FileXSD:
			v.XSDFile = p
		case FileXLS:
			v.XLSFile = p
		case FileSLD:
			v.SLDFile = p
		case FileLYR:
			v.LYRFile = p
		}
	}
	if v.XSDFile == "" || v.XLSFile == "" {
		return domain.ModelVersion{}, fmt.Errorf("%w: xsd and xls files are required", domain.ErrInvalidVersion)
	}

	staged, err := s.stageFiles(ctx, m, v, files)
	if err != nil {
		return domain.ModelVersion{}, err
	}

	var out domain.ModelVersion
	err = s.store.WriteTX(ctx, func(tx ports.Tx) error {
		parent, err := tx.Catalog().GetModel(ctx, v.ContentModelID)
		if err != nil {
			return err
		}
		rule, err := s.sync.BeforeSave(ctx, tx, domain.VersionOwner{Version: v, Model: parent})
		if err != nil {
			return fmt.Errorf("sync version rule: %w", err)
		}
		v.RewriteRuleID = &rule.ID

		if out, err = tx.Catalog().SaveVersion(ctx, v); err != nil {
			return err
		}
		if err := s.sync.AfterSave(ctx, tx, domain.VersionOwner{Version: out, Model: parent}, created); err != nil {
			return fmt.Errorf("sync model rule: %w", err)
		}
		return nil
	})
	if err != nil {
		staged.rollback(ctx)
		return domain.ModelVersion{}, err
	}
	if s.schemas != nil {
		s.schemas.Invalidate(out.XSDFile)
	}
	s.log.Info("model version saved",
		zap.Int64("id", out.ID),
		zap.String("model", m.Label),
		zap.String("version", out.Version),
	)
	return out, nil
}

// stagedFiles remembers what a save replaced so a failed transaction can put
// storage back the way it was.
type stagedFiles struct {
	files    ports.FileStorage
	log      *zap.Logger
	written  []string
	previous map[string][]byte
}

// stageFiles writes the uploads. Content already stored under a target path
// is kept in memory until the save settles.
func (s *CatalogService) stageFiles(ctx context.Context, m domain.ContentModel, v domain.ModelVersion, files []VersionFile) (*stagedFiles, error) {
	st := &stagedFiles{files: s.files, log: s.log, previous: map[string][]byte{}}
	for _, f := range files {
		p := v.FilePath(m, f.Filename)
		if _, seen := st.previous[p]; !seen && !slices.Contains(st.written, p) {
			if rc, err := s.files.Open(ctx, p); err == nil {
				prev, readErr := io.ReadAll(rc)
				rc.Close()
				if readErr != nil {
					st.rollback(ctx)
					return nil, fmt.Errorf("read stored %s file: %w", f.Kind, readErr)
				}
				st.previous[p] = prev
			}
		}
		if err := s.files.Save(ctx, p, f.Content); err != nil {
			st.rollback(ctx)
			return nil, fmt.Errorf("store %s file: %w", f.Kind, err)
		}
		st.written = append(st.written, p)
	}
	return st, nil
}

func (st *stagedFiles) rollback(ctx context.Context) {
	for _, p := range st.written {
		var err error
		if prev, ok := st.previous[p]; ok {
			err = st.files.Save(ctx, p, bytes.NewReader(prev))
		} else {
			err = st.files.Delete(ctx, p)
		}
		if err != nil {
			st.log.Warn("restore stored file", zap.String("path", p), zap.Error(err))
		}
	}
}

// DeleteVersion removes a version and its rule, then re-derives the model
// rule since the latest version may have changed.
func (s *CatalogService) DeleteVersion(ctx context.Context, id int64) (bool, error) {
	var (
		deleted bool
		removed domain.ModelVersion
	)
	err := s.store.WriteTX(ctx, func(tx ports.Tx) error {
		v, err := tx.Catalog().GetVersion(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		m, err := tx.Catalog().GetModel(ctx, v.ContentModelID)
		if err != nil {
			return err
		}
		if deleted, err = tx.Catalog().DeleteVersion(ctx, v.ID); err != nil {
			return err
		}
		if err := s.sync.AfterDelete(ctx, tx, domain.VersionOwner{Version: v, Model: m}); err != nil {
			return fmt.Errorf("delete version rule: %w", err)
		}
		removed = v
		return s.sync.RefreshModel(ctx, tx, m.ID)
	})
	if err != nil {
		return false, err
	}
	if deleted {
		s.removeFiles(ctx, versionPaths(removed))
	}
	return deleted, nil
}

func (s *CatalogService) removeFiles(ctx context.Context, paths []string) {
	for _, p := range paths {
		if s.schemas != nil {
			s.schemas.Invalidate(p)
		}
		if err := s.files.Delete(ctx, p); err != nil {
			s.log.Warn("remove stored file", zap.String("path", p), zap.Error(err))
		}
	}
}

func versionPaths(v domain.ModelVersion) []string {
	var out []string
	for _, p := range []string{v.XSDFile, v.XLSFile, v.SLDFile, v.LYRFile} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
