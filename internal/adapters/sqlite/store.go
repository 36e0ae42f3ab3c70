package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/usgin/modelmanager/internal/adapters/sqlite/gormsqlite"
	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
)

// Store hands out repositories bound to a single gorm transaction.
type Store struct {
	db *gormsqlite.DB
}

func NewStore(db *gormsqlite.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ReadTX(ctx context.Context, fn func(tx ports.Tx) error) error {
	return s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return fn(storeTx{tx: tx.DB})
	})
}

func (s *Store) WriteTX(ctx context.Context, fn func(tx ports.Tx) error) error {
	return s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return fn(storeTx{tx: tx.DB})
	})
}

type storeTx struct {
	tx *gorm.DB
}

func (t storeTx) Catalog() ports.CatalogRepository { return &CatalogRepository{tx: t.tx} }
func (t storeTx) URIs() ports.URIRegistry          { return &URIRegistry{tx: t.tx} }
func (t storeTx) Outbox() ports.OutboxWriter       { return &OutboxWriter{tx: t.tx} }

// notFound maps gorm's missing-row error onto domain.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%s: %w", what, err)
}

var _ ports.Store = (*Store)(nil)
