package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/usgin/modelmanager/internal/adapters/csvmodel"
	"github.com/usgin/modelmanager/internal/adapters/events"
	"github.com/usgin/modelmanager/internal/adapters/httpapi"
	sqliteadapter "github.com/usgin/modelmanager/internal/adapters/sqlite"
	"github.com/usgin/modelmanager/internal/adapters/sqlite/gormsqlite"
	"github.com/usgin/modelmanager/internal/adapters/storage"
	"github.com/usgin/modelmanager/internal/adapters/wfs"
	"github.com/usgin/modelmanager/internal/adapters/xmlschema"
	"github.com/usgin/modelmanager/internal/core/domain"
	"github.com/usgin/modelmanager/internal/core/ports"
	"github.com/usgin/modelmanager/internal/core/usecase"
	"github.com/usgin/modelmanager/migrations"
)

const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct {
	Addr            string
	DBPath          string
	BaseURL         string
	RegisterLabel   string
	RegisterURL     string
	Storage         string
	MediaRoot       string
	MediaURL        string
	S3Bucket        string
	S3Region        string
	S3PublicURL     string
	SchemaBundleDir string
	FetchTimeout    time.Duration
	WebhookURL      string
	WebhookSecret   string
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func NewServer(ctx context.Context, cfg Config, log *zap.Logger) (*http.Server, io.Closer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := gormsqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	files, err := newFileStorage(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	store := sqliteadapter.NewStore(db)
	register, err := usecase.EnsureDefaultRegister(migrateCtx, store, cfg.RegisterLabel, cfg.RegisterURL)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	links := domain.Links{BaseURL: cfg.BaseURL, RegisterLabel: register.Label, Files: files}
	resolver := xmlschema.NewResolver(files, schemaBundle(cfg.SchemaBundleDir, log), cfg.FetchTimeout, log.Named("schema"))
	schemas := usecase.NewSchemaService(files, resolver, xmlschema.NewIntrospector())
	sync := usecase.NewRewriteSynchronizer(register, links, log.Named("rules"))
	catalog := usecase.NewCatalogService(store, files, sync, schemas, log.Named("catalog"))
	validation := usecase.NewValidationService(
		catalog,
		schemas,
		wfs.NewClient(cfg.FetchTimeout, log.Named("wfs")),
		csvmodel.NewValidator(log.Named("csv")),
		links,
		log.Named("validation"),
	)

	var publisher ports.EventPublisher = events.NewLogPublisher(log.Named("events"))
	if cfg.WebhookURL != "" {
		publisher = events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	}
	dispatcher := usecase.NewOutboxDispatcher(sqliteadapter.NewOutboxRepository(db), publisher, 2*time.Second, 100, log.Named("outbox"))
	dispatcher.Start(context.Background())

	handler := httpapi.NewHandler(
		catalog,
		usecase.NewPresenter(links, schemas, log.Named("presenter")),
		schemas,
		validation,
		usecase.NewResolverService(store),
		files,
		log.Named("http"),
	)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return server, resourceCloser{closers: []io.Closer{dispatcher, db}}, nil
}

func newFileStorage(ctx context.Context, cfg Config) (ports.FileStorage, error) {
	switch cfg.Storage {
	case "", StorageLocal:
		return storage.NewLocal(cfg.MediaRoot, cfg.MediaURL)
	case StorageS3:
		return storage.NewS3(ctx, storage.S3Config{Bucket: cfg.S3Bucket, Region: cfg.S3Region, PublicURL: cfg.S3PublicURL})
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

// schemaBundle is the local mirror of remote schemas, laid out as
// <host>/<path>. GML validation needs it.
func schemaBundle(dir string, log *zap.Logger) fs.FS {
	if dir == "" {
		log.Warn("no schema bundle configured; schemas importing GML will not load")
		return nil
	}
	return os.DirFS(dir)
}
