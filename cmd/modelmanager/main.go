package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/usgin/modelmanager/internal/app"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "modelmanager",
		Usage: "Content model registry, URI resolver and WFS/CSV validator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("MODELMANAGER_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./modelmanager.sqlite",
				Sources: cli.EnvVars("MODELMANAGER_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.StringFlag{
				Name:    "base-url",
				Value:   "http://localhost:8080",
				Sources: cli.EnvVars("MODELMANAGER_BASE_URL"),
				Usage:   "Public base URL used in model URIs and links",
			},
			&cli.StringFlag{
				Name:    "register-label",
				Value:   "usgin",
				Sources: cli.EnvVars("MODELMANAGER_REGISTER_LABEL"),
				Usage:   "URI register that rewrite rules are filed under",
			},
			&cli.StringFlag{
				Name:    "register-url",
				Value:   "http://localhost:8080/uri-gin/usgin/",
				Sources: cli.EnvVars("MODELMANAGER_REGISTER_URL"),
				Usage:   "Base URL of the URI register",
			},
			&cli.StringFlag{
				Name:    "storage",
				Value:   app.StorageLocal,
				Sources: cli.EnvVars("MODELMANAGER_STORAGE"),
				Usage:   "File storage backend: local or s3",
			},
			&cli.StringFlag{
				Name:    "media-root",
				Value:   "./media",
				Sources: cli.EnvVars("MODELMANAGER_MEDIA_ROOT"),
				Usage:   "Directory for uploaded model files (local storage)",
			},
			&cli.StringFlag{
				Name:    "media-url",
				Value:   "http://localhost:8080/files",
				Sources: cli.EnvVars("MODELMANAGER_MEDIA_URL"),
				Usage:   "Public URL prefix of uploaded files (local storage)",
			},
			&cli.StringFlag{
				Name:    "s3-bucket",
				Sources: cli.EnvVars("MODELMANAGER_S3_BUCKET"),
				Usage:   "Bucket for uploaded model files (s3 storage)",
			},
			&cli.StringFlag{
				Name:    "s3-region",
				Value:   "us-east-1",
				Sources: cli.EnvVars("MODELMANAGER_S3_REGION"),
				Usage:   "Bucket region (s3 storage)",
			},
			&cli.StringFlag{
				Name:    "s3-public-url",
				Sources: cli.EnvVars("MODELMANAGER_S3_PUBLIC_URL"),
				Usage:   "Public URL prefix of the bucket, e.g. a CDN (s3 storage)",
			},
			&cli.StringFlag{
				Name:    "schema-bundle-dir",
				Value:   "./schemas",
				Sources: cli.EnvVars("MODELMANAGER_SCHEMA_BUNDLE_DIR"),
				Usage:   "Local mirror of remote schemas laid out as <host>/<path>",
			},
			&cli.DurationFlag{
				Name:    "fetch-timeout",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("MODELMANAGER_FETCH_TIMEOUT"),
				Usage:   "Timeout for WFS and remote schema requests",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("MODELMANAGER_WEBHOOK_URL"),
				Usage:   "Target URL for rewrite rule change events",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("MODELMANAGER_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("MODELMANAGER_LOG_LEVEL"),
				Usage:   "debug, info, warn or error",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			logger, err := newLogger(c.String("log-level"))
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cfg := app.Config{
				Addr:            c.String("addr"),
				DBPath:          c.String("db-path"),
				BaseURL:         c.String("base-url"),
				RegisterLabel:   c.String("register-label"),
				RegisterURL:     c.String("register-url"),
				Storage:         c.String("storage"),
				MediaRoot:       c.String("media-root"),
				MediaURL:        c.String("media-url"),
				S3Bucket:        c.String("s3-bucket"),
				S3Region:        c.String("s3-region"),
				S3PublicURL:     c.String("s3-public-url"),
				SchemaBundleDir: c.String("schema-bundle-dir"),
				FetchTimeout:    c.Duration("fetch-timeout"),
				WebhookURL:      c.String("webhook-url"),
				WebhookSecret:   c.String("webhook-secret"),
			}

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error("close resources", zap.Error(closeErr))
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", zap.String("addr", cfg.Addr))
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case sig := <-sigCh:
				logger.Info("received signal", zap.String("signal", sig.String()))
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
