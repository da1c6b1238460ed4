package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/DanikLP1/filevault/internal/auth"
	"github.com/DanikLP1/filevault/internal/clock"
	"github.com/DanikLP1/filevault/internal/config"
	"github.com/DanikLP1/filevault/internal/db"
	"github.com/DanikLP1/filevault/internal/drop"
	"github.com/DanikLP1/filevault/internal/files"
	"github.com/DanikLP1/filevault/internal/logging"
	"github.com/DanikLP1/filevault/internal/promo"
	"github.com/DanikLP1/filevault/internal/server"
	"github.com/DanikLP1/filevault/internal/storage"
	"github.com/DanikLP1/filevault/internal/storage/fsdriver"
	"github.com/DanikLP1/filevault/internal/storage/s3driver"
)

func main() {
	cfg := config.New()

	// filevault token <email> [ttl]: выпустить bearer-токен для локальной проверки
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := printToken(cfg, os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger := logging.New(logging.Config{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	database, err := db.Open(cfg.DBDSN)
	if err != nil {
		log.Fatal("DB error:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drv, err := blobDriver(ctx, cfg)
	if err != nil {
		log.Fatal("storage error:", err)
	}
	blobs := storage.NewWithDriver(drv)
	clk := clock.RealClock{}

	srv := server.New(server.Deps{
		DB:     database,
		Promos: promo.NewService(database, clk, logger, promo.Options{QuotaFloor: cfg.QuotaFloorBytes}),
		Drops: drop.NewService(database, blobs, clk, logger, drop.Options{
			Lifetime: cfg.DropLifetime,
			MaxBytes: cfg.DropMaxBytes,
		}),
		Files:  files.NewService(database, blobs, clk, logger, files.Options{MaxBytes: cfg.UploadMaxBytes}),
		Config: cfg,
		Logger: logger,
	})
	httpSrv := srv.HTTPServer(cfg.Addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", cfg.Addr, "blob_driver", cfg.BlobDriver)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	logger.Info("stopped")
}

func blobDriver(ctx context.Context, cfg config.Config) (storage.StorageDriver, error) {
	switch cfg.BlobDriver {
	case "s3":
		return s3driver.New(ctx, s3driver.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PathStyle: cfg.S3PathStyle,
		})
	case "", "fs":
		return fsdriver.New(filepath.Clean(cfg.DataDir)), nil
	}
	return nil, fmt.Errorf("unknown BLOB_DRIVER %q", cfg.BlobDriver)
}

func printToken(cfg config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("usage: filevault token <email> [ttl]")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	ttl := 24 * time.Hour
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("bad ttl: %w", err)
		}
		ttl = d
	}
	tok, err := auth.GenerateToken(args[0], []byte(cfg.JWTSecret), ttl)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
