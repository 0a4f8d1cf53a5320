package main

import (
	"context"
	"fmt"
	"log"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/livestore"
)

func openLiveStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (livestore.Store, func(), error) {
	if cfg.LiveStore == "memory" {
		logger.Println("[boot] live store: in-memory")
		return livestore.NewMemory(), func() {}, nil
	}

	rs := livestore.NewRedis(livestore.RedisOpts{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		Namespace: cfg.RedisNamespace,
		Timeout:   cfg.RedisTimeout,
	}, logger)
	pctx, cancel := context.WithTimeout(ctx, cfg.RedisTimeout)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		_ = rs.Close()
		return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	logger.Printf("[boot] live store: redis %s (namespace %s)", cfg.RedisAddr, cfg.RedisNamespace)
	return rs, func() { _ = rs.Close() }, nil
}

func openArchive(ctx context.Context, cfg *config.Config, logger *log.Logger) (archive.Store, func(), error) {
	switch cfg.ArchiveBackend {
	case "memory":
		logger.Println("[boot] archive: in-memory")
		return archive.NewMemory(), func() {}, nil

	case "influx":
		db := archive.NewInflux(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		logger.Printf("[boot] archive: influxdb %s (bucket %s)", cfg.InfluxURL, cfg.InfluxBucket)
		return db, db.Close, nil

	default:
		mc, err := archive.NewMinIO(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseTLS, cfg.S3Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("s3 client: %w", err)
		}
		if err := mc.EnsureBucket(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure bucket %s: %w", cfg.S3Bucket, err)
		}
		logger.Printf("[boot] archive: s3 %s (bucket %s)", cfg.S3Endpoint, cfg.S3Bucket)
		return mc, func() {}, nil
	}
}
