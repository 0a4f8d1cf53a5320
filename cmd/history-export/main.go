package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lucaslui/minermonitor/internal/archive"
	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/export"
	"github.com/lucaslui/minermonitor/internal/history"
	"github.com/lucaslui/minermonitor/internal/model"
)

func main() {
	helmet := flag.String("helmet", "", "helmet id to export")
	date := flag.String("date", time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"), "UTC day to export (YYYY-MM-DD)")
	flag.Parse()

	logger := config.GetLogger()
	if *helmet == "" {
		logger.Println("[export] -helmet is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatalf("[boot] invalid configuration: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mc, err := archive.NewMinIO(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseTLS, cfg.S3Bucket)
	if err != nil {
		logger.Fatalf("[export] s3 client error: %v", err)
	}
	if err := mc.EnsureBucket(ctx); err != nil {
		logger.Fatalf("[export] ensure bucket error: %v", err)
	}

	var source archive.Store = mc
	if cfg.ArchiveBackend == "influx" {
		db := archive.NewInflux(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		defer db.Close()
		source = db
	}

	e := &export.Exporter{
		Reader:      history.NewReader(source),
		Uploader:    mc,
		BasePath:    cfg.ExportBasePath,
		Compression: cfg.ParquetCompression,
		Logger:      logger,
	}
	res, err := e.Export(ctx, model.HelmetID(*helmet), *date)
	if err != nil {
		logger.Fatalf("[export] %s %s: %v", *helmet, *date, err)
	}
	if res.Rows == 0 {
		logger.Printf("[export] %s %s: nothing to export", *helmet, *date)
		return
	}
	logger.Printf("[export] done: %d rows in %s", res.Rows, res.Object)
}
