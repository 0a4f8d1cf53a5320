package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lucaslui/minermonitor/internal/alerting"
	"github.com/lucaslui/minermonitor/internal/api"
	"github.com/lucaslui/minermonitor/internal/bridge"
	"github.com/lucaslui/minermonitor/internal/broker"
	"github.com/lucaslui/minermonitor/internal/command"
	"github.com/lucaslui/minermonitor/internal/config"
	"github.com/lucaslui/minermonitor/internal/history"
	"github.com/lucaslui/minermonitor/internal/hub"
	"github.com/lucaslui/minermonitor/internal/livestore"
	"github.com/lucaslui/minermonitor/internal/model"
	"github.com/lucaslui/minermonitor/internal/telemetry"
)

func main() {
	logger := config.GetLogger()

	cfg, err := config.LoadConfig(logger)
	if err != nil {
		logger.Fatalf("[boot] invalid configuration: %v", err)
	}
	logger.Printf("[boot] monitor configs loaded:%s", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	live, closeLive, err := openLiveStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("[boot] live store: %v", err)
	}
	defer closeLive()

	arch, closeArchive, err := openArchive(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("[boot] archive: %v", err)
	}
	defer closeArchive()

	wsHub := hub.NewHub(logger)
	notifiers := alerting.Notifiers{wsHub}
	var rejects bridge.RejectSink

	if cfg.KafkaEnabled() {
		if err := broker.EnsureKafkaTopics(ctx, cfg, logger); err != nil {
			logger.Fatalf("[boot] kafka topics: %v", err)
		}
		kafkaClient := broker.NewKafkaClient(cfg, logger)
		defer kafkaClient.Close()
		notifiers = append(notifiers, kafkaClient)
		rejects = kafkaClient
	}

	if cfg.MQTTEnabled() {
		mqttClient := broker.BuildMQTTClient(cfg, logger)
		if err := broker.ConnectWithBackoff(ctx, mqttClient, logger, time.Second, 30*time.Second); err != nil {
			logger.Fatalf("[boot] mqtt: %v", err)
		}
		defer mqttClient.Disconnect(250)
		notifiers = append(notifiers, broker.NewMQTTPublisher(mqttClient, cfg.MQTTTopicPrefix, cfg.MQTTQoS))
	}

	mon := alerting.NewMonitor(live, alerting.Options{
		PollInterval: cfg.OfflinePollInterval,
		OfflineAfter: cfg.OfflineAfter,
		Thresholds:   telemetry.Thresholds{High: cfg.TempHigh, Low: cfg.TempLow},
		Siren:        wsHub,
		Notifier:     notifiers,
		NotifyQueue:  cfg.NotifyQueue,
		Logger:       logger,
	})
	mon.OnUpdate(wsHub.BroadcastView)

	syncer := bridge.NewSyncer(live, arch, rejects, logger)
	scheduler := bridge.NewScheduler(syncer, func() []model.HelmetID {
		lctx, lcancel := context.WithTimeout(ctx, 10*time.Second)
		defer lcancel()
		ids, err := livestore.Helmets(lctx, live)
		if err != nil {
			logger.Printf("[sync] listing helmets failed, using last view: %v", err)
			return mon.View().HelmetIDs()
		}
		return ids
	}, cfg.SyncInterval, logger)

	router := api.NewRouter(api.NewHandler(api.Deps{
		Monitor:  mon,
		Live:     live,
		Syncer:   syncer,
		Resetter: command.NewResetter(live, logger),
		Reader:   history.NewReader(arch),
		Hub:      wsHub,
		Logger:   logger,
	}))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := mon.Start(ctx); err != nil {
		logger.Fatalf("[boot] monitor: %v", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		mon.Stop()
		return nil
	})
	g.Go(func() error {
		logger.Printf("[http] listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Printf("[boot] stopped with error: %v", err)
	}
	logger.Println("[boot] monitor stopped")
}
