package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"predictflow/config"
	"predictflow/internal/channel"
	"predictflow/internal/discovery"
	"predictflow/internal/metrics"
	"predictflow/internal/rest"
	"predictflow/internal/sink"
	"predictflow/internal/stream"
	"predictflow/logger"
)

func main() {
	// Optional .env for local development; real deployments use the config
	// file plus environment overrides.
	_ = godotenv.Load()

	configPath := flag.String("config", "config/config.yml", "path to configuration file")
	flag.Parse()

	log := logger.GetLogger()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Fatal("failed to configure logger")
	}

	log.WithEnv().WithFields(logger.Fields{
		"name":    cfg.Predictflow.Name,
		"version": cfg.Predictflow.Version,
	}).Info("starting predictflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatchEnabled {
		metrics.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName,
			cfg.Metrics.AccessKeyID, cfg.Metrics.SecretAccessKey)
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	metrics.SetFeatureEnabled(metrics.FeatureChannelSize, cfg.Metrics.ChannelSize)

	if cfg.Logging.Level == "report" {
		logger.StartReport(ctx, log, time.Minute)
	}

	channels := channel.NewChannels(cfg.Channels.EventBuffer, cfg.Channels.ErrorBuffer)

	// Discovery failure is non-fatal: the stream comes up unsubscribed and
	// unfiltered until a later refresh succeeds.
	discoverer := discovery.NewDiscoverer(cfg.Discovery)
	if err := discoverer.Refresh(ctx); err != nil {
		log.WithError(err).Warn("initial market discovery failed, streaming without subscriptions")
	}

	reader := stream.NewReader(cfg.Stream, channels, discoverer.CategoryOf)
	reader.SetInstruments(discoverer.Snapshot().Instruments)
	if err := reader.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start stream reader")
	}

	discoverer.RunSync(ctx, func() {
		if err := reader.Resubscribe(discoverer.Snapshot().Instruments); err != nil {
			log.WithComponent("main").WithError(err).Warn("resubscription after discovery refresh failed")
		}
	})

	restClient := rest.NewClient(cfg.Rest)
	restClient.Start(ctx)

	runner := sink.NewRunner(channels, sink.NewLogSink())
	runner.Start(ctx)

	metrics.StartChannelSizeMetrics(ctx, channels, 30*time.Second)

	go watchStates(channels)
	go watchErrors(channels)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("shutdown signal received")

	cancel()
	reader.Stop()
	runner.Stop()
	channels.Close()
	log.Info("predictflow stopped")
}

func watchStates(channels *channel.Channels) {
	log := logger.GetLogger().WithComponent("main")
	for state := range channels.States {
		log.WithField("state", state.String()).Info("connection state")
	}
}

func watchErrors(channels *channel.Channels) {
	log := logger.GetLogger().WithComponent("main")
	for streamErr := range channels.Errors {
		log.WithError(streamErr.Err).WithField("component", streamErr.Component).Error("stream error")
	}
}
