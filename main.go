package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"heatflow/config"
	"heatflow/internal/channel"
	"heatflow/internal/dashboard"
	"heatflow/internal/metrics"
	"heatflow/logger"
	"heatflow/processor"
	"heatflow/reader"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Heatflow.Name,
		"version":     cfg.Heatflow.Version,
		"source":      cfg.Feed.Source,
		"environment": cfg.Environment,
	}).Info("starting heatflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics.Configure(cfg.Metrics)
	metrics.Init(cfg.Metrics.Address)
	if cfg.Metrics.CloudWatch.Enabled {
		metrics.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Heatflow.Name)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" || logger.ReportMode() {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	channels := channel.NewChannels(cfg.Channels.FeedBuffer)
	defer channels.Close()

	channels.StartMetricsReporting(ctx)
	metrics.StartChannelSizeMetrics(ctx, channels, 10*time.Second)

	frames := processor.NewFrameStore()
	engine := processor.NewEngine(cfg, channels.Feed, frames)

	source, err := reader.New(cfg, channels)
	if err != nil {
		log.WithError(err).Error("failed to create feed source")
		os.Exit(1)
	}

	dash, err := dashboard.NewServer(cfg.Dashboard, log, engine, frames)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	if err := engine.Start(ctx); err != nil {
		log.WithError(err).Error("engine failed to start")
		os.Exit(1)
	}

	if err := source.Start(ctx); err != nil {
		log.WithError(err).Error("feed source failed to start")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.WithFields(logger.Fields{"address": dash.Address()}).Info("dashboard listening")
			if err := dash.Run(ctx, cfg.Heatflow.Name); err != nil {
				log.WithError(err).Error("dashboard stopped with error")
				cancel()
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
		log.Warn("context cancelled; shutting down")
	}

	log.Info("starting graceful shutdown")
	cancel()

	log.Info("stopping feed source")
	source.Stop()

	log.Info("stopping engine")
	engine.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("heatflow stopped")
}
