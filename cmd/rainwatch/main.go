package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"rainwatch/internal/adapter/hass"
	httpadapter "rainwatch/internal/adapter/http"
	kafkaadapter "rainwatch/internal/adapter/kafka"
	"rainwatch/internal/adapter/mqttstream"
	"rainwatch/internal/config"
	"rainwatch/internal/debuglog"
	"rainwatch/internal/monitor"
	"rainwatch/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	client := hass.NewClient(cfg, logger, metrics)

	// Warning audit stream (feature-flagged via KAFKA_BROKERS).
	var audit monitor.AuditPublisher
	var auditWriter *kafkaadapter.Writer
	if cfg.AuditEnabled() {
		auditWriter = kafkaadapter.NewWriter(cfg, logger)
		audit = auditWriter
		logger.Info("warning audit stream enabled", "topic", cfg.KafkaAuditTopic)
	} else {
		logger.Info("warning audit stream disabled")
	}

	// Per-day debug log (feature-flagged via DEBUG_LOG_DIR).
	var recorder monitor.Recorder
	if cfg.DebugLogEnabled() {
		recorder = debuglog.NewRecorder(cfg)
		logger.Info("debug log enabled", "dir", cfg.DebugLogDir)
	} else {
		logger.Info("debug log disabled")
	}

	mon, err := monitor.New(cfg, client, client, audit, recorder, clockwork.NewRealClock(), logger, metrics)
	if err != nil {
		logger.Error("configuration error", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, mon, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start the event source feeding sensor transitions to the monitor.
	go func() {
		var err error
		switch cfg.EventSource {
		case "mqtt":
			err = mqttstream.New(cfg, mon.HandleStateChange, logger).Run(ctx)
		default:
			err = hass.NewEventStream(cfg, mon.HandleStateChange, logger).Run(ctx)
		}
		if err != nil {
			logger.Error("event source error", "error", err)
			stop()
		}
	}()

	// Start the monitor loop.
	go func() {
		if err := mon.Run(ctx); err != nil {
			logger.Error("monitor error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if auditWriter != nil {
		if err := auditWriter.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
