// Package main implements the entry point for the relaybridge
// application. Relaybridge subscribes to source Nostr relays, runs each
// admitted text note through external classification services and
// republishes the note together with signed annotation events to a set
// of target relays.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/relaybridge/annotation"
	"github.com/c360/relaybridge/classifier"
	"github.com/c360/relaybridge/config"
	"github.com/c360/relaybridge/gate"
	"github.com/c360/relaybridge/ingest"
	"github.com/c360/relaybridge/metric"
	"github.com/c360/relaybridge/normalizer"
	"github.com/c360/relaybridge/notemeta"
	"github.com/c360/relaybridge/orchestrator"
	"github.com/c360/relaybridge/pkg/cache"
	"github.com/c360/relaybridge/publish"
	"github.com/c360/relaybridge/sidechannel"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "relaybridge"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid",
			"sources", len(cfg.SourceRelays),
			"targets", len(cfg.TargetRelays))
		return nil
	}

	ctx := context.Background()

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	metricsServer, err := startMetricsServer(cfg, registry)
	if err != nil {
		return err
	}
	if metricsServer != nil {
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Stop(stopCtx)
		}()
	}

	broker, err := connectSidechannel(cfg, logger, metrics)
	if err != nil {
		return err
	}
	if broker != nil {
		defer broker.Close()
	}

	ingestor, err := buildPipeline(ctx, cfg, broker, metrics, registry, logger)
	if err != nil {
		return err
	}

	return runWithSignalHandling(ctx, ingestor, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting relaybridge (relay-to-relay classification bridge)",
		"version", Version,
		"build_time", BuildTime)

	return cliCfg, logger, false, nil
}

// startMetricsServer exposes the Prometheus registry when an address is
// configured. An empty address disables the listener.
func startMetricsServer(cfg *config.Config, registry *metric.MetricsRegistry) (*metric.Server, error) {
	if cfg.MetricsListenAddr == "" {
		slog.Info("Metrics listener disabled")
		return nil, nil
	}

	server := metric.NewServer(cfg.MetricsListenAddr, registry)
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("start metrics server: %w", err)
	}
	slog.Info("Metrics listener started", "addr", cfg.MetricsListenAddr)
	return server, nil
}

// connectSidechannel connects the optional NATS mirror. Disabled config
// returns a nil broker, which every consumer treats as "no mirror".
func connectSidechannel(cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) (*sidechannel.Broker, error) {
	if !cfg.SidechannelEnabled {
		return nil, nil
	}

	slog.Info("Connecting side-channel brokers", "brokers", cfg.SidechannelBrokers)
	broker, err := sidechannel.Connect(cfg.SidechannelBrokers,
		sidechannel.WithLogger(logger),
		sidechannel.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("connect side channel: %w", err)
	}
	return broker, nil
}

// buildPipeline wires the gate, classifier clients, orchestrator and
// publisher into an Ingestor ready to start.
func buildPipeline(
	ctx context.Context,
	cfg *config.Config,
	broker *sidechannel.Broker,
	metrics *metric.Metrics,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*ingest.Ingestor, error) {
	dedup, err := cache.New[struct{}](ctx, cache.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("create dedup cache: %w", err)
	}

	var recorder gate.InvalidEventRecorder
	if cfg.InvalidEventsFile != "" {
		fileRecorder, err := gate.NewFileRecorder(cfg.InvalidEventsFile, logger)
		if err != nil {
			return nil, fmt.Errorf("open invalid events file: %w", err)
		}
		recorder = fileRecorder
	}
	admissionGate := gate.New(dedup, cfg.FreshnessWindow, recorder, metrics)

	builder, err := annotation.NewBuilder(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create annotation builder: %w", err)
	}

	extractor, err := notemeta.NewExtractor(cfg.ExtraMediaURLPatterns)
	if err != nil {
		return nil, fmt.Errorf("create media extractor: %w", err)
	}

	publisher := publish.New(cfg.TargetRelays, publish.NewPoolSender(ctx), logger, metrics)

	orch := orchestrator.New(
		buildClassifierClients(cfg),
		normalizer.New(normalizer.KeepQuotes),
		extractor,
		builder,
		publisher,
		broker,
		metrics,
		logger,
		cfg.NotePublishDelay,
	)

	return ingest.New(
		ingest.DefaultConfig(),
		cfg.SourceRelays,
		nil, // production relay dialer
		admissionGate,
		orch,
		publisher,
		broker,
		metrics,
		registry,
		logger,
	), nil
}

// buildClassifierClients creates one client per enabled stage. All stages
// share a single HTTP client and the global in-flight limiter.
func buildClassifierClients(cfg *config.Config) orchestrator.Clients {
	httpClient := classifier.NewHTTPClient()
	limiter := classifier.NewLimiter()

	var clients orchestrator.Clients
	if cfg.MediaSafety.Enabled {
		clients.MediaSafety = classifier.NewMediaSafetyClient(
			cfg.MediaSafety.Endpoint, cfg.MediaSafety.Token, httpClient, limiter)
	}
	if cfg.Language.Enabled {
		clients.Language = classifier.NewLanguageClient(
			cfg.Language.Endpoint, cfg.Language.Token, cfg.Language.TruncateLength, httpClient, limiter)
	}
	if cfg.HateSpeech.Enabled {
		clients.HateSpeech = classifier.NewHateSpeechClient(
			cfg.HateSpeech.Endpoint, cfg.HateSpeech.Token, cfg.HateSpeech.TruncateLength, httpClient, limiter)
	}
	if cfg.Sentiment.Enabled {
		clients.Sentiment = classifier.NewSentimentClient(
			cfg.Sentiment.Endpoint, cfg.Sentiment.Token, cfg.Sentiment.TruncateLength, httpClient, limiter)
	}
	if cfg.Topic.Enabled {
		clients.Topic = classifier.NewTopicClient(
			cfg.Topic.Endpoint, cfg.Topic.Token, cfg.Topic.TruncateLength, httpClient, limiter)
	}

	slog.Info("Classification stages configured",
		"nsfw", cfg.MediaSafety.Enabled,
		"language", cfg.Language.Enabled,
		"hate_speech", cfg.HateSpeech.Enabled,
		"sentiment", cfg.Sentiment.Enabled,
		"topic", cfg.Topic.Enabled)

	return clients
}

// runWithSignalHandling starts the ingestor and blocks until a shutdown
// signal arrives.
func runWithSignalHandling(ctx context.Context, ingestor *ingest.Ingestor, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := ingestor.Start(signalCtx); err != nil {
		return fmt.Errorf("start ingest: %w", err)
	}
	slog.Info("Relaybridge started successfully")

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	if err := ingestor.Stop(shutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("Relaybridge shutdown complete")
	return nil
}
