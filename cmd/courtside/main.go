// Command courtside is the main entry point for the Courtside voice scoring
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/courtside/internal/bridge"
	"github.com/MrWong99/courtside/internal/bridge/natsbus"
	"github.com/MrWong99/courtside/internal/bridge/ws"
	"github.com/MrWong99/courtside/internal/config"
	"github.com/MrWong99/courtside/internal/health"
	"github.com/MrWong99/courtside/internal/observe"
	"github.com/MrWong99/courtside/internal/voice/orchestrator"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "courtside: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "courtside: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("courtside starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	telemetry, err := observe.Init(ctx, observe.TelemetryConfig{
		ServiceName: "courtside",
		Instance:    cfg.Server.ListenAddr,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics := telemetry.Metrics

	// ── Cloud fallback ────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cloudLLM, err := buildCloudLLM(cfg.Providers, reg, metrics)
	if err != nil {
		slog.Error("failed to build cloud models", "err", err)
		return 1
	}
	resolver := newResolver(cfg.Providers.LLM, cloudLLM)

	// ── Config hot reload ─────────────────────────────────────────────────────
	voice := func() config.VoiceConfig { return cfg.Voice }
	watcher, err := config.NewWatcher(ctx, *configPath, func(r config.Reload) {
		if r.Diff.LogLevelChanged {
			level.Set(slogLevel(r.Diff.NewLogLevel))
		}
		if len(r.Diff.RestartRequired) > 0 {
			slog.Warn("config changes take effect after a restart", "sections", r.Diff.RestartRequired)
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
		voice = watcher.Voice
	}

	// ── Sessions ──────────────────────────────────────────────────────────────
	hub := bridge.NewHub(
		bridge.WithMetrics(metrics),
		bridge.WithSessionOptions(func() []orchestrator.Option {
			return sessionOptions(voice(), resolver, metrics)
		}),
	)

	// ── NATS bridge (optional) ────────────────────────────────────────────────
	var checkers []health.Checker

	natsCfg := cfg.Bridge.NATS
	natsURL := natsCfg.URL
	var embedded *natsbus.EmbeddedServer
	if natsCfg.Embedded && natsURL == "" {
		embedded, err = natsbus.StartEmbedded("0.0.0.0", natsCfg.Port, slog.Default())
		if err != nil {
			slog.Error("failed to start embedded NATS server", "err", err)
			return 1
		}
		natsURL = embedded.ClientURL()
	}

	var bus *natsbus.Bridge
	if natsURL != "" {
		bus, err = natsbus.Connect(natsURL, hub,
			natsbus.WithSubjectPrefix(natsCfg.SubjectPrefix),
			natsbus.WithName(natsCfg.Name),
		)
		if err != nil {
			slog.Error("failed to start NATS bridge", "err", err)
			embedded.Shutdown()
			return 1
		}
		checkers = append(checkers, health.Ready("nats", bus.Connected, "not connected"))
	}

	if cloudLLM != nil && cfg.Voice.CloudFallback {
		checkers = append(checkers, health.Ready("llm", cloudLLM.Available, "all cloud models unavailable"))
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", telemetry.Handler())
	if p := cfg.Bridge.WebSocket.Path; p != "" {
		mux.Handle(p, ws.NewHandler(hub, ws.WithOriginPatterns(cfg.Bridge.WebSocket.OriginPatterns...)))
	}

	// Requests derive from baseCtx so upgraded sockets end on shutdown.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg, natsURL)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		var errs []error
		if bus != nil {
			errs = append(errs, bus.Close())
		}
		errs = append(errs, srv.Shutdown(shutdownCtx))
		cancelBase()
		errs = append(errs, hub.Close())
		embedded.Shutdown()
		errs = append(errs, telemetry.Shutdown(shutdownCtx))
		return errors.Join(errs...)
	})

	slog.Info("server ready; press Ctrl+C to shut down")

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, natsURL string) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Courtside: startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Language", string(cfg.Voice.Language))
	printProvider("Cloud LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printRow("Fallbacks", fmt.Sprintf("%d", len(cfg.Providers.LLMFallbacks)))
	if cfg.Voice.CloudFallback {
		printRow("Cloud parse", "enabled")
	} else {
		printRow("Cloud parse", "(disabled)")
	}
	if p := cfg.Bridge.WebSocket.Path; p != "" {
		printRow("WebSocket", p)
	} else {
		printRow("WebSocket", "(disabled)")
	}
	if natsURL != "" {
		printRow("NATS", natsURL)
	} else {
		printRow("NATS", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
