package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/versevox/versevox/pkg/core/compare"
	"github.com/versevox/versevox/pkg/core/embed"
	"github.com/versevox/versevox/pkg/core/llm"
	"github.com/versevox/versevox/pkg/core/retrieval"
	"github.com/versevox/versevox/pkg/core/stt"
	"github.com/versevox/versevox/pkg/core/tts"
	"github.com/versevox/versevox/pkg/gateway/config"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	gatewayserver "github.com/versevox/versevox/pkg/gateway/server"
	"github.com/versevox/versevox/pkg/gateway/session"
	"github.com/versevox/versevox/pkg/store"
	"github.com/versevox/versevox/pkg/store/memstore"
	"github.com/versevox/versevox/pkg/store/pgstore"
)

type serverDeps struct {
	loadConfig   func() (config.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig: config.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func openChunkStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.ChunkStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("no database configured; corpus lives in memory and dies with the process")
		return memstore.New(), func() {}, nil
	}
	pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres store: %w", err)
	}
	return pg, pg.Close, nil
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	chunks, closeStore, err := openChunkStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	generator, err := llm.NewGemini(ctx, llm.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.GeminiModel,
	})
	if err != nil {
		return fmt.Errorf("init generation client: %w", err)
	}
	embedder, err := embed.NewGemini(ctx, embed.GeminiConfig{
		APIKey: cfg.GeminiAPIKey,
		Model:  cfg.EmbedModel,
	})
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}

	var sttProvider stt.Provider
	if cfg.GroqAPIKey != "" {
		sttProvider = stt.NewGroq(cfg.GroqAPIKey)
	} else {
		logger.Warn("no groq api key configured; transcription disabled")
	}

	sessions := session.NewManager(chunks, cfg.SessionTTL, logger)
	sweepCtx, sweepCancel := context.WithCancel(ctx)
	defer sweepCancel()
	sessions.StartSweeper(sweepCtx, cfg.SessionSweepInterval)

	gw := gatewayserver.New(cfg, gatewayserver.Deps{
		Chunks:    chunks,
		Sessions:  sessions,
		Retrieval: retrieval.New(embedder, chunks, generator, logger),
		Compare:   compare.New(embedder, chunks, generator, logger),
		STT:       sttProvider,
		TTS:       tts.NewEdge(),
		Metrics:   metrics.New("versevox"),
	}, logger)

	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"session_ttl", cfg.SessionTTL,
		"voice_enabled", sttProvider != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer drainCancel()
	if !sessions.Drain(drainCtx) {
		logger.Warn("session drain timed out")
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	// A missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "versevox: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
