// Package server wires the gateway's routes and middleware chain.
package server

import (
	"log/slog"
	"net/http"

	"github.com/versevox/versevox/pkg/core/compare"
	"github.com/versevox/versevox/pkg/core/retrieval"
	"github.com/versevox/versevox/pkg/core/stt"
	"github.com/versevox/versevox/pkg/core/tts"
	"github.com/versevox/versevox/pkg/gateway/config"
	"github.com/versevox/versevox/pkg/gateway/handlers"
	"github.com/versevox/versevox/pkg/gateway/metrics"
	"github.com/versevox/versevox/pkg/gateway/mw"
	"github.com/versevox/versevox/pkg/gateway/ratelimit"
	"github.com/versevox/versevox/pkg/gateway/session"
	"github.com/versevox/versevox/pkg/store"
)

// Deps carries everything the server serves. STT and TTS may be nil; the
// corresponding endpoints then report voice as unconfigured.
type Deps struct {
	Chunks    store.ChunkStore
	Sessions  *session.Manager
	Retrieval *retrieval.Engine
	Compare   *compare.Engine
	STT       stt.Provider
	TTS       tts.Provider
	Metrics   *metrics.Metrics
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	deps    Deps
	limiter *ratelimit.Limiter
}

func New(cfg config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
		limiter: ratelimit.New(ratelimit.Config{
			RPS:                   cfg.LimitRPS,
			Burst:                 cfg.LimitBurst,
			MaxConcurrentRequests: cfg.LimitMaxConcurrentRequests,
			MaxConcurrentStreams:  cfg.LimitMaxConcurrentStreams,
		}),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:   s.cfg,
		Chunks:   s.deps.Chunks,
		Sessions: s.deps.Sessions,
	})
	if s.deps.Metrics != nil {
		s.mux.Handle("/metrics", s.deps.Metrics.Handler())
	}

	s.mux.Handle("/v1/sessions", handlers.SessionsHandler{
		Sessions: s.deps.Sessions,
		Metrics:  s.deps.Metrics,
	})
	s.mux.Handle("/v1/sessions/select", handlers.SelectHandler{
		Sessions: s.deps.Sessions,
	})
	s.mux.Handle("/v1/sources", handlers.SourcesHandler{
		Chunks: s.deps.Chunks,
	})
	s.mux.Handle("/v1/query", handlers.QueryHandler{
		Sessions:  s.deps.Sessions,
		Retrieval: s.deps.Retrieval,
		Metrics:   s.deps.Metrics,
	})
	s.mux.Handle("/v1/compare", handlers.CompareHandler{
		Sessions: s.deps.Sessions,
		Compare:  s.deps.Compare,
		Metrics:  s.deps.Metrics,
	})
	s.mux.Handle("/v1/transcribe", handlers.TranscribeHandler{
		Config:  s.cfg,
		STT:     s.deps.STT,
		Metrics: s.deps.Metrics,
	})
	s.mux.Handle("/v1/synthesize", handlers.SynthesizeHandler{
		Config:  s.cfg,
		TTS:     s.deps.TTS,
		Limiter: s.limiter,
		Metrics: s.deps.Metrics,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.RateLimit(s.limiter, s.deps.Metrics, h)
	h = mw.SessionAuth(s.deps.Sessions, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Instrument(s.deps.Metrics, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	if s.cfg.MaxBodyBytes > 0 {
		h = maxBody(s.cfg.MaxBodyBytes, h)
	}
	return h
}

func maxBody(limit int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	})
}
