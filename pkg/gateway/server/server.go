// Package server assembles the gateway's routes and middleware chain.
package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/voicegate/voicegate/pkg/core/llm/ollama"
	"github.com/voicegate/voicegate/pkg/core/tools"
	"github.com/voicegate/voicegate/pkg/core/voice/stt"
	"github.com/voicegate/voicegate/pkg/gateway/config"
	"github.com/voicegate/voicegate/pkg/gateway/handlers"
	"github.com/voicegate/voicegate/pkg/gateway/live/session"
	"github.com/voicegate/voicegate/pkg/gateway/live/sessions"
	"github.com/voicegate/voicegate/pkg/gateway/metrics"
	"github.com/voicegate/voicegate/pkg/gateway/mw"
)

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	httpClient *http.Client
	mets       *metrics.Metrics
	registry   *sessions.Registry
	draining   atomic.Bool

	transcriber session.Transcriber
	generator   session.Generator
	tools       session.ToolExecutor
}

func New(cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	mets := metrics.New("voicegate")

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		mux:         http.NewServeMux(),
		httpClient:  httpClient,
		mets:        mets,
		transcriber: stt.NewWhisperWithClient(cfg.WhisperURL, httpClient),
		generator:   ollama.NewWithClient(cfg.GenerationURL, httpClient),
		tools:       newToolExecutor(cfg, httpClient),
	}
	s.registry = sessions.NewRegistry(sessions.Hooks{
		OnRegister: func(string) {
			mets.SessionsTotal.Inc()
			mets.SessionsActive.Inc()
		},
		OnUnregister: func(string) {
			mets.SessionsActive.Dec()
		},
	})

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", s.mets.Handler())

	s.mux.Handle("/v1/voice", handlers.VoiceHandler{
		Config:      s.cfg,
		Logger:      s.logger,
		Transcriber: s.transcriber,
		Generator:   s.generator,
		Tools:       s.tools,
		Metrics:     s.mets,
		Sessions:    s.registry,
		Draining:    s.draining.Load,
	})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Sessions exposes the live session registry for drain and shutdown.
func (s *Server) Sessions() *sessions.Registry {
	return s.registry
}

// BeginDrain refuses new sessions and warns the live ones.
func (s *Server) BeginDrain() {
	s.draining.Store(true)
	s.registry.NotifyAll("draining", "server is shutting down")
}

func newToolExecutor(cfg config.Config, httpClient *http.Client) session.ToolExecutor {
	if cfg.ToolHookURL == "" {
		return tools.Disabled{}
	}
	return tools.NewWebhookWithClient(cfg.ToolHookURL, httpClient)
}
