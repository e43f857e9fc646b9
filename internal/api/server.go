// Package api is the daemon's HTTP surface: gameplay, progress, exams
// and the streaming tutor gateway.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/example/matlab-dojo/internal/config"
	"github.com/example/matlab-dojo/internal/content"
	"github.com/example/matlab-dojo/internal/events"
	"github.com/example/matlab-dojo/internal/game"
	"github.com/example/matlab-dojo/internal/llm"
	"github.com/example/matlab-dojo/internal/progress"
	"github.com/example/matlab-dojo/internal/storage/kv"
	"github.com/example/matlab-dojo/internal/tutor"
)

// Server is the dojo daemon HTTP server.
type Server struct {
	cfg    *config.Config
	server *http.Server
	router *http.ServeMux

	catalog     *content.Catalog
	scopes      []game.ExamScope
	progress    *progress.Store
	llmRegistry *llm.Registry
	chatSession *tutor.Session
	publisher   events.Publisher
	limiter     *Limiter

	runs  *runRegistry
	exams *examRegistry
}

// ServerConfig holds the dependencies the daemon wires up at startup.
type ServerConfig struct {
	Config  *config.Config
	Catalog *content.Catalog
	Store   kv.Store
	Events  events.Publisher
}

// NewServer assembles the HTTP server and its services.
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	s := &Server{
		cfg:     cfg.Config,
		router:  http.NewServeMux(),
		catalog: cfg.Catalog,
		scopes:  game.DefaultScopes(cfg.Catalog),
		runs:    newRunRegistry(),
		exams:   newExamRegistry(),
	}

	s.publisher = cfg.Events
	if s.publisher == nil {
		s.publisher = events.NopPublisher{}
	}

	s.progress = progress.NewStore(cfg.Store)

	registry := llm.NewRegistry()
	if err := s.setupLLMProviders(registry); err != nil {
		return nil, fmt.Errorf("setup llm providers: %w", err)
	}
	s.llmRegistry = registry

	transcripts := tutor.NewTranscriptStore(cfg.Store, nil)
	provider, err := registry.Default()
	if err != nil {
		slog.Warn("no LLM provider configured, chat endpoints will return errors")
	} else {
		s.chatSession = tutor.NewSession(ctx, provider, transcripts, nil)
	}

	s.limiter = NewLimiter(
		time.Duration(cfg.Config.Chat.RateLimitWindowSeconds)*time.Second,
		cfg.Config.Chat.RateLimitMaxRequests,
	)

	s.setupRoutes()

	handler := recoveryMiddleware(loggingMiddleware(correlationIDMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         cfg.Config.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // long for tutor streams
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) setupLLMProviders(registry *llm.Registry) error {
	for name, providerCfg := range s.cfg.LLM.Providers {
		if !providerCfg.Enabled {
			continue
		}

		var provider llm.Provider
		switch name {
		case "claude":
			if providerCfg.APIKey == "" {
				slog.Debug("claude provider enabled but no API key set")
				continue
			}
			provider = llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			})
		case "openai":
			if providerCfg.APIKey == "" {
				slog.Debug("openai provider enabled but no API key set")
				continue
			}
			provider = llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			})
		case "ollama":
			provider = llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			})
		default:
			slog.Warn("unknown LLM provider in config", "name", name)
			continue
		}

		registry.Register(llm.NewResilientProvider(provider, llm.DefaultResilientConfig()))
		slog.Info("registered LLM provider", "name", name, "model", providerCfg.Model)
	}

	if s.cfg.LLM.DefaultProvider != "" {
		if err := registry.SetDefault(s.cfg.LLM.DefaultProvider); err != nil {
			slog.Debug("default LLM provider not registered", "name", s.cfg.LLM.DefaultProvider)
		}
	}
	return nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	s.router.HandleFunc("GET /v1/modules", s.handleListModules)
	s.router.HandleFunc("GET /v1/modules/{id}/challenges", s.handleListChallenges)

	s.router.HandleFunc("POST /v1/runs", s.handleCreateRun)
	s.router.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	s.router.HandleFunc("POST /v1/runs/{id}/submit", s.handleSubmit)
	s.router.HandleFunc("POST /v1/runs/{id}/hint", s.handleHint)

	s.router.HandleFunc("GET /v1/progress", s.handleGetProgress)
	s.router.HandleFunc("POST /v1/progress/reset", s.handleResetProgress)
	s.router.HandleFunc("GET /v1/stats", s.handleStats)
	s.router.HandleFunc("GET /v1/cheatsheet", s.handleCheatSheet)

	s.router.HandleFunc("GET /v1/exam-scopes", s.handleExamScopes)
	s.router.HandleFunc("POST /v1/exams", s.handleCreateExam)
	s.router.HandleFunc("GET /v1/exams/{id}", s.handleGetExam)
	s.router.HandleFunc("POST /v1/exams/{id}/answers", s.handleExamAnswer)
	s.router.HandleFunc("POST /v1/exams/{id}/finish", s.handleFinishExam)

	s.router.HandleFunc("POST /v1/chat/messages", s.handleChatMessage)
	s.router.HandleFunc("GET /v1/chat/transcript", s.handleGetTranscript)
	s.router.HandleFunc("DELETE /v1/chat/transcript", s.handleClearTranscript)
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	slog.Info("starting dojo daemon",
		"addr", s.server.Addr,
		"modules", len(s.catalog.Modules),
		"llm_providers", s.llmRegistry.List(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon")
	s.exams.stopAll()
	s.limiter.Close()
	if err := s.publisher.Close(); err != nil {
		slog.Warn("failed to close event publisher", "error", err)
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the server's handler chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"version":       "0.1.0",
		"modules":       len(s.catalog.Modules),
		"challenges":    s.catalog.TotalChallenges(),
		"storage":       s.cfg.Storage.Backend,
		"llm_providers": s.llmRegistry.List(),
	})
}

func (s *Server) handleListModules(w http.ResponseWriter, r *http.Request) {
	result := make([]map[string]interface{}, 0, len(s.catalog.Modules))
	for _, mod := range s.catalog.Modules {
		result = append(result, map[string]interface{}{
			"id":             mod.ID,
			"name":           mod.Name,
			"shortName":      mod.ShortName,
			"challengeCount": len(mod.Challenges),
		})
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"modules": result})
}

func (s *Server) handleListChallenges(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid module id", err)
		return
	}
	mod, ok := s.catalog.Module(id)
	if !ok {
		s.jsonError(w, http.StatusNotFound, "module not found", nil)
		return
	}
	// Challenge JSON tags hide solutions, hints and expected output.
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"module":     mod.ID,
		"name":       mod.Name,
		"challenges": mod.Challenges,
	})
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	doc := s.progress.Load(r.Context())
	s.jsonResponse(w, http.StatusOK, doc)
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	if err := s.progress.Reset(r.Context()); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to reset progress", err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{"reset": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	doc := s.progress.Load(r.Context())
	s.jsonResponse(w, http.StatusOK, game.ComputeStats(doc, s.catalog))
}

func (s *Server) handleCheatSheet(w http.ResponseWriter, r *http.Request) {
	doc := s.progress.Load(r.Context())
	sheet := game.CheatSheet(doc, s.catalog)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, sheet)
}

func (s *Server) logError(r *http.Request, message string, err error) {
	slog.Error(message,
		"correlation_id", GetCorrelationID(r.Context()),
		"error", err,
	)
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
