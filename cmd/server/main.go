package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/formrules/internal/config"
	"github.com/liamcoop/formrules/internal/host"
	"github.com/liamcoop/formrules/internal/logger"
	"github.com/liamcoop/formrules/registry"
	"github.com/liamcoop/formrules/rules"
	"github.com/liamcoop/formrules/sandbox"
)

const maxBodyBytes = 1 << 20

type Server struct {
	cfg     *config.Config
	forms   *registry.Manager
	sandbox *sandbox.Manager
	host    *host.MemoryHost
	router  *chi.Mux
}

func NewServer(cfg *config.Config) (*Server, error) {
	var hostOpts []host.Option
	if cfg.Host.APIBaseURL != "" {
		hostOpts = append(hostOpts, host.WithAPIBaseURL(cfg.Host.APIBaseURL))
	}
	h := host.NewMemoryHost(hostOpts...)

	sb := sandbox.NewManager(cfg.SandboxConfig(),
		sandbox.WithProgramCache(sandbox.NewInMemoryProgramCache(cfg.CacheConfig())))
	forms := registry.NewManager(sb, cfg.EngineConfig(h.Context()))

	if cfg.DefinitionsDir != "" {
		logger.Info("Loading form definitions", "dir", cfg.DefinitionsDir)
		n, err := forms.LoadDefinitions(cfg.DefinitionsDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load form definitions: %w", err)
		}
		logger.Info("Loaded form definitions", "count", n, "forms", forms.ListForms())
	}

	s := &Server{
		cfg:     cfg,
		forms:   forms,
		sandbox: sb,
		host:    h,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/metrics", s.handleMetrics)

	// Form management
	r.Route("/api/v1/forms", func(r chi.Router) {
		r.Get("/", s.handleListForms)
		r.Post("/", s.handleCreateForm)

		r.Route("/{formId}", func(r chi.Router) {
			r.Get("/", s.handleGetForm)
			r.Delete("/", s.handleDeleteForm)
			r.Put("/schema", s.handleUpdateSchema)

			// Rule management
			r.Post("/rules", s.handlePutRule)
			r.Get("/rules", s.handleListRules)
			r.Get("/rules/{ruleId}", s.handleGetRule)
			r.Delete("/rules/{ruleId}", s.handleDeleteRule)

			// Evaluation
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/apply-schema", s.handleApplySchema)
			r.Post("/validate", s.handleValidate)
			r.Post("/field-state", s.handleFieldState)
		})
	})

	// Scripts
	r.Route("/api/v1/scripts", func(r chi.Router) {
		if s.cfg.RateLimit.RPS > 0 {
			r.Use(newClientLimiter(s.cfg.RateLimit).Middleware)
		}
		r.Post("/execute", s.handleExecuteScript)
		r.Post("/validate", s.handleValidateScript)
		r.Get("/active", s.handleActiveScripts)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs each request and feeds the HTTP error counters.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		switch {
		case status >= 500:
			logger.ErrorHttp5xx()
			logger.Logger.Error("Request failed", args...)
		case status >= 400:
			logger.WarnHttp4xx(status)
			logger.Debug("Request rejected", args...)
		default:
			logger.Debug("Request served", args...)
		}
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		FormsLoaded: len(s.forms.ListForms()),
	})
}

// Metrics handler
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := logger.Snapshot()
	metrics["scripts_active"] = int64(s.sandbox.ActiveExecutionsCount())
	metrics["forms_loaded"] = int64(len(s.forms.ListForms()))
	respondJSON(w, http.StatusOK, metrics)
}

// List forms handler
func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, FormsListResponse{Forms: s.forms.ListForms()})
}

// Create form handler
func (s *Server) handleCreateForm(w http.ResponseWriter, r *http.Request) {
	var def registry.FormDefinition
	if !decodeBody(w, r, &def) {
		return
	}

	if err := s.forms.CreateForm(def); err != nil {
		if errors.Is(err, registry.ErrFormExists) {
			respondError(w, http.StatusConflict, "form already exists", err)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid form definition", err)
		return
	}

	form, err := s.forms.GetForm(def.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "form vanished after creation", err)
		return
	}
	respondJSON(w, http.StatusCreated, form.Definition())
}

// Get form handler
func (s *Server) handleGetForm(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, form.Definition())
}

// Delete form handler
func (s *Server) handleDeleteForm(w http.ResponseWriter, r *http.Request) {
	if err := s.forms.DeleteForm(chi.URLParam(r, "formId")); err != nil {
		respondError(w, http.StatusNotFound, "form not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Update schema handler
func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formId")

	var req UpdateSchemaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.forms.UpdateFormSchema(formID, req.Schema); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update schema", err)
		return
	}

	engine, err := s.forms.GetEngine(formID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "form vanished after update", err)
		return
	}
	respondJSON(w, http.StatusOK, UpdateSchemaResponse{
		Status:          "active",
		RulesRecompiled: len(engine.GetRules("")),
	})
}

// Create or replace rule handler
func (s *Server) handlePutRule(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	var rule rules.FieldRule
	if !decodeBody(w, r, &rule) {
		return
	}

	if err := form.Engine.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// List rules handler. ?field= narrows to rules indexed under that path.
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	list := form.Engine.GetRules(r.URL.Query().Get("field"))
	if list == nil {
		list = []rules.FieldRule{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: list})
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	rule, err := form.Engine.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	ruleID := chi.URLParam(r, "ruleId")
	if !form.Engine.RemoveRule(ruleID) {
		respondError(w, http.StatusNotFound, "rule not found", fmt.Errorf("%w: %s", rules.ErrRuleNotFound, ruleID))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	var req EvaluateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	startTime := time.Now()
	result := form.Engine.EvaluateRules(r.Context(), req.FormData, req.ChangedField)

	respondJSON(w, http.StatusOK, EvaluateResponse{
		RuleEvaluationResult: result,
		EvaluationTime:       time.Since(startTime).String(),
	})
}

// Apply schema handler
func (s *Server) handleApplySchema(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	var req FormDataRequest
	if !decodeBody(w, r, &req) {
		return
	}

	respondJSON(w, http.StatusOK, SchemaResponse{Schema: form.EffectiveSchema(r.Context(), req.FormData)})
}

// Validate form data handler
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	formID := chi.URLParam(r, "formId")

	var req FormDataRequest
	if !decodeBody(w, r, &req) {
		return
	}

	violations, err := s.forms.ValidateFormData(r.Context(), formID, req.FormData)
	if err != nil {
		if errors.Is(err, registry.ErrFormNotFound) {
			respondError(w, http.StatusNotFound, "form not found", err)
			return
		}
		respondError(w, http.StatusBadRequest, "failed to validate form data", err)
		return
	}
	if violations == nil {
		violations = []registry.FieldViolation{}
	}

	respondJSON(w, http.StatusOK, ValidateResponse{Valid: len(violations) == 0, Violations: violations})
}

// Field state handler
func (s *Server) handleFieldState(w http.ResponseWriter, r *http.Request) {
	form, ok := s.lookupForm(w, r)
	if !ok {
		return
	}

	var req FieldStateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Field == "" {
		respondError(w, http.StatusBadRequest, "field is required", nil)
		return
	}

	state := form.Engine.ComputeFieldState(r.Context(), req.Field, req.FormData)
	respondJSON(w, http.StatusOK, FieldStateResponse{Field: req.Field, State: state})
}

// Execute script handler
func (s *Server) handleExecuteScript(w http.ResponseWriter, r *http.Request) {
	var req ExecuteScriptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ScriptID == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "scriptId and code are required", nil)
		return
	}

	res := s.sandbox.ExecuteScript(r.Context(), req.ScriptID, req.Code, s.host.Context(), req.Payload)

	resp := ScriptResponse{ScriptExecutionResult: res}
	status := http.StatusOK
	var se *sandbox.SandboxError
	if errors.As(res.Err(), &se) {
		resp.Code = se.Code
		if se.Code == sandbox.ErrCodeReentrant {
			status = http.StatusConflict
		}
	}
	respondJSON(w, status, resp)
}

// Validate script handler
func (s *Server) handleValidateScript(w http.ResponseWriter, r *http.Request) {
	var req ValidateScriptRequest
	if !decodeBody(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, s.sandbox.ValidateScript(req.Code))
}

// Active scripts handler
func (s *Server) handleActiveScripts(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ActiveScriptsResponse{Active: s.sandbox.ActiveExecutionsCount()})
}

func (s *Server) lookupForm(w http.ResponseWriter, r *http.Request) (*registry.Form, bool) {
	form, err := s.forms.GetForm(chi.URLParam(r, "formId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "form not found", err)
		return nil, false
	}
	return form, true
}

// Helper functions
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warn("Failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load(config.DefaultConfigPath())
	if err != nil {
		logger.Fatal("Failed to load config", "error", err)
	}
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("Failed to create server", "error", err)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "logger shutdown: %v\n", err)
	}

	logger.Info("Server stopped")
}
