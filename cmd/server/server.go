package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/liamcoop/expiry/config"
	"github.com/liamcoop/expiry/content"
	"github.com/liamcoop/expiry/expirydates"
	"github.com/liamcoop/expiry/internal/metrics"
	"github.com/liamcoop/expiry/notifier"
	"github.com/liamcoop/expiry/policy"
	"github.com/liamcoop/expiry/rules"
)

// Deps are the collaborators the API serves. Engine is nil when rules are
// read from a file; Dates and Metrics may be nil.
type Deps struct {
	Config  *config.ServerConfig
	Manager *policy.Manager
	Engine  *rules.Engine
	Content content.Repository
	Dates   *expirydates.CachedSource
	Logs    notifier.LogRepository
	Metrics *metrics.Metrics
	Ping    func(ctx context.Context) error
	Logger  *slog.Logger
}

type Server struct {
	cfg      *config.ServerConfig
	manager  *policy.Manager
	engine   *rules.Engine
	repo     content.Repository
	expiry   *content.PageExpiryService
	urls     *content.URLBuilder
	enforcer *policy.Enforcer
	dates    *expirydates.CachedSource
	logs     notifier.LogRepository
	metrics  *metrics.Metrics
	ping     func(ctx context.Context) error
	log      *slog.Logger
	now      func() time.Time
	router   *chi.Mux
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Ping == nil {
		d.Ping = func(context.Context) error { return nil }
	}
	var inv policy.Invalidator
	if d.Dates != nil {
		inv = d.Dates
	}

	s := &Server{
		cfg:      d.Config,
		manager:  d.Manager,
		engine:   d.Engine,
		repo:     d.Content,
		expiry:   content.NewPageExpiryService(d.Content),
		urls:     content.NewURLBuilder(d.Content),
		enforcer: policy.NewEnforcer(d.Manager, d.Content, inv),
		dates:    d.Dates,
		logs:     d.Logs,
		metrics:  d.Metrics,
		ping:     d.Ping,
		log:      d.Logger,
		now:      time.Now,
	}

	// Rule edits take effect straight away.
	if s.engine != nil {
		s.engine.OnChange(func() {
			if err := s.manager.Reload(context.Background()); err != nil {
				s.log.Error("failed to reload rules after edit", slog.String("err", err.Error()))
			}
		})
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.APIUser != "" {
				r.Use(middleware.BasicAuth("content-expiry", map[string]string{s.cfg.APIUser: s.cfg.APIKey}))
			}

			r.Post("/evaluate", s.handleEvaluate)

			r.Route("/expiry", func(r chi.Router) {
				r.Get("/expiring", s.handleExpiringPages)
				r.Get("/permissions/{pageId}", s.handlePermissionsForPage)
				r.Get("/responsible/{pageId}", s.handleResponsibleUsers)
				r.Get("/users/{userId}", s.handleUser)
				r.Post("/enforce", s.handleEnforce)
			})

			r.Route("/rules", func(r chi.Router) {
				r.Post("/reload", s.handleReload)

				r.Group(func(r chi.Router) {
					r.Use(s.requireStore)
					r.Get("/", s.handleListRules)
					r.Post("/", s.handleCreateRule)
					r.Get("/settings", s.handleGetSettings)
					r.Put("/settings", s.handleUpdateSettings)
					r.Get("/{ruleId}", s.handleGetRule)
					r.Put("/{ruleId}", s.handleUpdateRule)
					r.Delete("/{ruleId}", s.handleDeleteRule)
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", s.handleListNotifications)
				r.Get("/{id}", s.handleGetNotification)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireStore rejects rule edits when rules come from a file.
func (s *Server) requireStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.engine == nil {
			respondError(w, http.StatusConflict, "rules are read from a file and cannot be edited over the API", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "healthy",
		RulesSource: s.manager.SourceName(),
		RulesLoaded: s.manager.Current().Len(),
		LoadedAt:    s.manager.LoadedAt(),
	}
	if err := s.ping(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	publicationTime := s.now()
	if req.PublicationTime != nil {
		publicationTime = *req.PublicationTime
	}

	var (
		node rules.ContentNode
		urls rules.NodeURLResolver
	)
	if req.NodeID != nil {
		n, err := s.repo.Node(r.Context(), *req.NodeID)
		if err != nil {
			respondServiceError(w, "failed to load node", err)
			return
		}
		switch {
		case req.ExpireDate != nil:
			n.Expires = req.ExpireDate
		case s.dates != nil:
			n.Expires = s.dates.ExpireDate(r.Context(), n.ID)
		}
		node, urls = n, s.urls.Resolver(r.Context())
	} else {
		// An empty document type matches no rule, so url alone still reaches
		// the path rules.
		if req.DocumentType == "" && req.URL == "" {
			respondError(w, http.StatusBadRequest, "documentType, url or nodeId is required", nil)
			return
		}
		node = rules.EvaluationInput{
			DocumentType:      req.DocumentType,
			TreeLevel:         req.Level,
			CurrentExpireDate: req.ExpireDate,
			ResolvedURL:       req.URL,
		}
		urls = rules.InputURLResolver{}
	}

	start := time.Now()
	res, err := s.manager.Enforce(node, urls, publicationTime)
	if err != nil {
		respondServiceError(w, "evaluation failed", err)
		return
	}

	resp := EvaluateResponse{
		Decision:                 res.Decision(),
		ExpireDate:               res.ExpireDate,
		CancellationMessage:      res.CancellationMessage,
		ExpireDateChangedMessage: res.ExpireDateChangedMessage,
		RuleKind:                 policy.RuleKind(res.MatchedRule),
		EvaluationTime:           time.Since(start).String(),
	}
	if res.MatchedRule != nil {
		resp.Rule = res.MatchedRule.Describe()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExpiringPages(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(r.URL.Query().Get("days"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "days must be a whole number", err)
		return
	}
	pages, err := s.expiry.ExpiringPages(r.Context(), days)
	if err != nil {
		respondServiceError(w, "failed to list expiring pages", err)
		return
	}
	if pages == nil {
		pages = []content.Page{}
	}
	respondJSON(w, http.StatusOK, pages)
}

func (s *Server) handlePermissionsForPage(w http.ResponseWriter, r *http.Request) {
	pageID, ok := intParam(w, r, "pageId")
	if !ok {
		return
	}
	ids, err := s.expiry.PermissionsForPage(r.Context(), pageID)
	if err != nil {
		respondServiceError(w, "failed to get permissions", err)
		return
	}
	respondJSON(w, http.StatusOK, ids)
}

func (s *Server) handleResponsibleUsers(w http.ResponseWriter, r *http.Request) {
	pageID, ok := intParam(w, r, "pageId")
	if !ok {
		return
	}
	users, err := s.expiry.ResponsibleUsers(r.Context(), pageID)
	if err != nil {
		respondServiceError(w, "failed to get responsible users", err)
		return
	}
	if users == nil {
		users = []*content.User{}
	}
	respondJSON(w, http.StatusOK, users)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := intParam(w, r, "userId")
	if !ok {
		return
	}
	u, err := s.expiry.UserByID(r.Context(), userID)
	if err != nil {
		respondServiceError(w, "failed to get user", err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) handleEnforce(w http.ResponseWriter, r *http.Request) {
	var req EnforceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Workers <= 0 {
		req.Workers = s.cfg.EnforceWorkers
	}

	summary, err := s.enforcer.EnsurePolicy(r.Context(), policy.WalkOptions{Workers: req.Workers, DryRun: req.DryRun})
	if err != nil {
		respondServiceError(w, "policy walk failed", err)
		return
	}
	s.log.Info("policy walk complete",
		slog.Bool("dry_run", summary.DryRun),
		slog.Int("checked", summary.Checked),
		slog.Int("changed", len(summary.Changes)),
		slog.Int("failed", summary.Failed))
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Reload(r.Context()); err != nil {
		respondServiceError(w, "failed to reload rules", err)
		return
	}
	respondJSON(w, http.StatusOK, ReloadResponse{
		Source:      s.manager.SourceName(),
		RulesLoaded: s.manager.Current().Len(),
		LoadedAt:    s.manager.LoadedAt(),
	})
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	defs, err := s.engine.Definitions(r.Context())
	if err != nil {
		respondServiceError(w, "failed to list rules", err)
		return
	}
	if defs == nil {
		defs = []*rules.Definition{}
	}
	respondJSON(w, http.StatusOK, RulesListResponse{Rules: defs})
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	def := req.definition("")
	if err := s.engine.AddRule(r.Context(), def); err != nil {
		respondServiceError(w, "failed to add rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, def)
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	def, err := s.engine.Definition(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		respondServiceError(w, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.engine.UpdateRule(r.Context(), req.definition(ruleID)); err != nil {
		respondServiceError(w, "failed to update rule", err)
		return
	}
	def, err := s.engine.Definition(r.Context(), ruleID)
	if err != nil {
		respondServiceError(w, "failed to read updated rule", err)
		return
	}
	respondJSON(w, http.StatusOK, def)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		respondServiceError(w, "failed to delete rule", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.Settings(r.Context())
	if err != nil {
		respondServiceError(w, "failed to get settings", err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings rules.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := s.engine.UpdateSettings(r.Context(), settings); err != nil {
		respondServiceError(w, "failed to update settings", err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		respondError(w, http.StatusNotFound, "notification log is not configured", nil)
		return
	}

	var (
		entries []*notifier.LogEntry
		err     error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "", "all":
		entries, err = s.logs.All(r.Context())
	case "success":
		entries, err = s.logs.Successes(r.Context())
	case "failure":
		entries, err = s.logs.Failures(r.Context())
	default:
		respondError(w, http.StatusBadRequest, "status must be all, success or failure", nil)
		return
	}
	if err != nil {
		respondServiceError(w, "failed to list notifications", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"notifications": entries})
}

func (s *Server) handleGetNotification(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		respondError(w, http.StatusNotFound, "notification log is not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "id must be a whole number", err)
		return
	}
	entry, err := s.logs.ByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, "notification not found", err)
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, name+" must be a whole number", err)
		return 0, false
	}
	return v, true
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// respondServiceError picks the status from the sentinel err wraps.
func respondServiceError(w http.ResponseWriter, message string, err error) {
	respondError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, content.ErrNodeNotFound),
		errors.Is(err, content.ErrUserNotFound),
		errors.Is(err, notifier.ErrLogNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrDuplicateRule),
		errors.Is(err, rules.ErrRuleExists):
		return http.StatusConflict
	case errors.Is(err, rules.ErrValidation),
		errors.Is(err, rules.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
