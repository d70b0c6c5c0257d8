package server

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferndale/taskmill/internal/engine"
	"github.com/ferndale/taskmill/internal/handler"
	"github.com/ferndale/taskmill/internal/middleware"
	"github.com/ferndale/taskmill/internal/store"
	ws "github.com/ferndale/taskmill/internal/websocket"
)

// Server owns the stores, handlers, websocket hub, and the scheduler driver.
type Server struct {
	logger *slog.Logger

	Templates  *store.TemplateStore
	Groups     *store.GroupStore
	Sessions   *store.SessionStore
	Claims     *store.ClaimStore
	Executions *store.ExecutionStore
	Tasks      *store.TaskStore

	Hub    *ws.Hub
	Driver *engine.Driver

	templateHandler *handler.TemplateHandler
	rateLimiter     *middleware.RateLimiter
}

func New(db *sql.DB, engineCfg engine.Config, logger *slog.Logger) *Server {
	s := &Server{
		logger:      logger,
		Templates:   store.NewTemplateStore(db),
		Groups:      store.NewGroupStore(db),
		Sessions:    store.NewSessionStore(db),
		Claims:      store.NewClaimStore(db),
		Executions:  store.NewExecutionStore(db),
		Tasks:       store.NewTaskStore(db),
		Hub:         ws.NewHub(logger),
		rateLimiter: middleware.NewRateLimiter(),
	}

	s.Driver = engine.NewDriver(engineCfg,
		s.Templates, s.Claims, s.Groups, s.Tasks, s.Executions,
		s.Hub, logger.With("component", "engine"))

	s.templateHandler = handler.NewTemplateHandler(
		s.Templates, s.Groups, s.Executions, s.Hub, logger)

	return s
}

// Router builds the full HTTP handler. Health is public; everything under
// /api and /ws requires a session.
func (s *Server) Router() http.Handler {
	protected := http.NewServeMux()

	protected.HandleFunc("POST /api/groups/{group_id}/templates", s.rateLimited(s.templateHandler.Create))
	protected.HandleFunc("GET /api/groups/{group_id}/templates", s.templateHandler.ListByGroup)
	protected.HandleFunc("GET /api/templates/{id}", s.templateHandler.Get)
	protected.HandleFunc("PUT /api/templates/{id}", s.rateLimited(s.templateHandler.Update))
	protected.HandleFunc("DELETE /api/templates/{id}", s.rateLimited(s.templateHandler.Delete))
	protected.HandleFunc("POST /api/templates/{id}/pause", s.rateLimited(s.templateHandler.Pause))
	protected.HandleFunc("POST /api/templates/{id}/resume", s.rateLimited(s.templateHandler.Resume))
	protected.HandleFunc("GET /api/templates/{id}/executions", s.templateHandler.History)
	protected.HandleFunc("GET /ws", ws.HandleWebSocket(s.Hub, s.logger))

	requireAuth := middleware.RequireAuth(s.Sessions, s.Groups)
	logged := middleware.RequestLogger(s.logger)

	// The logger sits inside auth so protected request logs carry the
	// caller's identity.
	outer := http.NewServeMux()
	outer.Handle("GET /health", logged(http.HandlerFunc(s.healthHandler)))
	outer.Handle("/", requireAuth(logged(protected)))

	return outer
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// rateLimited wraps mutating endpoints with a per-IP budget.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	limited := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 60, time.Minute)(h)
	return limited.ServeHTTP
}
