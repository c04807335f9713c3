package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/session"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Engine is the session surface served over HTTP.
type Engine interface {
	Tick(ctx context.Context, t float64, text string) (session.Frame, error)
	SetVideo(ctx context.Context, videoID string) (session.Epoch, error)
	Settings() config.Settings
	UpdateSettings(ctx context.Context, next config.Settings) (config.SettingsChange, error)
	Status(ctx context.Context) (session.Status, error)
	Export(ctx context.Context) (session.Export, error)
	TranslationState(ctx context.Context) (session.TranslationState, error)
	SetTranslationEnabled(ctx context.Context, enabled bool) (session.TranslationState, error)
}

type Server struct {
	engine Engine

	allowedOrigins []string
	requestTimeout time.Duration

	uiEnabled   bool
	uiStaticDir string

	router *chi.Mux
	server *http.Server
}

type Option func(*Server)

// WithUI serves a single-page client from staticDir.
func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithRequestTimeout bounds how long a request waits for the session loop.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:         engine,
		requestTimeout: 5 * time.Second,
		router:         chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Use(chimw.Recoverer)
	s.router.Use(chimw.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(cors.Handler(corsOptions(s.allowedOrigins)))

	s.router.Route("/api", func(r chi.Router) {
		r.Use(withTimeout(s.requestTimeout))

		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Post("/session/tick", s.handleTick)
		r.Post("/session/video", s.handleSetVideo)
		r.Get("/session/translate", s.handleGetTranslate)
		r.Put("/session/translate", s.handleSetTranslate)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
		r.Get("/export", s.handleExport)
	})

	s.router.NotFound(s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		// SPA fallback: non-existing static file path returns index
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
