// Package server exposes one controller per page load over HTTP and keeps
// browsers in sync with the page slots over a websocket.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"github.com/olehkaliuzhnyi/sword-dapp/internal/controller"
	"github.com/olehkaliuzhnyi/sword-dapp/internal/ui"
)

//go:embed templates/index.html
var templates embed.FS

var indexTmpl = template.Must(template.ParseFS(templates, "templates/index.html"))

const reloadBacklog = 16

// Server owns the page and the controller of the current page load.
type Server struct {
	env    controller.Environment
	opts   controller.Options
	page   *ui.Page
	router *mux.Router
	logger *slog.Logger

	reloads chan string

	mu      sync.RWMutex
	ctrl    *controller.Controller
	initErr error
}

// New creates a server. The Sink, Reloader and OnError fields of opts are
// replaced with the server's own.
func New(env controller.Environment, opts controller.Options) *Server {
	s := &Server{
		env:     env,
		page:    ui.NewPage(),
		router:  mux.NewRouter(),
		logger:  slog.Default().With("component", "server"),
		reloads: make(chan string, reloadBacklog),
	}
	opts.Sink = s.page
	opts.Reloader = controller.ReloadFunc(s.requestReload)
	opts.OnError = s.showError
	s.opts = opts

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.page.ServeWS).Methods(http.MethodGet)
	s.router.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/counts", s.handleCounts).Methods(http.MethodGet)
	s.router.HandleFunc("/api/connect", s.handleConnect).Methods(http.MethodPost)
	s.router.HandleFunc("/api/disconnect", s.handleDisconnect).Methods(http.MethodPost)
	s.router.HandleFunc("/api/swords/{color}/increment", s.handleIncrement).Methods(http.MethodPost)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Page returns the slot state shared by every browser.
func (s *Server) Page() *ui.Page {
	return s.page
}

// Run performs the first page load and then serves reload requests until
// ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.load(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			ctrl := s.ctrl
			s.ctrl = nil
			s.mu.Unlock()
			if ctrl != nil {
				ctrl.Close()
			}
			return nil
		case reason := <-s.reloads:
			s.reload(ctx, reason)
		}
	}
}

// ListenAndServe runs the reload loop and an HTTP server on addr until ctx
// is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(gctx)
	})
	g.Go(func() error {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) load(ctx context.Context) {
	ctrl := controller.New(s.env, s.opts)
	s.mu.Lock()
	s.ctrl = ctrl
	s.initErr = nil
	s.mu.Unlock()

	err := ctrl.Initialize(ctx)
	if err != nil {
		s.logger.Warn("page load ended early", "state", ctrl.State(), "error", err)
	}
	s.mu.Lock()
	if s.ctrl == ctrl {
		s.initErr = err
	}
	s.mu.Unlock()
}

func (s *Server) reload(ctx context.Context, reason string) {
	s.mu.Lock()
	old := s.ctrl
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	s.logger.Info("reloading page", "reason", reason)
	s.page.Reset(reason)
	s.load(ctx)
}

// requestReload never blocks: it runs on the session's event goroutine,
// which the reload itself waits for.
func (s *Server) requestReload(reason string) {
	select {
	case s.reloads <- reason:
	default:
		s.logger.Warn("reload backlog full, dropping", "reason", reason)
	}
}

func (s *Server) showError(err error) {
	s.page.SetText(ui.SlotLastError, err.Error())
	s.page.SetVisible(ui.SlotLastError, true)
}

func (s *Server) current() (*controller.Controller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctrl == nil {
		return nil, controller.ErrClosed
	}
	return s.ctrl, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("write response failed", "error", err)
	}
}

// writeErrorResponse writes {"error": message} with status.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
