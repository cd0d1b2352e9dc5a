package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/siegeai/canary/assets"
	"github.com/siegeai/canary/faults"
)

const ShutdownTimeout = 10 * time.Second

type Config struct {
	ImagesDir        string
	Accounts         assets.Accounts
	StressIterations int

	// EnableFaults registers /infinite-loop and /memory-bomb. Neither can be
	// stopped short of killing the process, so turn it off anywhere that
	// is not a test or staging target.
	EnableFaults bool

	Version string
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	router  *mux.Router
	images  *assets.Store
	metrics *metrics
	table   []route
	doc     *openapi3.T
}

// New wires the route table once. The logger is shared by every request and
// must already be initialized.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.StressIterations <= 0 {
		cfg.StressIterations = faults.DefaultIterations
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  mux.NewRouter(),
		images:  assets.NewStore(cfg.ImagesDir),
		metrics: newMetrics(),
	}
	s.setupRoutes()
	s.doc = s.buildDoc()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves addr until ctx is done, then shuts the listener down. In-flight
// fault handlers are not interrupted; if they are still running when the
// timeout expires the server is closed underneath them.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrapf(err, "listen on %s", addr)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete, closing", "err", err)
		return errors.Wrap(srv.Close(), "close server")
	}
	return nil
}
