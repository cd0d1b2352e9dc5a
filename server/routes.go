package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/siegeai/canary/assets"
	"github.com/siegeai/canary/faults"
)

// handlerFunc reports failure by returning an error instead of writing one.
// adapt turns the error into the response.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

type route struct {
	name    string
	path    string
	summary string

	// zero means the handler never responds
	status      int
	contentType string
	schema      *openapi3.Schema

	handler handlerFunc
}

func (s *Server) routes() []route {
	rs := []route{
		{name: "index", path: "/", summary: "Static greeting", status: http.StatusOK, contentType: "text/html", handler: s.handleIndex()},
		{name: "users", path: "/users", summary: "Configured account identifiers", status: http.StatusOK, contentType: "application/json", schema: openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()), handler: s.handleUsers()},
		{name: "health", path: "/health", summary: "Liveness probe, logs at error severity", status: http.StatusOK, contentType: "text/html", handler: s.handleHealth()},
		{name: "stress-test", path: "/stress-test", summary: "Bounded CPU and memory stress", status: http.StatusOK, contentType: "application/json", schema: summarySchema(), handler: s.handleStressTest()},
		{name: "metrics", path: "/metrics", summary: "Prometheus metrics", status: http.StatusOK, contentType: "text/plain", handler: s.handleMetrics()},
		{name: "openapi", path: "/openapi.json", summary: "This document", status: http.StatusOK, contentType: "application/json", handler: s.handleOpenAPI()},
	}

	for _, img := range assets.Images {
		rs = append(rs, route{
			name:        img.Name,
			path:        img.Route,
			summary:     "Static image " + img.File,
			status:      http.StatusOK,
			contentType: img.ContentType,
			handler:     s.handleImage(img),
		})
	}

	if s.cfg.EnableFaults {
		rs = append(rs,
			route{name: "infinite-loop", path: "/infinite-loop", summary: "Unbounded CPU stress, never completes", handler: s.handleInfiniteLoop()},
			route{name: "memory-bomb", path: "/memory-bomb", summary: "Unbounded memory stress, never completes", handler: s.handleMemoryBomb()},
		)
	}
	return rs
}

func (s *Server) setupRoutes() {
	s.table = s.routes()
	for _, rt := range s.table {
		s.router.Handle(rt.path, s.adapt(rt.handler)).Methods(http.MethodGet).Name(rt.name)
	}
	s.router.Use(s.logMiddleware)
	s.router.NotFoundHandler = s.logMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	}))
	s.router.MethodNotAllowedHandler = s.logMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	}))
}

func (*Server) handleIndex() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<h1>CI/CD works</h1>")
		return nil
	}
}

func (s *Server) handleUsers() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		return writeJSON(w, s.cfg.Accounts.List())
	}
}

func (s *Server) handleImage(img assets.Image) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		return s.images.Serve(w, img)
	}
}

// The error level on a passing check is deliberate: it feeds the alerting
// pipeline under test.
func (s *Server) handleHealth() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s.logger.Error("Health check passed!")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<h1>App is Up</h1>")
		return nil
	}
}

func (s *Server) handleStressTest() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		active := s.metrics.faults.WithLabelValues("stress")
		active.Inc()
		summary := faults.Stress(s.logger, s.cfg.StressIterations)
		active.Dec()
		s.metrics.stressRuns.Observe(summary.ElapsedSeconds)
		return writeJSON(w, summary)
	}
}

func (s *Server) handleInfiniteLoop() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s.metrics.faults.WithLabelValues("cpu").Inc()
		faults.NewSpinner(s.logger).Run()
		return nil
	}
}

func (s *Server) handleMemoryBomb() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s.metrics.faults.WithLabelValues("memory").Inc()
		faults.NewHog(s.logger).Run()
		return nil
	}
}

func (s *Server) handleMetrics() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		s.metrics.handler.ServeHTTP(w, r)
		return nil
	}
}

func (s *Server) handleOpenAPI() handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		return writeJSON(w, s.doc)
	}
}

func writeJSON(w http.ResponseWriter, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(bs, '\n'))
	return nil
}
