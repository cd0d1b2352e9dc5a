package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/siegeai/canary/assets"
	"github.com/urfave/negroni"
)

type faultKey struct{}

// fault carries a handler's error back up to logMiddleware so that the
// failure is logged once, at error level, in place of the response line.
type fault struct {
	err error
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		logger := s.logger.With("request_id", id)
		logger.Info("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)

		ww := negroni.NewResponseWriter(w)
		ww.Header().Set("X-Request-Id", id)

		f := &fault{}
		ctx := context.WithValue(r.Context(), faultKey{}, f)
		serveRecovered(next, ww, r.WithContext(ctx), f)

		status := statusOf(ww)
		s.metrics.observe(routeName(r), r.Method, status, time.Since(start))

		if f.err != nil {
			logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "err", f.err)
			return
		}
		logger.Info("response", "method", r.Method, "path", r.URL.Path, "status", status)
	})
}

func serveRecovered(next http.Handler, w negroni.ResponseWriter, r *http.Request, f *fault) {
	defer func() {
		if v := recover(); v != nil {
			f.err = errors.Errorf("panic: %v", v)
			writeFault(w, http.StatusInternalServerError)
		}
	}()
	next.ServeHTTP(w, r)
}

// adapt is the one place handler errors become responses.
func (s *Server) adapt(h handlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}

		if f, ok := r.Context().Value(faultKey{}).(*fault); ok {
			f.err = err
		} else {
			s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		}
		writeFault(w, statusFor(err))
	})
}

func statusFor(err error) int {
	if errors.Is(err, assets.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// writeFault sends a bare status text. Nothing is sent if the handler already
// started the response.
func writeFault(w http.ResponseWriter, status int) {
	if rw, ok := w.(negroni.ResponseWriter); ok && rw.Written() {
		return
	}
	http.Error(w, http.StatusText(status), status)
}

func statusOf(w negroni.ResponseWriter) int {
	if w.Status() == 0 {
		return http.StatusOK
	}
	return w.Status()
}

func routeName(r *http.Request) string {
	if rt := mux.CurrentRoute(r); rt != nil && rt.GetName() != "" {
		return rt.GetName()
	}
	return "unmatched"
}
