package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const HeaderRequestID = "X-Request-ID"

// Routes registers the query endpoints and the health check on mux.
func (g *Gateway) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /run_agent/{query...}", g.queryHandler(KindAgent))
	mux.HandleFunc("GET /run_dashboard_agent/{query...}", g.queryHandler(KindDashboard))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns the gateway routes wrapped with request logging.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	g.Routes(mux)
	return withRequestLogging(mux)
}

func (g *Gateway) queryHandler(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := g.run(r.Context(), kind, r.PathValue("query"))
		if err != nil {
			writeJSON(w, r, StatusCode(err), errorResponse(err))
			return
		}
		writeJSON(w, r, http.StatusOK, resultResponse(res))
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Ctx(r.Context()).Debug().Err(err).Msg("failed to write JSON response")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// withRequestLogging attaches a request-scoped logger carrying the request
// id to the context and logs every request once it is served.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = shortuuid.New()
		}
		w.Header().Set(HeaderRequestID, id)

		logger := log.With().Str("request_id", id).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Server serves the gateway over HTTP until its context is cancelled.
type Server struct {
	server          *http.Server
	shutdownTimeout time.Duration
}

func NewServer(address string, g *Gateway, shutdownTimeout time.Duration) *Server {
	return &Server{
		server: &http.Server{
			Addr:              address,
			Handler:           g.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// Serve listens on l until ctx is cancelled, then waits for in-flight
// requests up to the shutdown timeout.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", l.Addr().String()).Msg("gateway listening")
		errCh <- s.server.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	log.Info().Dur("timeout", s.shutdownTimeout).Msg("shutting down gateway")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "gateway shutdown")
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return errors.Wrapf(err, "could not listen on %s", s.server.Addr)
	}
	return s.Serve(ctx, l)
}
