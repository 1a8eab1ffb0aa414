package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server serves /metrics for a registry.
type Server struct {
	log    zerolog.Logger
	server *http.Server
}

func NewServer(log zerolog.Logger, addr string, gatherer prometheus.Gatherer) *Server {
	router := mux.NewRouter().StrictSlash(true)
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{
		log: log.With().Str("component", "metrics").Logger(),
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start binds the listener and serves in the background until ctx is done.
// The bound address is returned so callers can use port 0.
func (s *Server) Start(ctx context.Context) (string, error) {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return "", err
	}

	go func() {
		err := s.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("metrics server shutdown")
		}
	}()

	s.log.Info().Str("addr", l.Addr().String()).Msg("serving metrics")
	return l.Addr().String(), nil
}
