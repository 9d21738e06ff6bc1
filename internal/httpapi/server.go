// Package httpapi exposes the quorum gates over HTTP.
//
// Every mutating route is a POST; the caller identity is taken from the
// X-Quorum-Caller header, which the fronting host is trusted to have
// authenticated.
//
//	POST /v1/rebalance                   submit (operator)
//	POST /v1/rebalance/{action}          confirm | revoke | execute (owners)
//	POST /v1/operator                    submit candidate (owners)
//	POST /v1/operator/{action}           confirm | revoke | execute (owners)
//	POST /v1/methodologist               submit candidate (owners)
//	POST /v1/methodologist/{action}      confirm | revoke | execute (owners)
//	GET  /v1/state                       both gate snapshots
//	GET  /v1/events?gate=<name>          journaled events
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/roach88/quorum/internal/engine"
	"github.com/roach88/quorum/internal/store"
)

// Server serves the API until its context is cancelled.
type Server struct {
	done chan struct{}
}

// Config holds the server collaborators.
type Config struct {
	Listener net.Listener

	Operator  *engine.Operator
	Custodian *engine.Custodian

	// Store backs GET /v1/events. Optional.
	Store *store.Store
}

// NewServer starts serving on cfg.Listener. The server closes when ctx is
// cancelled.
func NewServer(ctx context.Context, log *slog.Logger, cfg Config) *Server {
	srv := &http.Server{
		Handler: NewHandler(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s := &Server{
		done: make(chan struct{}),
	}
	go s.serve(log, cfg.Listener, srv)
	go s.waitForShutdown(ctx, srv)

	return s
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() {
	<-s.done
}

func (s *Server) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-s.done:
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (s *Server) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(s.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

// NewHandler returns the API router.
func NewHandler(log *slog.Logger, cfg Config) http.Handler {
	r := mux.NewRouter()
	r.Use(withRequestID)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/rebalance", handleSubmitRebalance(log, cfg)).Methods("POST")
	v1.HandleFunc("/rebalance/{action:confirm|revoke|execute}", handleRebalanceAction(log, cfg)).Methods("POST")
	v1.HandleFunc("/operator", handleSubmitOperator(log, cfg)).Methods("POST")
	v1.HandleFunc("/operator/{action:confirm|revoke|execute}", handleOperatorAction(log, cfg)).Methods("POST")
	v1.HandleFunc("/methodologist", handleSubmitMethodologist(log, cfg)).Methods("POST")
	v1.HandleFunc("/methodologist/{action:confirm|revoke|execute}", handleMethodologistAction(log, cfg)).Methods("POST")
	v1.HandleFunc("/state", handleState(cfg)).Methods("GET")
	v1.HandleFunc("/events", handleEvents(log, cfg)).Methods("GET")

	return r
}
