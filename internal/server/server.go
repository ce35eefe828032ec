// Package server exposes the alert ingestion HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/relayops/relaybot/internal/alert"
	"github.com/relayops/relaybot/internal/config"
	"github.com/relayops/relaybot/internal/engine"
)

// AlertProcessor evaluates one inbound alert and reports the deliveries
// made.
type AlertProcessor interface {
	ProcessAlert(ctx context.Context, a alert.Alert) ([]engine.Delivery, error)
}

// Server is the ingestion endpoint the monitoring service posts alerts to.
type Server struct {
	cfg        config.APIConfig
	processor  AlertProcessor
	router     chi.Router
	httpServer *http.Server
}

// New creates a server wired to the given processor.
func New(cfg config.APIConfig, processor AlertProcessor) *Server {
	s := &Server{
		cfg:       cfg,
		processor: processor,
	}
	s.router = s.buildRouter()
	return s
}

// buildRouter creates and configures the chi router with all routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowOrigin,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/api/alerts", s.handlePostAlert)

	return r
}

// Router returns the chi router, mainly for tests.
func (s *Server) Router() chi.Router { return s.router }

// alertResponse is the ingestion reply: one [subscriber, status] pair per
// delivery made.
type alertResponse struct {
	Data []engine.Delivery `json:"data"`
}

func (s *Server) handlePostAlert(w http.ResponseWriter, r *http.Request) {
	var a alert.Alert
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid alert payload: %v", err))
		return
	}
	if a.MemberID == "" {
		writeError(w, http.StatusBadRequest, "alert is missing memberId")
		return
	}

	deliveries, err := s.processor.ProcessAlert(r.Context(), a)
	if err != nil {
		log.Printf("server: processing alert %d for %s failed: %v", a.Code, a.MemberID, err)
		writeError(w, http.StatusInternalServerError, "alert processing failed")
		return
	}

	if deliveries == nil {
		deliveries = []engine.Delivery{}
	}
	writeJSON(w, http.StatusOK, alertResponse{Data: deliveries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encoding response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Start begins listening on the configured address.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("server: relaybot API listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
