// Package server composes the application and runs the HTTP server.
//
// New builds everything from the config: store → services → handlers, with
// the event publisher (hub, plus Redis and Kafka when configured) injected
// into the services. Start serves until SIGINT/SIGTERM and then shuts down
// in order: stop accepting requests, stop the hub (closing sockets), close
// the sinks, close the database.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/voteboard/internal/auth"
	"github.com/sakif/voteboard/internal/config"
	"github.com/sakif/voteboard/internal/event"
	"github.com/sakif/voteboard/internal/gql"
	"github.com/sakif/voteboard/internal/handler"
	"github.com/sakif/voteboard/internal/metrics"
	"github.com/sakif/voteboard/internal/middleware"
	"github.com/sakif/voteboard/internal/realtime"
	sqliteRepo "github.com/sakif/voteboard/internal/repository/sqlite"
	"github.com/sakif/voteboard/internal/service"
)

type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	hub      *realtime.Hub
	relay    *event.RedisRelay    // nil unless Redis is configured
	kafka    *event.KafkaPublisher // nil unless Kafka is configured
	registry *prometheus.Registry
}

// New wires the application. On error everything opened so far is closed.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		registry: prometheus.NewRegistry(),
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(s.registry)
	s.hub = realtime.NewHub(m, logger)

	publisher, err := s.setupPublishers(m)
	if err != nil {
		s.Close()
		return nil, err
	}

	if err := s.setupRoutes(m, publisher); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupPublishers returns the publisher the services announce changes on:
// always the local hub, plus the optional sinks.
func (s *Server) setupPublishers(m *metrics.Metrics) (event.Publisher, error) {
	fanout := event.Fanout{s.hub}

	if s.config.Redis.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		relay, err := event.NewRedisRelay(ctx, s.config.Redis.URL, s.config.Redis.Channel, m, s.logger)
		if err != nil {
			return nil, fmt.Errorf("setting up redis relay: %w", err)
		}
		s.relay = relay
		fanout = append(fanout, relay)
	}

	if len(s.config.Kafka.Brokers) > 0 {
		s.kafka = event.NewKafkaPublisher(s.config.Kafka.Brokers, s.config.Kafka.Topic, m)
		fanout = append(fanout, s.kafka)
		s.logger.Info("kafka event sink enabled", slog.String("topic", s.config.Kafka.Topic))
	}

	return fanout, nil
}

func (s *Server) setupRoutes(m *metrics.Metrics, publisher event.Publisher) error {
	secret := s.config.JWTSecret
	if secret == "" {
		secret = rand.Text()
		s.logger.Warn("JWT_SECRET not set; using a random secret, sessions end on restart")
	}
	tokens, err := auth.NewTokenService(secret, s.config.SessionTTL)
	if err != nil {
		return err
	}

	var github *auth.GitHubProvider
	if s.config.GitHub.Enabled() {
		github = auth.NewGitHubProvider(s.config.GitHub.ClientID, s.config.GitHub.ClientSecret, s.config.GitHub.CallbackURL)
	}

	users := service.NewUserService(s.db.Users(), publisher, m, s.logger, s.config.VoteOnFirstCall)
	help := service.NewHelpService(s.db.Help(), publisher, m, s.logger)

	pages, err := handler.NewPageHandler(github != nil, s.logger)
	if err != nil {
		return err
	}
	authHandler := handler.NewAuthHandler(users, tokens, github, s.logger)
	helpHandler := handler.NewHelpHandler(help, s.logger)
	voteHandler := handler.NewVoteHandler(users)
	socketHandler := handler.NewSocketHandler(s.hub, users, s.config.AllowedOrigins, s.logger)

	schema, err := gql.NewSchema(users, help)
	if err != nil {
		return fmt.Errorf("building graphql schema: %w", err)
	}

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(auth.OptionalAuth(tokens))

	r.Get("/", pages.HandleHome)
	r.Get("/login", pages.HandleLoginForm)
	r.Post("/login", authHandler.HandleLogin)
	r.Get("/logout", authHandler.HandleLogout)
	r.Get("/graph", pages.HandleGraph)
	r.Get("/help_data", pages.HandleHelpData)

	r.Get("/fetch_help_data", helpHandler.HandleFetch)
	r.Post("/help", helpHandler.HandleRequest)
	r.Delete("/delete_help_request/{id:[0-9]+}", helpHandler.HandleDelete)
	r.Delete("/clear_all_help_requests", helpHandler.HandleClear)

	r.Get("/get_votes_count", voteHandler.HandleCount)
	r.Get("/ws", socketHandler.HandleSocket)
	r.With(auth.RequireAuth(tokens)).Get("/me", authHandler.HandleMe)

	r.Handle("/graphql", gql.Handler(&schema))
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	r.Get("/healthz", s.handleHealth)

	if github != nil {
		r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("OK"))
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RunWorkers runs the hub and, when configured, the Redis relay. It returns
// once ctx is done and both have stopped.
func (s *Server) RunWorkers(ctx context.Context) {
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if s.relay == nil {
			return
		}
		if err := s.relay.Run(ctx, s.hub); err != nil {
			s.logger.Error("redis relay stopped", slog.String("error", err.Error()))
		}
	}()

	s.hub.Run(ctx)
	<-relayDone
}

// Close releases the sinks and the database.
func (s *Server) Close() error {
	var errs []error
	if s.kafka != nil {
		errs = append(errs, s.kafka.Close())
	}
	if s.relay != nil {
		errs = append(errs, s.relay.Close())
	}
	errs = append(errs, s.db.Close())
	return errors.Join(errs...)
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
func (s *Server) Start() error {
	defer s.Close()

	workersCtx, stopWorkers := context.WithCancel(context.Background())
	workersDone := make(chan struct{})
	go func() {
		s.RunWorkers(workersCtx)
		close(workersDone)
	}()
	defer func() {
		stopWorkers()
		<-workersDone
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("vote_on_first_call", s.config.VoteOnFirstCall),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Upgraded sockets are not tracked by Shutdown; stopping the hub
		// (deferred above) closes them.
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
