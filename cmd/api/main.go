package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hgu-oj/backend/internal/autosave"
	"github.com/hgu-oj/backend/internal/config"
	"github.com/hgu-oj/backend/internal/database"
	"github.com/hgu-oj/backend/internal/handlers"
	"github.com/hgu-oj/backend/internal/judge"
	"github.com/hgu-oj/backend/internal/metrics"
	"github.com/hgu-oj/backend/internal/middleware"
	"github.com/hgu-oj/backend/internal/security"
	"github.com/hgu-oj/backend/internal/session"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer db.Close()

	sessionRedis, err := newRedisClient(cfg.RedisURL, config.RedisSessionDB)
	if err != nil {
		log.Fatalf("Failed to connect to session Redis: %v", err)
	}
	defer sessionRedis.Close()

	codeSaveRedis, err := newRedisClient(cfg.RedisURL, config.RedisCodeSaveDB)
	if err != nil {
		log.Fatalf("Failed to connect to autosave Redis: %v", err)
	}
	defer codeSaveRedis.Close()

	m := metrics.New()

	// Stores and services
	sessions := session.NewStore(sessionRedis, cfg.SessionPrefix)
	users := database.NewUserDirectory(db)
	options := database.NewSysOptions(db)
	codeSink := database.NewCodeSink(db)

	exchanger := security.NewExchanger(cfg.SSOIntrospectURL, sessions, users, cfg.LocalTokenTTL)
	authorizer := middleware.NewAuthorizer(sessions, users, cfg.TokenCookieName, cfg.LocalTokenTTL)
	runLimiter := middleware.NewRateLimiter(30)

	registry := judge.NewRegistry(db)
	scheduler := judge.NewScheduler(db)
	dispatcher := judge.NewDispatcher(scheduler, options, cfg.TestCaseDataPath)

	buffer := autosave.NewBuffer(codeSaveRedis, cfg.CodeSavePrefix, cfg.CodeSaveTTL, codeSink)
	listener := autosave.NewListener(codeSaveRedis, cfg.CodeSavePrefix, codeSink, m)

	// Router
	router := mux.NewRouter()
	router.HandleFunc("/health", handlers.Health(db, sessionRedis)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.Instrument(m))

	api.HandleFunc("/auth/login", handlers.Login(exchanger, cfg.TokenCookieName)).Methods("POST")
	api.HandleFunc("/auth/logout", handlers.Logout(exchanger, cfg.TokenCookieName)).Methods("POST")
	api.HandleFunc("/auth/test", authorizer.Require(handlers.AuthTest())).Methods("GET")

	api.HandleFunc("/execution/run",
		authorizer.Require(runLimiter.Limit(handlers.RunCode(dispatcher, m)))).Methods("POST")

	api.HandleFunc("/code/{problem_id}",
		authorizer.Require(handlers.SaveCode(buffer, m))).Methods("POST")
	api.HandleFunc("/code/{problem_id}",
		authorizer.Require(handlers.GetCode(buffer))).Methods("GET")

	api.HandleFunc("/admin/judge_server",
		authorizer.Require(middleware.RequireRoles(
			handlers.ListJudgeServers(registry), session.RoleAdmin))).Methods("GET")

	router.Use(middleware.CORS)
	router.Use(middleware.Logging)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// The expiry listener is the only background task; it stops with the
	// process and any in-flight flush is retried on the next save cycle.
	listenerCtx, stopListener := context.WithCancel(ctx)
	go func() {
		if err := listener.Run(listenerCtx); err != nil && listenerCtx.Err() == nil {
			log.Printf("Expiry listener exited: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, shutting down gracefully...")
		stopListener()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("OJ backend starting on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Server stopped")
}

// newRedisClient connects to one logical Redis database, overriding the DB
// index parsed from REDIS_URL.
func newRedisClient(rawURL string, db int) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	opts.DB = db

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
