package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ReignOfTea/protest-dash/internal/actions"
	"github.com/ReignOfTea/protest-dash/internal/api"
	"github.com/ReignOfTea/protest-dash/internal/buffer"
	"github.com/ReignOfTea/protest-dash/internal/commit"
	"github.com/ReignOfTea/protest-dash/internal/config"
	"github.com/ReignOfTea/protest-dash/internal/github"
	"github.com/ReignOfTea/protest-dash/internal/journal"
	"github.com/ReignOfTea/protest-dash/internal/logging"
	"github.com/ReignOfTea/protest-dash/internal/middleware"
	"github.com/ReignOfTea/protest-dash/internal/session"
	"github.com/ReignOfTea/protest-dash/internal/users"
)

func main() {
	// Load configuration
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	// Initialize logger
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.Environment == "development")
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer logger.Sync()

	token, err := cfg.GitHubToken()
	if err != nil {
		logger.Fatal("failed to resolve github token", zap.Error(err))
	}

	salt, err := cfg.ActorSalt()
	if err != nil {
		logger.Fatal("failed to resolve actor salt", zap.Error(err))
	}

	// Initialize BadgerDB
	db, err := badger.Open(badger.DefaultOptions(cfg.Database.Path))
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Initialize stores
	sessions := session.NewStore(db, cfg.SessionTTL())

	journalStore, err := journal.NewStore(db)
	if err != nil {
		logger.Fatal("failed to initialize commit journal", zap.Error(err))
	}
	defer journalStore.Close()

	userStore, err := users.NewStore(cfg.Users.File, salt, logger)
	if err != nil {
		logger.Fatal("failed to load user allowlist", zap.Error(err))
	}
	defer userStore.Close()

	// Initialize GitHub clients
	remote := github.New(github.Options{
		APIBase: cfg.GitHub.APIBase,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Branch:  cfg.GitHub.Branch,
		Token:   token,
	})

	ci := actions.New(actions.Options{
		APIBase: cfg.GitHub.APIBase,
		Owner:   cfg.GitHub.Owner,
		Repo:    cfg.GitHub.Repo,
		Branch:  cfg.GitHub.Branch,
		Token:   token,
	})

	// Session buffers and the commit pipeline
	buffers := buffer.NewManager(remote, logger, cfg.SessionTTL())
	defer buffers.Close()

	orchestrator := commit.NewOrchestrator(remote, logger)

	// Initialize handlers
	fileHandler := api.NewFileHandler(buffers)
	commitHandler := api.NewCommitHandler(buffers, orchestrator, journalStore, remote, logger)
	statusHandler := api.NewStatusHandler(ci)
	userHandler := api.NewUserHandler(userStore)

	// Set up router
	router := mux.NewRouter()

	// Health checks
	router.HandleFunc("/health", healthCheck).Methods("GET")

	// Authenticated API
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(mux.MiddlewareFunc(middleware.Auth(middleware.AuthConfig{
		Sessions:   sessions,
		Users:      userStore,
		AdminToken: cfg.Auth.AdminToken,
		AdminUser:  cfg.Auth.AdminUser,
	})))

	// Content endpoints
	apiRouter.HandleFunc("/file/{name}", fileHandler.Get).Methods("GET")
	apiRouter.HandleFunc("/file/{name}", fileHandler.Put).Methods("PUT")
	apiRouter.HandleFunc("/buffer", fileHandler.Buffer).Methods("GET")
	apiRouter.HandleFunc("/buffer/discard", fileHandler.Discard).Methods("POST")
	apiRouter.HandleFunc("/locations/{id}", fileHandler.RemoveLocation).Methods("DELETE")

	// Commit endpoints
	apiRouter.HandleFunc("/batch", commitHandler.Batch).Methods("POST")
	apiRouter.HandleFunc("/buffer/push", commitHandler.Push).Methods("POST")
	apiRouter.HandleFunc("/commits/recent", commitHandler.Recent).Methods("GET")

	// Status and identity endpoints
	apiRouter.HandleFunc("/actions/latest", statusHandler.Latest).Methods("GET")
	apiRouter.HandleFunc("/me", userHandler.Me).Methods("GET")
	apiRouter.Handle("/users", middleware.RequireAdmin(http.HandlerFunc(userHandler.List))).Methods("GET")

	// Apply middleware
	handler := middleware.Chain(
		router,
		middleware.Logger(logger),
		middleware.RequestID,
		middleware.Recover(logger),
	)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info("starting server",
		zap.String("address", addr),
		zap.String("repo", cfg.GitHub.Owner+"/"+cfg.GitHub.Repo),
		zap.String("branch", cfg.GitHub.Branch),
	)

	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
