package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ember-chat/backend/internal/api"
	"ember-chat/backend/internal/config"
	"ember-chat/backend/internal/database"
	"ember-chat/backend/internal/llm"
	"ember-chat/backend/internal/repository"
	"ember-chat/backend/internal/service"
	"ember-chat/backend/internal/store"
	"ember-chat/backend/internal/stream"
)

// App bundles the wired application: the HTTP server, the database handle
// and the conversation store, so callers (and tests) can manage their
// lifecycles.
type App struct {
	DB       *sql.DB
	Server   *http.Server
	Store    *store.Store
	Events   *api.EventHub
	Settings *service.SettingsService
}

// NewApp wires every component from configuration: database, repository,
// LLM provider, live store, stream controller, services and HTTP surface.
func NewApp(cfg *config.Config) (*App, error) {
	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("Successfully connected to SQLite database.")

	repo := repository.NewSQLiteRepository(db)
	ollamaProvider := llm.NewOllamaProvider(cfg.OllamaURL)

	events := api.NewEventHub()
	liveStore := store.New(repo, events)
	controller := stream.NewController(ollamaProvider, liveStore, cfg.ReasoningOpenTag, cfg.ReasoningCloseTag)

	settingsService := service.NewSettingsService(db, ollamaProvider)
	chatService := service.NewChatService(repo, ollamaProvider, settingsService, liveStore, controller, cfg.KeepAlive)
	modelService := service.NewModelService(ollamaProvider, cfg.KeepAlive)

	chatHandler := api.NewChatHandler(chatService, settingsService)
	modelHandler := api.NewModelHandler(modelService)
	router := api.NewRouter(chatHandler, modelHandler, events)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 20 * time.Second,
		WriteTimeout:      0, // Disabled for streaming endpoints
		IdleTimeout:       120 * time.Second,
	}

	return &App{DB: db, Server: server, Store: liveStore, Events: events, Settings: settingsService}, nil
}

// Run loads configuration, wires the application and serves until the
// listener fails. Returns a process exit code.
func Run() int {
	cfg, err := config.LoadConfig()
	if err != nil {
		// slog is not yet configured, so use the default logger for this critical error.
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	setupLogger(cfg.LogLevel)

	logConfigSource()

	waitForOllama(cfg.OllamaURL)

	app, err := NewApp(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		return 1
	}
	defer func() {
		app.Store.Close()
		if err := app.Events.Shutdown(context.Background()); err != nil {
			slog.Error("Failed to shut down event hub", "error", err)
		}
		if err := app.DB.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}()

	appSettings, err := app.Settings.InitAndGet(context.Background(), cfg.InitialSystemPrompt)
	if err != nil {
		slog.Error("Failed to initialize application settings", "error", err)
		return 1
	}
	slog.Info("Loaded application settings", "main_model", appSettings.MainModel)

	slog.Info("Starting server", "addr", app.Server.Addr)
	if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		return 1
	}

	return 0
}

func logConfigSource() {
	configFileUsed := viper.ConfigFileUsed()
	if configFileUsed != "" {
		slog.Info("Successfully loaded configuration from file.", "file", configFileUsed)
	} else {
		slog.Info("Configuration file not found. Using environment variables and defaults.")
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch strings.ToUpper(logLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func waitForOllama(ollamaURL string) {
	slog.Info("Waiting for the model endpoint to be ready...")
	client := &http.Client{Timeout: 2 * time.Second}
	for {
		resp, err := client.Get(ollamaURL)
		if err == nil && resp.StatusCode == http.StatusOK {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in endpoint health check", "error", bErr)
			}
			slog.Info("Model endpoint is ready.")
			return
		}
		if resp != nil {
			if bErr := resp.Body.Close(); bErr != nil {
				slog.Warn("Failed to close response body in endpoint health check (retry path)", "error", bErr)
			}
		}
		slog.Debug("Model endpoint not ready yet, retrying in 3 seconds...", "url", ollamaURL, "error", err)
		time.Sleep(3 * time.Second)
	}
}
