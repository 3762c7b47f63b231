package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"ember-chat/backend/internal/llm"
)

// Settings holds the dynamic application settings stored in the database.
type Settings struct {
	SystemPrompt string `json:"system_prompt"`
	MainModel    string `json:"main_model"`
	SupportModel string `json:"support_model"`
}

type SettingsService struct {
	db  *sql.DB
	llm llm.Provider
}

func NewSettingsService(db *sql.DB, llmProvider llm.Provider) *SettingsService {
	return &SettingsService{db: db, llm: llmProvider}
}

// InitAndGet loads the stored settings or, on first run, performs smart
// initialization: it picks the first model the endpoint reports as the
// default instead of forcing the user to configure one.
func (s *SettingsService) InitAndGet(ctx context.Context, defaultSystemPrompt string) (*Settings, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if settings != nil {
		slog.Info("Found existing application settings.")
		return settings, nil
	}

	slog.Info("No settings found. Performing smart initialization...")

	defaultModel := ""
	models, err := s.llm.ListModels(ctx)
	if err != nil {
		slog.Warn("Could not connect to the model endpoint during init, leaving default model empty.", "error", err)
	} else if len(models.Models) == 0 {
		slog.Warn("The model endpoint is running but has no models.")
	} else {
		defaultModel = models.Models[0].Name
		slog.Info("Automatically selected default model.", "model", defaultModel)
	}

	initial := &Settings{
		SystemPrompt: defaultSystemPrompt,
		MainModel:    defaultModel,
		SupportModel: defaultModel,
	}
	if err := s.save(ctx, initial); err != nil {
		return nil, fmt.Errorf("failed to save initial settings: %w", err)
	}
	return initial, nil
}

// Get retrieves the current settings.
func (s *SettingsService) Get(ctx context.Context) (*Settings, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, fmt.Errorf("settings have not been initialized")
	}
	return settings, nil
}

// Save validates the chosen models against the endpoint's model list before
// persisting. Validation is skipped when the endpoint is unreachable so the
// user is not locked out of their settings by a network hiccup.
func (s *SettingsService) Save(ctx context.Context, settings *Settings) error {
	availableModels, err := s.llm.ListModels(ctx)
	if err != nil {
		slog.Warn("Could not list models for validation, saving settings without check.", "error", err)
	} else {
		modelNames := make([]string, len(availableModels.Models))
		for i, m := range availableModels.Models {
			modelNames[i] = m.Name
		}

		if !slices.Contains(modelNames, settings.MainModel) {
			return fmt.Errorf("main model '%s' not found on the endpoint", settings.MainModel)
		}
		if !slices.Contains(modelNames, settings.SupportModel) {
			return fmt.Errorf("support model '%s' not found on the endpoint", settings.SupportModel)
		}
	}

	return s.save(ctx, settings)
}

// load reads the settings rows into a struct; returns (nil, nil) when no
// settings exist yet.
func (s *SettingsService) load(ctx context.Context) (*Settings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}

	return &Settings{
		SystemPrompt: values["system_prompt"],
		MainModel:    values["main_model"],
		SupportModel: values["support_model"],
	}, nil
}

func (s *SettingsService) save(ctx context.Context, settings *Settings) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value")
	if err != nil {
		return fmt.Errorf("could not prepare statement: %w", err)
	}
	defer stmt.Close()

	pairs := [][2]string{
		{"main_model", settings.MainModel},
		{"support_model", settings.SupportModel},
		{"system_prompt", settings.SystemPrompt},
	}
	for _, pair := range pairs {
		if _, err := stmt.ExecContext(ctx, pair[0], pair[1]); err != nil {
			return fmt.Errorf("could not save setting %q: %w", pair[0], err)
		}
	}

	return tx.Commit()
}
