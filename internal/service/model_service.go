package service

import (
	"context"
	"fmt"
	"log/slog"

	"ember-chat/backend/internal/llm"
)

// ModelService handles the business logic for model management.
type ModelService struct {
	llm       llm.Provider
	keepAlive string
}

// NewModelService creates a new ModelService.
func NewModelService(llmProvider llm.Provider, keepAlive string) *ModelService {
	return &ModelService{llm: llmProvider, keepAlive: keepAlive}
}

// List returns a list of all locally available models.
func (s *ModelService) List(ctx context.Context) (*llm.ListModelsResponse, error) {
	return s.llm.ListModels(ctx)
}

// Pull downloads a model from a registry. It streams the progress.
func (s *ModelService) Pull(ctx context.Context, req *llm.PullModelRequest, ch chan<- llm.PullStatus) error {
	return s.llm.PullModel(ctx, req, ch)
}

// Delete removes a local model.
func (s *ModelService) Delete(ctx context.Context, req *llm.DeleteModelRequest) error {
	return s.llm.DeleteModel(ctx, req)
}

// Show retrieves detailed information about a model.
func (s *ModelService) Show(ctx context.Context, req *llm.ShowModelRequest) (*llm.ModelInfo, error) {
	return s.llm.ShowModelInfo(ctx, req)
}

// Switch unloads the previously active model and warms up the new one. The
// unload is a generate call with keep_alive 0 (immediate eviction); the
// warm-up is an empty generate with the configured keep_alive so the first
// real prompt doesn't pay the model load time.
func (s *ModelService) Switch(ctx context.Context, from, to string) error {
	if from != "" && from != to {
		if _, err := s.llm.Generate(ctx, &llm.GenerateRequest{Model: from, KeepAlive: llm.KeepAliveUnload}); err != nil {
			// An unload failure is not fatal; the old model simply expires on its own.
			slog.Warn("Failed to unload previous model", "model", from, "error", err)
		}
	}

	if _, err := s.llm.Generate(ctx, &llm.GenerateRequest{Model: to, KeepAlive: llm.KeepAliveDuration(s.keepAlive)}); err != nil {
		return fmt.Errorf("could not warm up model '%s': %w", to, err)
	}
	return nil
}
