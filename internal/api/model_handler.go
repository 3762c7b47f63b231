package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	app_errors "ember-chat/backend/internal/errors"
	"ember-chat/backend/internal/interfaces"
	"ember-chat/backend/internal/llm"
)

// ModelHandler handles HTTP requests for model management.
type ModelHandler struct {
	service interfaces.ModelService
}

func NewModelHandler(svc interfaces.ModelService) *ModelHandler {
	return &ModelHandler{service: svc}
}

// HandleListModels godoc
// @Summary      List local models
// @Description  Gets a list of all models available locally on the endpoint.
// @Tags         Models
// @Produce      json
// @Success      200  {object}  llm.ListModelsResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/models [get]
func (h *ModelHandler) HandleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.service.List(r.Context())
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models)
}

// HandleShowModel godoc
// @Summary      Show model info
// @Description  Retrieves detailed information about a specific model.
// @Tags         Models
// @Accept       json
// @Produce      json
// @Param        modelRequest  body  llm.ShowModelRequest  true  "Model Name"
// @Success      200           {object}  llm.ModelInfo
// @Failure      400           {object}  ErrorResponse
// @Failure      404           {object}  ErrorResponse
// @Router       /v1/models/show [post]
func (h *ModelHandler) HandleShowModel(w http.ResponseWriter, r *http.Request) {
	var req llm.ShowModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	info, err := h.service.Show(r.Context(), &req)
	if err != nil {
		respondWithError(w, fmt.Errorf("%w: could not get model info: %s", app_errors.ErrNotFound, err.Error()))
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// HandleDeleteModel godoc
// @Summary      Delete a local model
// @Description  Deletes a model from the endpoint's local storage.
// @Tags         Models
// @Accept       json
// @Produce      json
// @Param        modelRequest  body  llm.DeleteModelRequest  true  "Model Name to Delete"
// @Success      200           {object}  StatusResponse
// @Failure      400           {object}  ErrorResponse
// @Failure      500           {object}  ErrorResponse
// @Router       /v1/models [delete]
func (h *ModelHandler) HandleDeleteModel(w http.ResponseWriter, r *http.Request) {
	var req llm.DeleteModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := h.service.Delete(r.Context(), &req); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandleSwitchModel godoc
// @Summary      Switch the active model
// @Description  Unloads the previous model immediately (keep_alive 0) and warms
// @Description  up the new one so the next prompt starts without load latency.
// @Tags         Models
// @Accept       json
// @Produce      json
// @Param        switchRequest  body  SwitchModelRequest  true  "Models to switch between"
// @Success      200  {object}  StatusResponse
// @Failure      400  {object}  ErrorResponse
// @Failure      500  {object}  ErrorResponse
// @Router       /v1/models/switch [post]
func (h *ModelHandler) HandleSwitchModel(w http.ResponseWriter, r *http.Request) {
	var req SwitchModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, fmt.Errorf("%w: invalid request payload", app_errors.ErrValidation))
		return
	}
	if err := validateRequest(req); err != nil {
		respondWithError(w, err)
		return
	}
	if err := h.service.Switch(r.Context(), req.From, req.To); err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// HandlePullModel godoc
// @Summary      Pull a new model
// @Description  Downloads a model from the registry. This is a streaming endpoint.
// @Tags         Models
// @Accept       json
// @Produce      text/event-stream
// @Param        modelRequest  body  llm.PullModelRequest  true  "Model Name to Pull"
// @Success      200           {object}  llm.PullStatus "Stream of progress status"
// @Failure      400           {object}  ErrorResponse "Sent as a stream error event"
// @Router       /v1/models/pull [post]
func (h *ModelHandler) HandlePullModel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var req llm.PullModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Error decoding request body for model pull", "error", err)
		sendStreamError(w, "Invalid request body")
		return
	}

	streamChan := make(chan llm.PullStatus)
	go func() {
		if err := h.service.Pull(r.Context(), &req, streamChan); err != nil {
			slog.Error("Error from model pull service", "model", req.Name, "error", err)
		}
	}()

	for chunk := range streamChan {
		if r.Context().Err() != nil {
			slog.Info("Client disconnected during model pull.", "model", req.Name)
			break
		}

		if chunk.Error != "" {
			slog.Warn("Received an error in the pull stream", "model", req.Name, "error", chunk.Error)
		}

		if err := writeStreamEvent(w, chunk); err != nil {
			slog.Warn("Could not write to model pull stream, client likely disconnected.", "error", err)
			break
		}
	}

	slog.Info("Finished streaming model pull.", "model", req.Name)
}
