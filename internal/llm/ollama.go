package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// KeepAliveUnload asks the endpoint to unload the model immediately after
// the call; used by the model-switch flow.
var KeepAliveUnload = json.RawMessage("0")

// KeepAliveDuration wraps a duration string (e.g. "10m") as a keep_alive
// value that keeps the model warm after the call.
func KeepAliveDuration(d string) json.RawMessage {
	raw, _ := json.Marshal(d)
	return raw
}

// GenerateRequest is the wire request for POST /api/generate.
type GenerateRequest struct {
	Model     string          `json:"model"`
	Prompt    string          `json:"prompt"`
	System    string          `json:"system,omitempty"`
	Stream    bool            `json:"stream"`
	KeepAlive json.RawMessage `json:"keep_alive,omitempty"`
}

// GenerateResponse is the non-streaming response shape.
type GenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ListModelsResponse mirrors GET /api/tags.
type ListModelsResponse struct {
	Models []ModelSummary `json:"models"`
}

type ModelSummary struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type ShowModelRequest struct {
	Name string `json:"name"`
}

type ModelInfo struct {
	Modelfile  string `json:"modelfile"`
	Parameters string `json:"parameters"`
	Template   string `json:"template"`
}

type DeleteModelRequest struct {
	Name string `json:"name"`
}

type PullModelRequest struct {
	Name string `json:"name"`
}

// PullStatus is one progress record while a model downloads.
type PullStatus struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Provider defines the interface for interacting with the local or remote
// inference endpoint. OpenStream deliberately exposes the raw chunked
// response body: the ingestion engine owns the framing, parsing and
// reassembly of the stream, so the provider must not buffer or interpret it.
type Provider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	OpenStream(ctx context.Context, req *GenerateRequest) (io.ReadCloser, error)
	ListModels(ctx context.Context) (*ListModelsResponse, error)
	ShowModelInfo(ctx context.Context, req *ShowModelRequest) (*ModelInfo, error)
	DeleteModel(ctx context.Context, req *DeleteModelRequest) error
	PullModel(ctx context.Context, req *PullModelRequest, ch chan<- PullStatus) error
}

type ollamaProvider struct {
	client *http.Client
	url    string
}

func NewOllamaProvider(url string) Provider {
	return &ollamaProvider{
		client: &http.Client{},
		url:    url,
	}
}

func (p *ollamaProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	req.Stream = false
	resp, err := p.post(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var genResp GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}
	return &genResp, nil
}

// OpenStream issues the streaming generate request and hands the raw body to
// the caller. A non-2xx response is converted into an error here so the
// session controller can fail the message with a descriptive explanation.
// The body honors ctx: cancelling the context aborts the underlying
// connection, not just the reads.
func (p *ollamaProvider) OpenStream(ctx context.Context, req *GenerateRequest) (io.ReadCloser, error) {
	req.Stream = true
	resp, err := p.post(ctx, "/api/generate", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (p *ollamaProvider) ListModels(ctx context.Context) (*ListModelsResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var list ListModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("could not decode model list: %w", err)
	}
	return &list, nil
}

func (p *ollamaProvider) ShowModelInfo(ctx context.Context, req *ShowModelRequest) (*ModelInfo, error) {
	resp, err := p.post(ctx, "/api/show", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var info ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("could not decode model info: %w", err)
	}
	return &info, nil
}

func (p *ollamaProvider) DeleteModel(ctx context.Context, req *DeleteModelRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.url+"/api/delete", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// PullModel downloads a model from the registry, forwarding progress records
// to ch until the download finishes or ctx is cancelled.
func (p *ollamaProvider) PullModel(ctx context.Context, req *PullModelRequest, ch chan<- PullStatus) error {
	defer close(ch)

	resp, err := p.post(ctx, "/api/pull", map[string]any{"name": req.Name, "stream": true})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var status PullStatus
		if err := json.Unmarshal(line, &status); err != nil {
			ch <- PullStatus{Error: "Failed to decode pull status"}
			continue
		}

		select {
		case ch <- status:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}

func (p *ollamaProvider) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("could not marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("api returned non-200 status %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return resp, nil
}
