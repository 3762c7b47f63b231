package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOllamaProvider verifies that the provider constructs the right HTTP
// requests against the inference endpoint and parses the responses, using an
// httptest server as a stand-in for the real API.
func TestOllamaProvider(t *testing.T) {
	var capturedMethod, capturedPath string
	var capturedBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedMethod = r.Method
		capturedPath = r.URL.Path
		capturedBody, _ = io.ReadAll(r.Body)

		switch r.URL.Path {
		case "/api/generate":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte(`{"model": "test-model", "response": "hi", "done": true}`))
			assert.NoError(t, err)
		case "/api/tags":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte(`{"models": [{"name": "test-model", "size": 42}]}`))
			assert.NoError(t, err)
		case "/api/delete":
			w.WriteHeader(http.StatusOK)
		case "/api/show":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, err := w.Write([]byte(`{"modelfile": "FROM scratch"}`))
			assert.NoError(t, err)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL)
	ctx := context.Background()

	t.Run("Generate", func(t *testing.T) {
		resp, err := provider.Generate(ctx, &GenerateRequest{Model: "test-model", Prompt: "hello"})

		require.NoError(t, err)
		assert.Equal(t, "hi", resp.Response)
		assert.True(t, resp.Done)
		assert.Equal(t, http.MethodPost, capturedMethod)
		assert.Equal(t, "/api/generate", capturedPath)

		// The non-streaming path must force stream off on the wire.
		var wireReq map[string]any
		require.NoError(t, json.Unmarshal(capturedBody, &wireReq))
		assert.Equal(t, false, wireReq["stream"])
	})

	t.Run("Generate carries keep_alive zero for unload", func(t *testing.T) {
		_, err := provider.Generate(ctx, &GenerateRequest{Model: "test-model", KeepAlive: KeepAliveUnload})

		require.NoError(t, err)
		var wireReq map[string]any
		require.NoError(t, json.Unmarshal(capturedBody, &wireReq))
		// keep_alive: 0 must survive marshaling; dropping it would leave the
		// model loaded instead of evicting it.
		assert.Equal(t, float64(0), wireReq["keep_alive"])
	})

	t.Run("ListModels", func(t *testing.T) {
		list, err := provider.ListModels(ctx)

		require.NoError(t, err)
		require.Len(t, list.Models, 1)
		assert.Equal(t, "test-model", list.Models[0].Name)
		assert.Equal(t, http.MethodGet, capturedMethod)
		assert.Equal(t, "/api/tags", capturedPath)
	})

	t.Run("DeleteModel", func(t *testing.T) {
		err := provider.DeleteModel(ctx, &DeleteModelRequest{Name: "test-model"})

		require.NoError(t, err)
		assert.Equal(t, http.MethodDelete, capturedMethod)
		assert.Equal(t, "/api/delete", capturedPath)
	})

	t.Run("ShowModelInfo", func(t *testing.T) {
		info, err := provider.ShowModelInfo(ctx, &ShowModelRequest{Name: "test-model"})

		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "FROM scratch", info.Modelfile)
		assert.Equal(t, http.MethodPost, capturedMethod)
		assert.Equal(t, "/api/show", capturedPath)
	})
}

// TestOllamaProvider_OpenStream verifies the streaming contract: the raw
// chunked body is handed to the caller untouched, and a non-2xx response is
// converted into an error instead of a body.
func TestOllamaProvider_OpenStream(t *testing.T) {
	t.Run("Success - Raw ndjson body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var wireReq map[string]any
			body, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(body, &wireReq))
			assert.Equal(t, true, wireReq["stream"])

			w.Header().Set("Content-Type", "application/x-ndjson")
			_, err := w.Write([]byte(`{"response": "one", "done": false}` + "\n" + `{"response": "two", "done": true}` + "\n"))
			assert.NoError(t, err)
		}))
		defer server.Close()

		provider := NewOllamaProvider(server.URL)
		stream, err := provider.OpenStream(context.Background(), &GenerateRequest{Model: "test-model", Prompt: "hi"})
		require.NoError(t, err)
		defer stream.Close()

		raw, err := io.ReadAll(stream)
		require.NoError(t, err)
		assert.Contains(t, string(raw), `"response": "one"`)
		assert.Contains(t, string(raw), `"done": true`)
	})

	t.Run("Failure - Non-200 becomes an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error": "model 'ghost' not found"}`))
		}))
		defer server.Close()

		provider := NewOllamaProvider(server.URL)
		stream, err := provider.OpenStream(context.Background(), &GenerateRequest{Model: "ghost"})

		require.Error(t, err)
		assert.Nil(t, stream)
		assert.Contains(t, err.Error(), "non-200 status 404")
		assert.Contains(t, err.Error(), "ghost")
	})
}

func TestOllamaProvider_PullModel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pull", r.URL.Path)
		_, err := w.Write([]byte(`{"status": "downloading", "total": 100, "completed": 50}` + "\n" +
			`{"status": "success"}` + "\n"))
		assert.NoError(t, err)
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL)
	ch := make(chan PullStatus)

	var statuses []PullStatus
	done := make(chan struct{})
	go func() {
		defer close(done)
		for status := range ch {
			statuses = append(statuses, status)
		}
	}()

	err := provider.PullModel(context.Background(), &PullModelRequest{Name: "test-model"}, ch)
	require.NoError(t, err)
	<-done

	require.Len(t, statuses, 2)
	assert.Equal(t, "downloading", statuses[0].Status)
	assert.Equal(t, int64(50), statuses[0].Completed)
	assert.Equal(t, "success", statuses[1].Status)
}
