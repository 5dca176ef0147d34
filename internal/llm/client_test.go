package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(nil, server.URL, "test-key", "test-model", 0)
}

func TestGenerateContentParsesTextAndToolCalls(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role": "model",
					"parts": []map[string]any{
						{"text": "Perfeito, vou te transferir."},
						{"functionCall": map[string]any{
							"name": "transferir_agente",
							"args": map[string]any{"nome_agente": "Vendas"},
						}},
					},
				},
				"finishReason": "STOP",
			}},
		})
	})

	result, err := client.GenerateContent(context.Background(), GenerateRequest{
		Contents: []Content{{Role: "user", Parts: []Part{{Text: "oi"}}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "Perfeito, vou te transferir." {
		t.Fatalf("text = %q", result.Text)
	}
	if len(result.ToolCalls) != 1 || result.ToolCalls[0].Name != "transferir_agente" {
		t.Fatalf("tool calls = %+v", result.ToolCalls)
	}
	if result.ToolCalls[0].Arguments["nome_agente"] != "Vendas" {
		t.Fatalf("arguments = %+v", result.ToolCalls[0].Arguments)
	}
}

func TestGenerateContentNoCandidatesIsEmpty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	result, err := client.GenerateContent(context.Background(), GenerateRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Empty() {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestGenerateContentSurfacesAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":429,"message":"quota"}}`, http.StatusTooManyRequests)
	})
	_, err := client.GenerateContent(context.Background(), GenerateRequest{})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestUploadAndDeleteFile(t *testing.T) {
	var deleted string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/upload/"):
			if got := r.Header.Get("X-Goog-Upload-Protocol"); got != "raw" {
				t.Errorf("upload protocol header = %q", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"file": map[string]any{"name": "files/abc", "uri": "https://files/abc", "mimeType": "audio/ogg"},
			})
		case r.Method == http.MethodDelete:
			deleted = r.URL.Path
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	file, err := client.UploadFile(context.Background(), "voice.ogg", "audio/ogg", []byte("bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.Name != "files/abc" {
		t.Fatalf("file name = %q", file.Name)
	}
	if err := client.DeleteFile(context.Background(), file.Name); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.HasSuffix(deleted, "files/abc") {
		t.Fatalf("delete path = %q", deleted)
	}
}

func TestDeleteFileToleratesMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	if err := client.DeleteFile(context.Background(), "files/gone"); err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
}

func TestTranscribeUsesLowTemperature(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.GenerationConfig.Temperature == nil || *req.GenerationConfig.Temperature > 0.2 {
			t.Errorf("transcription temperature = %v", req.GenerationConfig.Temperature)
		}
		if len(req.Contents) != 1 || req.Contents[0].Parts[1].InlineData == nil {
			t.Errorf("expected inline audio part, got %+v", req.Contents)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{"text": "bom dia, quero um orcamento"}}},
			}},
		})
	})

	text, err := client.Transcribe(context.Background(), "audio/ogg", []byte("audio"), "")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "bom dia, quero um orcamento" {
		t.Fatalf("transcript = %q", text)
	}
}
