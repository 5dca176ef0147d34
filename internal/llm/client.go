package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	apiVersion = "v1beta"

	// transcriptionTemperature keeps transcript-only calls deterministic.
	transcriptionTemperature = 0.1
)

// Client talks to the generative language vendor API: text and multimodal
// generation plus the file store used by long-media analysis.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(log *slog.Logger, baseURL, apiKey, model string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log.With(slog.String("service", "llm")),
	}
}

// Model returns the configured default model id.
func (c *Client) Model() string { return c.model }

// GenerateContent runs one generation call and parses text and tool calls out
// of the first candidate.
func (c *Client) GenerateContent(ctx context.Context, req GenerateRequest) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, apiVersion, c.model, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("vendor api error",
			slog.Int("status", resp.StatusCode),
			slog.String("body_prefix", truncate(string(respBody), 300)),
		)
		return Result{}, fmt.Errorf("vendor api error: status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return Result{}, fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return Result{}, nil
	}

	candidate := parsed.Candidates[0]
	result := Result{FinishReason: candidate.FinishReason}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if part.FunctionCall != nil {
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				Name:      part.FunctionCall.Name,
				Arguments: decodeArgs(part.FunctionCall.Args),
			})
		}
	}
	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

// Transcribe runs a dedicated low-temperature call whose only output is the
// transcript of the given audio payload.
func (c *Client) Transcribe(ctx context.Context, mimeType string, data []byte, languageCode string) (string, error) {
	lang := strings.TrimSpace(languageCode)
	if lang == "" {
		lang = "pt-BR"
	}
	temp := transcriptionTemperature
	req := GenerateRequest{
		Contents: []Content{{
			Role: "user",
			Parts: []Part{
				{Text: fmt.Sprintf("Transcreva este audio em %s. Responda apenas com a transcricao literal, sem comentarios.", lang)},
				{InlineData: &Blob{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}},
			},
		}},
		GenerationConfig: GenerationConfig{Temperature: &temp},
	}
	result, err := c.GenerateContent(ctx, req)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// UploadFile stores media bytes in the vendor file store and returns the
// handle used by fileData references.
func (c *Client) UploadFile(ctx context.Context, displayName, mimeType string, data []byte) (UploadedFile, error) {
	url := fmt.Sprintf("%s/upload/%s/files?key=%s", c.baseURL, apiVersion, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return UploadedFile{}, err
	}
	httpReq.Header.Set("Content-Type", mimeType)
	httpReq.Header.Set("X-Goog-Upload-Protocol", "raw")
	httpReq.Header.Set("X-Goog-File-Name", displayName)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return UploadedFile{}, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return UploadedFile{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return UploadedFile{}, fmt.Errorf("upload failed: status %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(respBody)), 200))
	}

	var parsed struct {
		File UploadedFile `json:"file"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return UploadedFile{}, fmt.Errorf("parse upload response: %w", err)
	}
	if parsed.File.Name == "" {
		return UploadedFile{}, fmt.Errorf("upload response missing file name")
	}
	return parsed.File, nil
}

// DeleteFile removes an uploaded asset from the vendor store. A 404 is not an
// error: the asset may already have expired on the vendor side.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil
	}
	url := fmt.Sprintf("%s/%s/%s?key=%s", c.baseURL, apiVersion, trimmed, c.apiKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delete failed: status %d", resp.StatusCode)
	}
	return nil
}

func decodeArgs(raw json.RawMessage) map[string]string {
	args := map[string]string{}
	if len(raw) == 0 {
		return args
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return args
	}
	for k, v := range generic {
		switch value := v.(type) {
		case string:
			args[k] = value
		case float64:
			args[k] = strings.TrimSuffix(fmt.Sprintf("%v", value), ".0")
		default:
			args[k] = fmt.Sprintf("%v", value)
		}
	}
	return args
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
