package mediacache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zapflowai/zapflow/internal/llm"
)

// vendor is what the analyzer needs from the model client.
type vendor interface {
	UploadFile(ctx context.Context, displayName, mimeType string, data []byte) (llm.UploadedFile, error)
	GenerateContent(ctx context.Context, req llm.GenerateRequest) (llm.Result, error)
	DeleteFile(ctx context.Context, name string) error
}

// Analyzer produces a text description of a media payload, consulting the
// cache before paying for an upload-analyze-delete cycle at the vendor.
type Analyzer struct {
	cache  *Cache
	vendor vendor
	log    *slog.Logger
}

func NewAnalyzer(cache *Cache, vendor vendor, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		cache:  cache,
		vendor: vendor,
		log:    log.With(slog.String("service", "media-analyzer")),
	}
}

var mediaPrompts = map[string]string{
	"image":    "Descreva esta imagem em portugues, em ate tres frases, focando no que e relevante para uma conversa de atendimento.",
	"sticker":  "Descreva brevemente em portugues a emocao ou intencao transmitida por esta figurinha.",
	"video":    "Resuma em portugues o conteudo deste video em ate tres frases.",
	"document": "Resuma em portugues o conteudo deste documento, destacando dados relevantes para o atendimento.",
}

// Analyze returns the textual analysis for the payload, serving from cache
// when the same bytes were analyzed before for this tenant.
func (a *Analyzer) Analyze(ctx context.Context, tenantID, mediaType, mimeType string, data []byte) (string, error) {
	key := Key(tenantID, data)
	if cached := a.cache.Get(ctx, key); cached != "" {
		a.log.Debug("media analysis cache hit", slog.String("type", mediaType))
		return cached, nil
	}

	prompt, ok := mediaPrompts[mediaType]
	if !ok {
		prompt = mediaPrompts["document"]
	}

	file, err := a.vendor.UploadFile(ctx, fmt.Sprintf("%s-%d", mediaType, time.Now().UnixMilli()), mimeType, data)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", mediaType, err)
	}
	defer func() {
		cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := a.vendor.DeleteFile(cleanup, file.Name); err != nil {
			a.log.Warn("vendor file cleanup failed", slog.String("file", file.Name), slog.String("error", err.Error()))
		}
	}()

	result, err := a.vendor.GenerateContent(ctx, llm.GenerateRequest{
		Contents: []llm.Content{{
			Role: "user",
			Parts: []llm.Part{
				{Text: prompt},
				{FileData: &llm.FileData{MimeType: file.Mime, FileURI: file.URI}},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("analyze %s: %w", mediaType, err)
	}
	analysis := strings.TrimSpace(result.Text)
	if analysis == "" {
		return "", fmt.Errorf("analyze %s: empty response", mediaType)
	}
	a.cache.Set(ctx, key, analysis)
	return analysis, nil
}
