package flow

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/zapflowai/zapflow/internal/llm"
)

// promptBundle is everything a strategy needs to issue the main call.
type promptBundle struct {
	system      string
	history     []llm.Content
	userText    string
	tools       []llm.Tool
	temperature float64
}

// strategy attempts one invocation. ok=false means "try the next one";
// a non-nil error is a hard vendor failure that aborts the chain.
type strategy interface {
	name() string
	invoke(ctx context.Context, bundle promptBundle) (llm.Result, bool, error)
}

// buildStrategies orders the attempts for a turn: multimodal first when the
// newest message carries a visual asset, then text at the configured
// temperature, half of it, and a 0.1 floor.
func (r *Resolver) buildStrategies(newest Message) []strategy {
	var chain []strategy
	if isVisualMedia(newest) {
		chain = append(chain, &multimodalStrategy{resolver: r, message: newest})
	}
	return chain // text strategies appended by caller with temperatures
}

func isVisualMedia(m Message) bool {
	switch m.Type {
	case "image", "video", "document", "sticker":
		return m.MediaURL != ""
	}
	return false
}

// multimodalStrategy downloads the newest asset and sends it inline. Fetch or
// size failures degrade to the text chain with a placeholder, never abort.
type multimodalStrategy struct {
	resolver *Resolver
	message  Message
}

func (s *multimodalStrategy) name() string { return "multimodal" }

func (s *multimodalStrategy) invoke(ctx context.Context, bundle promptBundle) (llm.Result, bool, error) {
	data, mime, err := s.resolver.downloader.Fetch(ctx, s.message.MediaURL)
	if err != nil {
		s.resolver.log.Warn("media fetch failed, degrading to text",
			slog.String("url", s.message.MediaURL),
			slog.String("error", err.Error()))
		return llm.Result{}, false, nil
	}
	if mime == "" {
		mime = mimeForType(s.message.Type)
	}

	instruction := bundle.userText
	if instruction == "" {
		instruction = fmt.Sprintf("O contato enviou um arquivo (%s). Analise o conteudo e responda de acordo com o seu roteiro.", s.message.Type)
	} else {
		instruction += "\n\nConsidere tambem o arquivo enviado junto com a mensagem."
	}

	contents := append(append([]llm.Content{}, bundle.history...), llm.Content{
		Role: "user",
		Parts: []llm.Part{
			{Text: instruction},
			{InlineData: &llm.Blob{MimeType: mime, Data: encodeBase64(data)}},
		},
	})
	temp := bundle.temperature
	result, err := s.resolver.model.GenerateContent(ctx, llm.GenerateRequest{
		SystemInstruction: &llm.Content{Parts: []llm.Part{{Text: bundle.system}}},
		Contents:          contents,
		Tools:             bundle.tools,
		GenerationConfig:  llm.GenerationConfig{Temperature: &temp},
	})
	if err != nil {
		return llm.Result{}, false, err
	}
	return result, !result.Empty(), nil
}

// textStrategy sends the text prompt with tools at a fixed temperature.
type textStrategy struct {
	resolver    *Resolver
	temperature float64
	label       string
}

func (s *textStrategy) name() string { return s.label }

func (s *textStrategy) invoke(ctx context.Context, bundle promptBundle) (llm.Result, bool, error) {
	contents := append(append([]llm.Content{}, bundle.history...), llm.Content{
		Role:  "user",
		Parts: []llm.Part{{Text: bundle.userText}},
	})
	temp := s.temperature
	result, err := s.resolver.model.GenerateContent(ctx, llm.GenerateRequest{
		SystemInstruction: &llm.Content{Parts: []llm.Part{{Text: bundle.system}}},
		Contents:          contents,
		Tools:             bundle.tools,
		GenerationConfig:  llm.GenerationConfig{Temperature: &temp},
	})
	if err != nil {
		return llm.Result{}, false, err
	}
	return result, !result.Empty(), nil
}

func mimeForType(mediaType string) string {
	switch mediaType {
	case "image", "sticker":
		return "image/jpeg"
	case "video":
		return "video/mp4"
	case "audio":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
