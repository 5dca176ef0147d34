package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/zapflowai/zapflow/internal/conversation"
	"github.com/zapflowai/zapflow/internal/flow"
)

// MessageItem is one inbound message of a batch.
type MessageItem struct {
	Type     string `json:"type"`
	Content  string `json:"content,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

// MessagesRequest accepts either a messages batch or the legacy single-message
// fields, which are normalized into a one-item batch.
type MessagesRequest struct {
	ConnectionID   string        `json:"connectionId" validate:"required,uuid"`
	ConversationID string        `json:"conversationId" validate:"required,uuid"`
	Messages       []MessageItem `json:"messages,omitempty"`
	MessageContent string        `json:"messageContent,omitempty"`
	ContactName    string        `json:"contactName,omitempty"`
	ContactPhone   string        `json:"contactPhone,omitempty"`
	MessageType    string        `json:"messageType,omitempty"`
	MediaURL       string        `json:"mediaUrl,omitempty"`
}

// MessagesResponse is the success payload.
type MessagesResponse struct {
	Success             bool            `json:"success"`
	Response            string          `json:"response"`
	AgentID             string          `json:"agentId"`
	AgentName           string          `json:"agentName"`
	DelaySeconds        int32           `json:"delaySeconds"`
	VoiceName           *string         `json:"voiceName"`
	ShouldGenerateAudio bool            `json:"shouldGenerateAudio"`
	SpeechSpeed         float64         `json:"speechSpeed"`
	AudioTemperature    float64         `json:"audioTemperature"`
	LanguageCode        string          `json:"languageCode"`
	MediasToSend        []flow.MediaOut `json:"mediasToSend,omitempty"`
}

type skipResponse struct {
	Success bool   `json:"success"`
	Skip    bool   `json:"skip"`
	Reason  string `json:"reason"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// turnResolver is implemented by flow.Resolver.
type turnResolver interface {
	Resolve(ctx context.Context, in flow.Input) (flow.Reply, error)
}

type MessagesHandler struct {
	resolver turnResolver
	validate *validator.Validate
	logger   *slog.Logger
}

func NewMessagesHandler(resolver turnResolver, log *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		resolver: resolver,
		validate: validator.New(),
		logger:   log.With(slog.String("handler", "messages")),
	}
}

func (h *MessagesHandler) Register(e *echo.Echo) {
	e.POST("/agent/messages", h.Handle)
}

func (h *MessagesHandler) Handle(c echo.Context) error {
	var req MessagesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
	}
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "connectionId and conversationId are required"})
	}

	input := h.normalize(req)
	if len(input.Messages) == 0 {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "no messages to process"})
	}

	reply, err := h.resolver.Resolve(c.Request().Context(), input)
	if err != nil {
		if reason, skip := skipReason(err); skip {
			return c.JSON(http.StatusOK, skipResponse{Skip: true, Reason: reason})
		}
		h.logger.Error("turn failed",
			slog.String("conversation_id", req.ConversationID),
			slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "agent could not produce a response"})
	}

	resp := MessagesResponse{
		Success:             true,
		Response:            reply.Text,
		AgentID:             reply.AgentID,
		AgentName:           reply.AgentName,
		DelaySeconds:        reply.DelaySeconds,
		ShouldGenerateAudio: reply.ShouldGenerateAudio,
		SpeechSpeed:         reply.SpeechSpeed,
		AudioTemperature:    reply.AudioTemperature,
		LanguageCode:        reply.LanguageCode,
		MediasToSend:        reply.Medias,
	}
	if reply.VoiceName != "" {
		resp.VoiceName = &reply.VoiceName
	}
	return c.JSON(http.StatusOK, resp)
}

// normalize turns legacy single-message fields into a batch.
func (h *MessagesHandler) normalize(req MessagesRequest) flow.Input {
	in := flow.Input{
		ConnectionID:   req.ConnectionID,
		ConversationID: req.ConversationID,
		ContactName:    req.ContactName,
	}
	for _, m := range req.Messages {
		in.Messages = append(in.Messages, flow.Message{
			Type:     defaultType(m.Type),
			Content:  m.Content,
			MediaURL: m.MediaURL,
			FileName: m.FileName,
		})
	}
	if len(in.Messages) == 0 && (req.MessageContent != "" || req.MediaURL != "") {
		in.Messages = append(in.Messages, flow.Message{
			Type:     defaultType(req.MessageType),
			Content:  req.MessageContent,
			MediaURL: req.MediaURL,
		})
	}
	return in
}

func defaultType(t string) string {
	if t == "" {
		return "text"
	}
	return t
}

// skipReason maps control-flow sentinels to machine-readable skip reasons.
func skipReason(err error) (string, bool) {
	switch {
	case errors.Is(err, conversation.ErrWaitingForTrigger):
		return "Waiting for activation trigger", true
	case errors.Is(err, conversation.ErrPaused):
		return "Conversation paused", true
	case errors.Is(err, conversation.ErrDeactivated):
		return "Agent deactivated for this conversation", true
	case errors.Is(err, flow.ErrDuplicateBatch):
		return "Duplicate batch already being processed", true
	case errors.Is(err, flow.ErrNoAgent):
		return "No agent linked to this connection", true
	}
	return "", false
}
