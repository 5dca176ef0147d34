package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/contextmem"
	"github.com/zapflowai/zapflow/internal/crm"
	"github.com/zapflowai/zapflow/internal/db"
)

// Conversation lifecycle. A dormant conversation waits for a trigger phrase,
// an active one is answered by the agent, a paused one sleeps until
// paused_until and deactivation is final.
const (
	StatusDormant     = "dormant"
	StatusActive      = "active"
	StatusPaused      = "paused"
	StatusDeactivated = "deactivated_permanently"
)

// Skip sentinels. They mean "do not answer this batch", not "the turn
// failed", and handlers map them to a successful skip response.
var (
	ErrWaitingForTrigger = errors.New("conversation waiting for trigger phrase")
	ErrPaused            = errors.New("conversation is paused")
	ErrDeactivated       = errors.New("conversation permanently deactivated")
)

// Store owns conversation_states rows, the only table this engine writes
// schema for.
type Store struct {
	queries *db.Queries
	log     *slog.Logger
	now     func() time.Time
}

func NewStore(queries *db.Queries, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		queries: queries,
		log:     log.With(slog.String("service", "conversation")),
		now:     time.Now,
	}
}

// Ensure returns the state row for a conversation, creating a dormant one on
// first contact.
func (s *Store) Ensure(ctx context.Context, conversationID, agentID pgtype.UUID) (db.ConversationState, error) {
	state, err := s.queries.GetConversationState(ctx, conversationID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return db.ConversationState{}, fmt.Errorf("get conversation state: %w", err)
	}
	state, err = s.queries.CreateConversationState(ctx, db.CreateConversationStateParams{
		ConversationID: conversationID,
		AgentID:        agentID,
		Status:         StatusDormant,
		Metadata:       []byte("{}"),
	})
	if err != nil {
		return db.ConversationState{}, fmt.Errorf("create conversation state: %w", err)
	}
	s.log.Info("conversation state created", slog.String("conversation_id", db.UUIDToString(conversationID)))
	return state, nil
}

// Gate decides whether the agent answers this batch. Dormant conversations
// activate when a trigger phrase matches, or immediately when the agent has
// none configured. Expired pauses resume on the spot and the resume is
// persisted before the turn proceeds.
func (s *Store) Gate(ctx context.Context, state db.ConversationState, triggerPhrases []string, messageText string) (db.ConversationState, error) {
	switch state.Status {
	case StatusDeactivated:
		return state, ErrDeactivated

	case StatusPaused:
		if state.PausedUntil.Valid && s.now().Before(state.PausedUntil.Time) {
			return state, ErrPaused
		}
		state.Status = StatusActive
		state.PausedUntil = pgtype.Timestamptz{}
		updated, err := s.save(ctx, state)
		if err != nil {
			return state, err
		}
		s.log.Info("conversation resumed after pause",
			slog.String("conversation_id", db.UUIDToString(state.ConversationID)))
		return updated, nil

	case StatusDormant:
		if len(triggerPhrases) > 0 && !matchesTrigger(triggerPhrases, messageText) {
			return state, ErrWaitingForTrigger
		}
		state.Status = StatusActive
		state.ActivatedAt = db.ToTimestamptz(s.now())
		updated, err := s.save(ctx, state)
		if err != nil {
			return state, err
		}
		s.log.Info("conversation activated",
			slog.String("conversation_id", db.UUIDToString(state.ConversationID)))
		return updated, nil

	default:
		return state, nil
	}
}

// Touch records that a batch was processed.
func (s *Store) Touch(ctx context.Context, state db.ConversationState) (db.ConversationState, error) {
	state.MessagesProcessed++
	state.LastMessageAt = db.ToTimestamptz(s.now())
	return s.save(ctx, state)
}

// Pause sleeps the conversation for the given duration.
func (s *Store) Pause(ctx context.Context, state db.ConversationState, d time.Duration) (db.ConversationState, error) {
	state.Status = StatusPaused
	state.PausedUntil = db.ToTimestamptz(s.now().Add(d))
	return s.save(ctx, state)
}

// Deactivate turns the agent off for this conversation for good.
func (s *Store) Deactivate(ctx context.Context, state db.ConversationState) (db.ConversationState, error) {
	state.Status = StatusDeactivated
	state.PausedUntil = pgtype.Timestamptz{}
	return s.save(ctx, state)
}

// SetSubAgent records which sibling agent now fronts the conversation. A
// zero UUID hands control back to the root agent.
func (s *Store) SetSubAgent(ctx context.Context, state db.ConversationState, subAgentID pgtype.UUID) (db.ConversationState, error) {
	state.CurrentSubAgentID = subAgentID
	return s.save(ctx, state)
}

// Memory decodes the structured context stored with the state.
func Memory(state db.ConversationState) contextmem.Context {
	return contextmem.Decode(state.Metadata)
}

// SaveMemory persists the merged context back onto the state row.
func (s *Store) SaveMemory(ctx context.Context, state db.ConversationState, memory contextmem.Context) (db.ConversationState, error) {
	state.Metadata = contextmem.Encode(memory)
	return s.save(ctx, state)
}

func (s *Store) save(ctx context.Context, state db.ConversationState) (db.ConversationState, error) {
	updated, err := s.queries.UpdateConversationState(ctx, db.UpdateConversationStateParams{
		ConversationID:    state.ConversationID,
		Status:            state.Status,
		CurrentSubAgentID: state.CurrentSubAgentID,
		PausedUntil:       state.PausedUntil,
		ActivatedAt:       state.ActivatedAt,
		LastMessageAt:     state.LastMessageAt,
		MessagesProcessed: state.MessagesProcessed,
		Metadata:          state.Metadata,
	})
	if err != nil {
		return state, fmt.Errorf("update conversation state: %w", err)
	}
	return updated, nil
}

// matchesTrigger reports whether any configured phrase appears in the text,
// ignoring case and accents.
func matchesTrigger(phrases []string, text string) bool {
	normalized := crm.Normalize(text)
	if normalized == "" {
		return false
	}
	for _, p := range phrases {
		if p = crm.Normalize(p); p != "" && strings.Contains(normalized, p) {
			return true
		}
	}
	return false
}
