package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/db"
)

// Service carries out the contact and conversation mutations commands ask
// for: tagging, board moves, origin attribution and assignment.
type Service struct {
	queries *db.Queries
	log     *slog.Logger
}

func NewService(queries *db.Queries, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries: queries,
		log:     log.With(slog.String("service", "contacts")),
	}
}

// Conversation loads the conversation row with its contact and assignment.
func (s *Service) Conversation(ctx context.Context, conversationID pgtype.UUID) (db.Conversation, error) {
	conv, err := s.queries.GetConversation(ctx, conversationID)
	if err != nil {
		return db.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

// Contact loads a contact row.
func (s *Service) Contact(ctx context.Context, contactID pgtype.UUID) (db.Contact, error) {
	contact, err := s.queries.GetContact(ctx, contactID)
	if err != nil {
		return db.Contact{}, fmt.Errorf("get contact: %w", err)
	}
	return contact, nil
}

// AttachTag links a tag to the contact. Re-attaching an existing tag is a
// no-op at the database level.
func (s *Service) AttachTag(ctx context.Context, contactID, tagID pgtype.UUID) error {
	if err := s.queries.AttachContactTag(ctx, contactID, tagID); err != nil {
		return fmt.Errorf("attach tag: %w", err)
	}
	return nil
}

// MoveStage places the contact's card in the given kanban column.
func (s *Service) MoveStage(ctx context.Context, contactID, columnID pgtype.UUID) error {
	if err := s.queries.MoveContactCard(ctx, contactID, columnID); err != nil {
		return fmt.Errorf("move contact card: %w", err)
	}
	return nil
}

// SetOrigin records where the lead came from. Blank values are rejected so a
// model hallucinating an empty origin cannot wipe an existing one.
func (s *Service) SetOrigin(ctx context.Context, contactID pgtype.UUID, origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return fmt.Errorf("empty origin")
	}
	if err := s.queries.SetContactOrigin(ctx, contactID, db.ToText(origin)); err != nil {
		return fmt.Errorf("set contact origin: %w", err)
	}
	return nil
}

// AssignUser hands the conversation to a human teammate.
func (s *Service) AssignUser(ctx context.Context, conversationID, userID pgtype.UUID) error {
	if err := s.queries.AssignConversationUser(ctx, conversationID, userID); err != nil {
		return fmt.Errorf("assign conversation user: %w", err)
	}
	return nil
}

// AssignDepartment routes the conversation to a department queue.
func (s *Service) AssignDepartment(ctx context.Context, conversationID, departmentID pgtype.UUID) error {
	if err := s.queries.AssignConversationDepartment(ctx, conversationID, departmentID); err != nil {
		return fmt.Errorf("assign conversation department: %w", err)
	}
	return nil
}
