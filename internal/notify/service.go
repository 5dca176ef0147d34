package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/crm"
	"github.com/zapflowai/zapflow/internal/db"
)

// Service fans notifications out to the company's admins and leaves an
// internal note on the conversation as an audit trail.
type Service struct {
	queries *db.Queries
	crm     *crm.Service
	log     *slog.Logger
}

func NewService(queries *db.Queries, crmSvc *crm.Service, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		queries: queries,
		crm:     crmSvc,
		log:     log.With(slog.String("service", "notify")),
	}
}

// NotifyAdmins sends the message to every admin of the company. A partial
// failure keeps fanning out and is reported once at the end.
func (s *Service) NotifyAdmins(ctx context.Context, companyID, conversationID pgtype.UUID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("empty notification message")
	}
	admins, err := s.crm.Admins(ctx, companyID)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		s.log.Warn("no active admins to notify",
			slog.String("company_id", db.UUIDToString(companyID)))
		return nil
	}

	var failed int
	for _, admin := range admins {
		if err := s.queries.CreateNotification(ctx, companyID, admin.ID, "Aviso do agente", message); err != nil {
			failed++
			s.log.Warn("notification delivery failed",
				slog.String("user_id", db.UUIDToString(admin.ID)),
				slog.String("error", err.Error()))
		}
	}
	if failed == len(admins) {
		return fmt.Errorf("all %d notifications failed", failed)
	}

	if err := s.queries.CreateConversationNote(ctx, conversationID, "Equipe notificada: "+message); err != nil {
		s.log.Warn("conversation note failed", slog.String("error", err.Error()))
	}
	return nil
}
