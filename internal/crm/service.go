package crm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/zapflowai/zapflow/internal/db"
)

// Service exposes the company catalogs commands operate on: kanban columns,
// tags, departments and teammates.
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
		log:     log.With(slog.String("service", "crm")),
	}
}

// Columns lists the company's kanban columns in board order.
func (s *Service) Columns(ctx context.Context, companyID pgtype.UUID) ([]db.KanbanColumn, error) {
	cols, err := s.queries.ListKanbanColumnsByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list kanban columns: %w", err)
	}
	return cols, nil
}

// FindColumn resolves a column by display name, tolerant of case and accents.
func (s *Service) FindColumn(ctx context.Context, companyID pgtype.UUID, name string) (db.KanbanColumn, error) {
	cols, err := s.Columns(ctx, companyID)
	if err != nil {
		return db.KanbanColumn{}, err
	}
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	idx := MatchName(names, name)
	if idx < 0 {
		return db.KanbanColumn{}, fmt.Errorf("no kanban column named %q", name)
	}
	return cols[idx], nil
}

// Tags lists the company's tags.
func (s *Service) Tags(ctx context.Context, companyID pgtype.UUID) ([]db.Tag, error) {
	tags, err := s.queries.ListTagsByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return tags, nil
}

// FindTag resolves a tag by name using the same tolerant matching as columns.
func (s *Service) FindTag(ctx context.Context, companyID pgtype.UUID, name string) (db.Tag, error) {
	tags, err := s.Tags(ctx, companyID)
	if err != nil {
		return db.Tag{}, err
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	idx := MatchName(names, name)
	if idx < 0 {
		return db.Tag{}, fmt.Errorf("no tag named %q", name)
	}
	return tags[idx], nil
}

// Departments lists the departments reachable from a connection.
func (s *Service) Departments(ctx context.Context, connectionID pgtype.UUID) ([]db.Department, error) {
	deps, err := s.queries.ListDepartmentsByConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return deps, nil
}

// FindDepartment resolves a department by name within a connection.
func (s *Service) FindDepartment(ctx context.Context, connectionID pgtype.UUID, name string) (db.Department, error) {
	deps, err := s.Departments(ctx, connectionID)
	if err != nil {
		return db.Department{}, err
	}
	names := make([]string, len(deps))
	for i, d := range deps {
		names[i] = d.Name
	}
	idx := MatchName(names, name)
	if idx < 0 {
		return db.Department{}, fmt.Errorf("no department named %q", name)
	}
	return deps[idx], nil
}

// Teammates lists the company's active teammates.
func (s *Service) Teammates(ctx context.Context, companyID pgtype.UUID) ([]db.Teammate, error) {
	mates, err := s.queries.ListActiveTeammatesByCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list teammates: %w", err)
	}
	return mates, nil
}

// FindTeammate resolves a teammate by name.
func (s *Service) FindTeammate(ctx context.Context, companyID pgtype.UUID, name string) (db.Teammate, error) {
	mates, err := s.Teammates(ctx, companyID)
	if err != nil {
		return db.Teammate{}, err
	}
	names := make([]string, len(mates))
	for i, m := range mates {
		names[i] = m.Name
	}
	idx := MatchName(names, name)
	if idx < 0 {
		return db.Teammate{}, fmt.Errorf("no teammate named %q", name)
	}
	return mates[idx], nil
}

// Admins filters teammates down to admins and owners, the audience for
// notificar_equipe fan-out.
func (s *Service) Admins(ctx context.Context, companyID pgtype.UUID) ([]db.Teammate, error) {
	mates, err := s.Teammates(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var admins []db.Teammate
	for _, m := range mates {
		if m.Role == "admin" || m.Role == "owner" {
			admins = append(admins, m)
		}
	}
	return admins, nil
}
