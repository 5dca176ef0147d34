package crm

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/db/dbtest"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "negociacao", Normalize("  Negociação "))
	assert.Equal(t, "orcamento aprovado", Normalize("Orçamento Aprovado"))
	assert.Equal(t, "", Normalize("   "))
}

func TestMatchNameCascade(t *testing.T) {
	names := []string{"Novo Lead", "Em Negociação", "Fechado"}

	assert.Equal(t, 2, MatchName(names, "Fechado"), "exact")
	assert.Equal(t, 0, MatchName(names, "novo lead"), "case-insensitive")
	assert.Equal(t, 1, MatchName(names, "Negociação"), "substring")
	assert.Equal(t, 1, MatchName(names, "em negociacao"), "accent-stripped")
	assert.Equal(t, -1, MatchName(names, "Perdido"))
	assert.Equal(t, -1, MatchName(names, "  "))
}

func TestMatchNameHyphenatedColumns(t *testing.T) {
	names := []string{"novo-lead", "em-negociacao", "fechado"}

	assert.Equal(t, 1, MatchName(names, "Em Negociação"), "space-to-hyphen")
	assert.Equal(t, 0, MatchName(names, "Novo Lead"))
	assert.Equal(t, 1, MatchName(names, "Em Negociacao"))
}

func TestMatchNamePrefersExactOverSubstring(t *testing.T) {
	names := []string{"Vendas Internas", "Vendas"}
	assert.Equal(t, 1, MatchName(names, "Vendas"))
}

func TestFindColumn(t *testing.T) {
	fake := dbtest.New()
	company := pgtype.UUID{Valid: true}
	colA, _ := db.ParseUUID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	colB, _ := db.ParseUUID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	fake.OnRows("FROM kanban_columns",
		[]any{colA, company, "Novo Lead", int32(0)},
		[]any{colB, company, "Em Negociação", int32(1)},
	)

	svc := NewService(db.New(fake), nil)

	col, err := svc.FindColumn(context.Background(), company, "em negociacao")
	require.NoError(t, err)
	assert.Equal(t, "Em Negociação", col.Name)

	_, err = svc.FindColumn(context.Background(), company, "Perdido")
	require.Error(t, err)
}

func TestAdminsFiltersByRole(t *testing.T) {
	fake := dbtest.New()
	company := pgtype.UUID{Valid: true}
	idA, _ := db.ParseUUID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	idB, _ := db.ParseUUID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	fake.OnRows("FROM users",
		[]any{idA, company, "Ana", "admin", true},
		[]any{idB, company, "Bruno", "agent", true},
	)

	svc := NewService(db.New(fake), nil)
	admins, err := svc.Admins(context.Background(), company)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "Ana", admins[0].Name)
}
