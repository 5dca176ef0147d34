package commands

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowai/zapflow/internal/agents"
	"github.com/zapflowai/zapflow/internal/contacts"
	"github.com/zapflowai/zapflow/internal/conversation"
	"github.com/zapflowai/zapflow/internal/crm"
	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/db/dbtest"
	"github.com/zapflowai/zapflow/internal/notify"
)

const (
	companyStr = "11111111-1111-1111-1111-111111111111"
	contactStr = "22222222-2222-2222-2222-222222222222"
	convStr    = "33333333-3333-3333-3333-333333333333"
	rootStr    = "44444444-4444-4444-4444-444444444444"
	otherStr   = "55555555-5555-5555-5555-555555555555"
)

func uuidOf(t *testing.T, s string) pgtype.UUID {
	t.Helper()
	id, err := db.ParseUUID(s)
	require.NoError(t, err)
	return id
}

func newExecutor(fake *dbtest.DB) *Executor {
	queries := db.New(fake)
	crmSvc := crm.NewService(queries, nil)
	return NewExecutor(
		agents.NewService(queries, nil),
		crmSvc,
		contacts.NewService(queries, nil),
		conversation.NewStore(queries, nil),
		notify.NewService(queries, crmSvc, nil),
		nil,
	)
}

func testTurn(t *testing.T) Turn {
	return Turn{
		Conversation: db.Conversation{
			ID:           uuidOf(t, convStr),
			CompanyID:    uuidOf(t, companyStr),
			ConnectionID: pgtype.UUID{Valid: true},
			ContactID:    uuidOf(t, contactStr),
		},
		State:       db.ConversationState{ConversationID: uuidOf(t, convStr), Status: conversation.StatusActive},
		RootAgentID: rootStr,
	}
}

func stateRow(convID pgtype.UUID, status string, subAgent pgtype.UUID) []any {
	return []any{
		pgtype.UUID{Valid: true}, convID, pgtype.UUID{Valid: true}, subAgent,
		status, pgtype.Timestamptz{}, pgtype.Timestamptz{}, pgtype.Timestamptz{},
		int32(0), []byte("{}"), pgtype.Timestamptz{}, pgtype.Timestamptz{},
	}
}

func TestAddTagCaseInsensitive(t *testing.T) {
	fake := dbtest.New()
	tagID := pgtype.UUID{Valid: true}
	fake.OnRows("FROM tags", []any{tagID, pgtype.UUID{Valid: true}, "Interessado"})

	out := newExecutor(fake).Execute(context.Background(), testTurn(t),
		[]Request{{Name: CmdAddTag, Value: "interessado", Source: SourceTool}})

	assert.Empty(t, out.Errors)
	assert.Equal(t, []string{"adicionar_etiqueta:interessado"}, out.Executed)
	assert.Len(t, fake.CallsMatching("INSERT INTO contact_tags"), 1)
}

func TestAddTagUnknownIsSilentNoOp(t *testing.T) {
	fake := dbtest.New()
	fake.OnRows("FROM tags") // no tags exist

	out := newExecutor(fake).Execute(context.Background(), testTurn(t),
		[]Request{{Name: CmdAddTag, Value: "foo", Source: SourceText}})

	assert.Empty(t, out.Errors, "unknown tag is not an error")
	assert.Empty(t, fake.CallsMatching("INSERT INTO contact_tags"))
}

func TestTransferAgentSetsSubAgentAndFlagsHandOff(t *testing.T) {
	fake := dbtest.New()
	turn := testTurn(t)
	other := uuidOf(t, otherStr)
	fake.OnRows("FROM agents WHERE company_id", agentRow(other, uuidOf(t, companyStr), "Especialista Vendas"))
	fake.OnRows("UPDATE conversation_states", stateRow(turn.State.ConversationID, conversation.StatusActive, other))

	out := newExecutor(fake).Execute(context.Background(), turn,
		[]Request{{Name: CmdTransferAgent, Value: "vendas", Source: SourceTool}})

	require.Empty(t, out.Errors)
	assert.True(t, out.HandOff)
	assert.Equal(t, "Especialista Vendas", out.NewAgent.Name)
	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 1)
	assert.Equal(t, other, saves[0].Args[2])
}

func TestTransferAgentUnknownTargetIsNoOp(t *testing.T) {
	fake := dbtest.New()
	fake.OnRows("FROM agents WHERE company_id") // nobody to transfer to

	out := newExecutor(fake).Execute(context.Background(), testTurn(t),
		[]Request{{Name: CmdTransferAgent, Value: "financeiro", Source: SourceTool}})

	assert.Empty(t, out.Errors)
	assert.False(t, out.HandOff)
	assert.Empty(t, fake.CallsMatching("UPDATE conversation_states"))
}

func TestTransferUserAssignsAndDeactivates(t *testing.T) {
	fake := dbtest.New()
	turn := testTurn(t)
	mateID := pgtype.UUID{Valid: true}
	fake.OnRows("FROM users", []any{mateID, uuidOf(t, companyStr), "Paula Souza", "agent", true})
	fake.OnRows("UPDATE conversation_states",
		stateRow(turn.State.ConversationID, conversation.StatusDeactivated, pgtype.UUID{}))

	out := newExecutor(fake).Execute(context.Background(), turn,
		[]Request{{Name: CmdTransferUser, Value: "paula", Source: SourceTool}})

	require.Empty(t, out.Errors)
	assert.True(t, out.Deactivated)
	assert.Len(t, fake.CallsMatching("assigned_user_id"), 1)
	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 1)
	assert.Equal(t, conversation.StatusDeactivated, saves[0].Args[1])
}

func TestDeactivateIsTerminal(t *testing.T) {
	fake := dbtest.New()
	turn := testTurn(t)
	fake.OnRows("UPDATE conversation_states",
		stateRow(turn.State.ConversationID, conversation.StatusDeactivated, pgtype.UUID{}))

	out := newExecutor(fake).Execute(context.Background(), turn,
		[]Request{{Name: CmdDeactivate, Value: "", Source: SourceText}})

	require.Empty(t, out.Errors)
	assert.True(t, out.Deactivated)
	assert.Equal(t, conversation.StatusDeactivated, out.State.Status)
}

func TestOneFailureNeverBlocksTheRest(t *testing.T) {
	fake := dbtest.New()
	turn := testTurn(t)
	// origin update succeeds, department lookup has nothing to match
	fake.OnRows("FROM departments")

	out := newExecutor(fake).Execute(context.Background(), turn, []Request{
		{Name: CmdAssignDepartment, Value: "Suporte", Source: SourceTool},
		{Name: CmdSetOrigin, Value: "Instagram", Source: SourceTool},
	})

	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0].Error(), "atribuir_departamento")
	assert.Equal(t, []string{"atribuir_origem:Instagram"}, out.Executed)
	assert.Len(t, fake.CallsMatching("UPDATE contacts"), 1)
}

func agentRow(id, companyID pgtype.UUID, name string) []any {
	return []any{
		id, companyID, name, true, "script", "regras", "faq", "empresa",
		pgtype.Text{}, pgtype.Text{String: "vendas", Valid: true},
		0.7, []byte(`[]`), pgtype.Text{}, false, 1.0, 0.4, "pt-BR",
	}
}
