package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/db/dbtest"
)

var frozen = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newStore(fake *dbtest.DB) *Store {
	store := NewStore(db.New(fake), nil)
	store.now = func() time.Time { return frozen }
	return store
}

func stateRow(convID pgtype.UUID, status string) []any {
	return []any{
		pgtype.UUID{Valid: true}, convID, pgtype.UUID{Valid: true}, pgtype.UUID{},
		status, pgtype.Timestamptz{}, pgtype.Timestamptz{}, pgtype.Timestamptz{},
		int32(0), []byte("{}"), pgtype.Timestamptz{}, pgtype.Timestamptz{},
	}
}

func TestEnsureCreatesDormantState(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("INSERT INTO conversation_states", stateRow(conv, StatusDormant))

	state, err := newStore(fake).Ensure(context.Background(), conv, pgtype.UUID{Valid: true})
	require.NoError(t, err)
	assert.Equal(t, StatusDormant, state.Status)

	inserts := fake.CallsMatching("INSERT INTO conversation_states")
	require.Len(t, inserts, 1)
	assert.Equal(t, StatusDormant, inserts[0].Args[2])
}

func TestEnsureReturnsExistingState(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("FROM conversation_states", stateRow(conv, StatusActive))

	state, err := newStore(fake).Ensure(context.Background(), conv, pgtype.UUID{Valid: true})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, state.Status)
	assert.Empty(t, fake.CallsMatching("INSERT INTO conversation_states"))
}

func TestGateDeactivatedIsFinal(t *testing.T) {
	fake := dbtest.New()
	state := db.ConversationState{Status: StatusDeactivated}
	_, err := newStore(fake).Gate(context.Background(), state, nil, "oi")
	assert.ErrorIs(t, err, ErrDeactivated)
	assert.Empty(t, fake.Calls())
}

func TestGatePausedStillSleeping(t *testing.T) {
	fake := dbtest.New()
	state := db.ConversationState{
		Status:      StatusPaused,
		PausedUntil: db.ToTimestamptz(frozen.Add(time.Hour)),
	}
	_, err := newStore(fake).Gate(context.Background(), state, nil, "oi")
	assert.ErrorIs(t, err, ErrPaused)
	assert.Empty(t, fake.CallsMatching("UPDATE conversation_states"))
}

func TestGatePauseExpiryResumesAndPersists(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("UPDATE conversation_states", stateRow(conv, StatusActive))
	state := db.ConversationState{
		ConversationID: conv,
		Status:         StatusPaused,
		PausedUntil:    db.ToTimestamptz(frozen.Add(-time.Minute)),
	}

	updated, err := newStore(fake).Gate(context.Background(), state, nil, "oi")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)

	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 1)
	assert.Equal(t, StatusActive, saves[0].Args[1])
	assert.Equal(t, pgtype.Timestamptz{}, saves[0].Args[3], "pause marker cleared")
}

func TestGateDormantNoTriggersActivatesImmediately(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("UPDATE conversation_states", stateRow(conv, StatusActive))
	state := db.ConversationState{ConversationID: conv, Status: StatusDormant}

	updated, err := newStore(fake).Gate(context.Background(), state, nil, "qualquer coisa")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)
}

func TestGateDormantWaitsForTrigger(t *testing.T) {
	fake := dbtest.New()
	state := db.ConversationState{Status: StatusDormant}
	phrases := []string{"quero um orçamento"}

	_, err := newStore(fake).Gate(context.Background(), state, phrases, "bom dia")
	assert.ErrorIs(t, err, ErrWaitingForTrigger)
	assert.Empty(t, fake.CallsMatching("UPDATE conversation_states"))
}

func TestGateDormantTriggerMatchIgnoresAccents(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("UPDATE conversation_states", stateRow(conv, StatusActive))
	state := db.ConversationState{ConversationID: conv, Status: StatusDormant}

	_, err := newStore(fake).Gate(context.Background(), state,
		[]string{"quero um orçamento"}, "Oi! QUERO UM ORCAMENTO por favor")
	require.NoError(t, err)

	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 1)
	assert.Equal(t, StatusActive, saves[0].Args[1])
}

func TestGateActivePassesThrough(t *testing.T) {
	fake := dbtest.New()
	state := db.ConversationState{Status: StatusActive, MessagesProcessed: 4}
	out, err := newStore(fake).Gate(context.Background(), state, []string{"gatilho"}, "sem gatilho")
	require.NoError(t, err)
	assert.Equal(t, state, out)
	assert.Empty(t, fake.Calls())
}

func TestTouchIncrementsCounter(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("UPDATE conversation_states", stateRow(conv, StatusActive))
	state := db.ConversationState{ConversationID: conv, Status: StatusActive, MessagesProcessed: 4}

	_, err := newStore(fake).Touch(context.Background(), state)
	require.NoError(t, err)

	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 1)
	assert.Equal(t, int32(5), saves[0].Args[6])
	assert.Equal(t, db.ToTimestamptz(frozen), saves[0].Args[5])
}

func TestPauseAndDeactivate(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("UPDATE conversation_states",
		stateRow(conv, StatusPaused), stateRow(conv, StatusDeactivated))
	store := newStore(fake)
	state := db.ConversationState{ConversationID: conv, Status: StatusActive}

	_, err := store.Pause(context.Background(), state, 2*time.Hour)
	require.NoError(t, err)
	_, err = store.Deactivate(context.Background(), state)
	require.NoError(t, err)

	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 2)
	assert.Equal(t, StatusPaused, saves[0].Args[1])
	assert.Equal(t, db.ToTimestamptz(frozen.Add(2*time.Hour)), saves[0].Args[3])
	assert.Equal(t, StatusDeactivated, saves[1].Args[1])
}

func TestMemoryRoundTrip(t *testing.T) {
	fake := dbtest.New()
	conv, _ := db.ParseUUID("cccccccc-cccc-cccc-cccc-cccccccccccc")
	fake.OnRows("UPDATE conversation_states", stateRow(conv, StatusActive))
	state := db.ConversationState{ConversationID: conv, Status: StatusActive, Metadata: []byte(`{"interesse":{"principal":"plano anual"}}`)}

	memory := Memory(state)
	assert.Equal(t, "plano anual", memory.Interesse.Principal)

	memory.Interesse.Secundarios = append(memory.Interesse.Secundarios, "upgrade")
	_, err := newStore(fake).SaveMemory(context.Background(), state, memory)
	require.NoError(t, err)

	saves := fake.CallsMatching("UPDATE conversation_states")
	require.Len(t, saves, 1)
	assert.Contains(t, string(saves[0].Args[7].([]byte)), "upgrade")
}

func TestMatchesTrigger(t *testing.T) {
	phrases := []string{"falar com vendas", "orçamento"}
	assert.True(t, matchesTrigger(phrases, "Quero FALAR COM VENDAS agora"))
	assert.True(t, matchesTrigger(phrases, "preciso de um orcamento"))
	assert.False(t, matchesTrigger(phrases, "bom dia"))
	assert.False(t, matchesTrigger(phrases, ""))
}
