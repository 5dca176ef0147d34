package contacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowai/zapflow/internal/db"
	"github.com/zapflowai/zapflow/internal/db/dbtest"
)

func TestSetOriginRejectsBlank(t *testing.T) {
	fake := dbtest.New()
	svc := NewService(db.New(fake), nil)
	id, _ := db.ParseUUID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")

	err := svc.SetOrigin(context.Background(), id, "   ")
	require.Error(t, err)
	assert.Empty(t, fake.CallsMatching("UPDATE contacts"))

	require.NoError(t, svc.SetOrigin(context.Background(), id, " Instagram "))
	calls := fake.CallsMatching("UPDATE contacts")
	require.Len(t, calls, 1)
}

func TestMutationsIssueExpectedStatements(t *testing.T) {
	fake := dbtest.New()
	svc := NewService(db.New(fake), nil)
	a, _ := db.ParseUUID("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa")
	b, _ := db.ParseUUID("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb")
	ctx := context.Background()

	require.NoError(t, svc.AttachTag(ctx, a, b))
	require.NoError(t, svc.MoveStage(ctx, a, b))
	require.NoError(t, svc.AssignUser(ctx, a, b))
	require.NoError(t, svc.AssignDepartment(ctx, a, b))

	assert.Len(t, fake.CallsMatching("contact_tags"), 1)
	assert.Len(t, fake.CallsMatching("kanban_cards"), 1)
	assert.Len(t, fake.CallsMatching("assigned_user_id"), 1)
	assert.Len(t, fake.CallsMatching("department_id"), 1)
}
