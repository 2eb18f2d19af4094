package transcript

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/persona-chat/backend/internal/model/chat"
	"github.com/zhouzirui/persona-chat/backend/internal/model/persona"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit", "turns.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordExchangeKeepsOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	p := persona.Persona{DisplayName: "Eleanor", Cluster: "Security_Seeker"}

	require.NoError(t, store.RecordExchange(ctx, "s1", p, []chat.Turn{
		chat.UserTurn("Hello"),
		chat.AssistantTurn("Well, hello there."),
	}))
	require.NoError(t, store.RecordExchange(ctx, "s1", p, []chat.Turn{
		chat.UserTurn("Olá, tudo bem?\nsegunda linha"),
		chat.AssistantTurn("Tudo ótimo."),
	}))
	require.NoError(t, store.RecordExchange(ctx, "s2", p, []chat.Turn{chat.UserTurn("Other")}))

	entries, err := store.Session(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	wantRoles := []string{chat.RoleUser, chat.RoleAssistant, chat.RoleUser, chat.RoleAssistant}
	for i, e := range entries {
		assert.Equal(t, wantRoles[i], e.Role)
		assert.Equal(t, "Eleanor", e.Persona)
		assert.Equal(t, "Security_Seeker", e.Cluster)
		assert.False(t, e.CreatedAt.IsZero())
	}
	assert.Equal(t, "Olá, tudo bem?\nsegunda linha", entries[2].Content)
}

func TestSessionUnknownIsEmpty(t *testing.T) {
	store := testStore(t)

	entries, err := store.Session(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turns.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	assert.NoError(t, second.Close())
}
