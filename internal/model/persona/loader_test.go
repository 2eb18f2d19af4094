package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAssignsIndexAndDisplayName(t *testing.T) {
	path := writeDocument(t, `[
		{"name":"Eleanor","age":67,"department":"Finance","Cluster":"Security_Seeker","narrative_persona":"Retired accountant."},
		{"age":"34","Cluster":"Ambitious_Innovator"},
		{"name":"   ","Cluster":"Pragmatic_Guardian"}
	]`)

	items, err := Load(path)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, 0, items[0].Index)
	assert.Equal(t, "Eleanor", items[0].DisplayName)
	assert.Equal(t, Age("67"), items[0].Age)
	assert.Equal(t, "Security_Seeker", items[0].Cluster)
	assert.Equal(t, "Retired accountant.", items[0].NarrativePersona)

	assert.Equal(t, "Unnamed Persona 1", items[1].DisplayName)
	assert.Equal(t, Age("34"), items[1].Age)
	assert.Equal(t, "Unnamed Persona 2", items[2].DisplayName)
}

func TestLoadMissingDocument(t *testing.T) {
	items, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, ErrSourceNotFound)
	assert.Empty(t, items)
}

func TestLoadMalformedDocument(t *testing.T) {
	cases := map[string]string{
		"broken json": `[{"name":"Eleanor"`,
		"not a list":  `{"name":"Eleanor"}`,
		"null":        `null`,
		"scalars":     `[1, 2, 3]`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			items, err := Load(writeDocument(t, content))
			require.ErrorIs(t, err, ErrSourceMalformed)
			assert.Empty(t, items)
		})
	}
}

func TestLoadEmptyList(t *testing.T) {
	items, err := Load(writeDocument(t, `[]`))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLoadStoreKeepsError(t *testing.T) {
	store, err := LoadStore(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	require.NotNil(t, store)
	assert.Empty(t, store.List())
	assert.ErrorIs(t, store.LoadErr(), ErrSourceNotFound)
}

func TestMemoryStoreLookups(t *testing.T) {
	items, err := Parse([]byte(`[{"name":"Mary"},{"name":"John"},{"name":"Mary","department":"Ops"}]`))
	require.NoError(t, err)
	store := NewMemoryStore(items)

	got, ok := store.FindByName("Mary")
	require.True(t, ok)
	assert.Equal(t, 0, got.Index, "duplicate names resolve to the first match")

	got, ok = store.FindByIndex(2)
	require.True(t, ok)
	assert.Equal(t, "Ops", got.Department)

	_, ok = store.FindByIndex(3)
	assert.False(t, ok)
	_, ok = store.FindByIndex(-1)
	assert.False(t, ok)
	_, ok = store.FindByName("Alex")
	assert.False(t, ok)
}

func TestMemoryStoreListIsCopy(t *testing.T) {
	store := NewMemoryStore([]Persona{{Name: "Eleanor", DisplayName: "Eleanor"}})
	list := store.List()
	list[0].DisplayName = "changed"

	got, ok := store.FindByIndex(0)
	require.True(t, ok)
	assert.Equal(t, "Eleanor", got.DisplayName)
}
