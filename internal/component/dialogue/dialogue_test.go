package dialogue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopkeeper = `
start: greet
nodes:
  - id: greet
    speaker: Shopkeeper
    text: Welcome, traveller!
    choices:
      - text: Show me your wares
        next: wares
      - text: Goodbye
  - id: wares
    speaker: Shopkeeper
    text: Only the finest.
    choices:
      - text: Back
        next: greet
`

func writeTree(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dialogue.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func setup(t *testing.T) (*entity.Registry, *Kind) {
	t.Helper()
	reg, err := entity.NewRegistry(entity.DefaultConfig())
	require.NoError(t, err)
	kind, err := NewKind(reg, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Components().Register(kind))
	return reg, kind
}

func TestParse(t *testing.T) {
	tree, err := Parse(strings.NewReader(shopkeeper))
	require.NoError(t, err)
	assert.Equal(t, "greet", tree.Start)
	n, ok := tree.Node("wares")
	require.True(t, ok)
	assert.Equal(t, "Only the finest.", n.Text)
	_, ok = tree.Node("nope")
	assert.False(t, ok)
}

func TestParse_DefaultStart(t *testing.T) {
	tree, err := Parse(strings.NewReader("nodes:\n  - id: only\n    text: hi\n"))
	require.NoError(t, err)
	assert.Equal(t, "only", tree.Start)
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no nodes":       "start: a\n",
		"missing start":  "start: b\nnodes:\n  - id: a\n",
		"missing id":     "nodes:\n  - text: x\n",
		"duplicate id":   "nodes:\n  - id: a\n  - id: a\n",
		"dangling next":  "nodes:\n  - id: a\n    choices:\n      - text: go\n        next: z\n",
		"unknown field":  "nodes:\n  - id: a\n    mood: grumpy\n",
		"not a document": "[[[",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(body))
			assert.ErrorIs(t, err, ErrMalformedTree)
		})
	}
}

func TestDialogue_Choose(t *testing.T) {
	reg, kind := setup(t)
	id, err := reg.Create("shopkeeper")
	require.NoError(t, err)

	d, err := kind.Create(id, writeTree(t, shopkeeper))
	require.NoError(t, err)
	assert.Equal(t, "greet", d.Node().ID)

	n, err := d.Choose(0)
	require.NoError(t, err)
	assert.Equal(t, "wares", n.ID)

	_, err = d.Choose(5)
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)

	_, err = d.Choose(0)
	require.NoError(t, err)
	_, err = d.Choose(1)
	assert.ErrorIs(t, err, ErrEndOfDialogue)
	assert.Equal(t, "greet", d.Current)

	d.Current = "wares"
	d.Reset()
	assert.Equal(t, "greet", d.Current)
}

func TestKind_SharedCache(t *testing.T) {
	reg, kind := setup(t)
	path := writeTree(t, shopkeeper)

	a, _ := reg.Create("a")
	b, _ := reg.Create("b")
	da, err := kind.Create(a, path)
	require.NoError(t, err)
	db, err := kind.Create(b, path)
	require.NoError(t, err)
	assert.Same(t, da.Tree, db.Tree)
	assert.Equal(t, 1, kind.Cached())

	require.NoError(t, kind.Destroy(a))
	assert.Equal(t, 1, kind.Cached())
	require.NoError(t, reg.Destroy(b))
	assert.Equal(t, 0, kind.Cached())
	assert.Nil(t, db.Tree)
}

func TestDialogue_UseAfterDestroy(t *testing.T) {
	reg, kind := setup(t)
	id, _ := reg.Create("ghost")
	d, err := kind.Create(id, writeTree(t, shopkeeper))
	require.NoError(t, err)

	require.NoError(t, kind.Destroy(id))
	assert.Nil(t, d.Node())
	assert.NotPanics(t, func() {
		_, err = d.Choose(0)
	})
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	assert.NotPanics(t, d.Reset)
}

func TestKind_CreateFailures(t *testing.T) {
	reg, kind := setup(t)
	id, _ := reg.Create("mute")

	_, err := kind.Create(id, "")
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	_, err = kind.Create(id, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = kind.Create(id, writeTree(t, "start: x\n"))
	assert.ErrorIs(t, err, ErrMalformedTree)
	_, err = kind.Create(777, "any.yaml")
	assert.ErrorIs(t, err, entity.ErrNotFound)

	assert.False(t, reg.HasComponent(id, entity.TagDialogue))
	assert.Equal(t, 0, kind.Cached())

	path := writeTree(t, shopkeeper)
	_, err = kind.Create(id, path)
	require.NoError(t, err)
	_, err = kind.Create(id, path)
	assert.ErrorIs(t, err, entity.ErrComponentExists)
	assert.Equal(t, 1, kind.Cached())

	require.NoError(t, kind.Destroy(id))
	assert.ErrorIs(t, kind.Destroy(id), entity.ErrComponentMissing)
}
