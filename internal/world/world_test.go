package world

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/annel0/rpgng/internal/config"
	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/eventbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLoader(path string) (image.Image, error) {
	if filepath.Base(path) == "broken.png" {
		return nil, errors.New("corrupt image")
	}
	return image.NewGray(image.Rect(0, 0, 32, 32)), nil
}

func newWorld(t *testing.T) (*World, *[]string) {
	t.Helper()
	bus := eventbus.NewSyncBus()
	var events []string
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		var e Event
		require.NoError(t, ev.Decode(&e))
		label := ev.EventType + ":" + e.EntityName
		if e.Component != "" {
			label += ":" + e.Component
		}
		events = append(events, label)
	})
	require.NoError(t, err)

	w, err := New(config.Default(), WithEventBus(bus), WithSpriteLoader(fakeLoader))
	require.NoError(t, err)
	return w, &events
}

func TestWorld_LifecycleEvents(t *testing.T) {
	w, events := newWorld(t)

	var id entity.ID
	require.NoError(t, w.Do(func(reg *entity.Registry) error {
		var err error
		id, err = reg.Create("kitty")
		if err != nil {
			return err
		}
		if _, err = w.Transforms.Create(id); err != nil {
			return err
		}
		return reg.Destroy(id)
	}))

	assert.Equal(t, []string{
		"EntityCreated:kitty",
		"ComponentAttached:kitty:transform",
		"ComponentDetached:kitty:transform",
		"EntityDestroyed:kitty",
	}, *events)
	assert.Equal(t, uint64(4), w.Stats().Events.Published)
}

func TestWorld_DefaultsWithoutConfig(t *testing.T) {
	w, err := New(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, w.ID)
	assert.NotNil(t, w.Bus())

	require.NoError(t, w.View(func(reg *entity.Registry) error {
		assert.Equal(t, entity.ID(1), reg.NextID())
		for _, tag := range entity.Tags() {
			_, ok := reg.Components().Kind(tag)
			assert.True(t, ok, "вид %s зарегистрирован", tag)
		}
		return nil
	}))
}

func TestWorld_ConfigApplied(t *testing.T) {
	cfg := config.Default()
	cfg.Registry.FirstEntityID = 500
	cfg.Registry.Hash = "xxhash"
	cfg.Registry.NameMaxLen = 4

	w, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, w.Do(func(reg *entity.Registry) error {
		id, err := reg.Create("longname")
		require.NoError(t, err)
		assert.Equal(t, entity.ID(500), id)
		e, ok := reg.GetByName("long")
		require.True(t, ok)
		assert.Equal(t, id, e.ID)
		return nil
	}))
}

const sceneYAML = `
items:
  - name: sword
    description: sharp
    value: 10
  - name: potion
    value: 2
entities:
  - name: hero
    transform: {x: 3, y: 4, rotation: 90, scale: 2}
    sprite: {path: hero.png, opacity: 0.5, flip_h: true, clip: [0, 0, 16, 16]}
    inventory: [sword, potion]
    dialogue: hero.yaml
  - name: rock
`

const heroDialogue = `
nodes:
  - id: hi
    speaker: Hero
    text: Hello.
`

func writeScene(t *testing.T, scene string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.yaml"), []byte(heroDialogue), 0644))
	path := filepath.Join(dir, "scene.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scene), 0644))
	return path
}

func TestWorld_LoadScene(t *testing.T) {
	w, _ := newWorld(t)

	ids, err := w.LoadScene(writeScene(t, sceneYAML))
	require.NoError(t, err)
	require.Len(t, ids, 2)

	hero := ids[0]
	tr, ok := w.Transforms.Get(hero)
	require.True(t, ok)
	assert.Equal(t, 3, tr.Position().X)
	assert.Equal(t, 90.0, tr.Rotation())
	assert.Equal(t, 2.0, tr.Scale())

	sp, ok := w.Sprites.Get(hero)
	require.True(t, ok)
	assert.Equal(t, 0.5, sp.Opacity())
	assert.True(t, sp.FlipH)
	assert.Equal(t, image.Rect(0, 0, 16, 16), sp.Clip)

	inv, ok := w.Inventories.Get(hero)
	require.True(t, ok)
	assert.Equal(t, 2, inv.Len())

	dlg, ok := w.Dialogues.Get(hero)
	require.True(t, ok)
	assert.Equal(t, "Hello.", dlg.Node().Text)

	require.NoError(t, w.View(func(reg *entity.Registry) error {
		rock, ok := reg.GetByName("rock")
		require.True(t, ok)
		assert.Empty(t, rock.Tags())
		return nil
	}))

	st := w.Stats()
	assert.Equal(t, 2, st.Registry.Entities)
	assert.Equal(t, 1, st.SpritesLive)
	assert.Equal(t, 1, st.DialoguesCached)
	assert.Equal(t, 2, st.Items)
	assert.Equal(t, 1, st.Registry.Components[entity.TagInventory])

	require.NoError(t, w.Close())
	st = w.Stats()
	assert.Equal(t, 0, st.Registry.Entities)
	assert.Equal(t, 0, st.SpritesLive)
	assert.Equal(t, 0, st.DialoguesCached)
}

func TestWorld_LoadSceneRollsBack(t *testing.T) {
	w, _ := newWorld(t)

	scene := `
entities:
  - name: first
    sprite: {path: ok.png}
  - name: second
    transform: {x: 1}
    sprite: {path: broken.png}
`
	_, err := w.LoadScene(writeScene(t, scene))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `entity "second"`)

	st := w.Stats()
	assert.Equal(t, 0, st.Registry.Entities, "созданные сценой сущности уничтожены")
	assert.Equal(t, 0, st.SpritesLive)

	_, err = w.LoadScene(writeScene(t, "entities:\n  - name: x\n    inventory: [ghost]\n"))
	assert.Error(t, err)

	_, err = w.LoadScene(writeScene(t, "entities:\n  - name: dup\n  - name: dup\n"))
	assert.ErrorIs(t, err, entity.ErrNameTaken)
	assert.Equal(t, 0, w.Stats().Registry.Entities)

	_, err = w.LoadScene(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = w.LoadScene(writeScene(t, "entities: {"))
	assert.Error(t, err)
}

func TestEntityConfig(t *testing.T) {
	rc := config.Default().Registry
	rc.MaxBuckets = 64
	ec := EntityConfig(rc)
	assert.Equal(t, entity.ID(1), ec.FirstID)
	assert.Equal(t, 64, ec.MaxBuckets)
	assert.NotNil(t, ec.Hash)
}
