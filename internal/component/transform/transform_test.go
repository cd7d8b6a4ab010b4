package transform

import (
	"testing"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*entity.Registry, *Kind, entity.ID) {
	t.Helper()
	reg, err := entity.NewRegistry(entity.DefaultConfig())
	require.NoError(t, err)
	kind := NewKind(reg)
	require.NoError(t, reg.Components().Register(kind))
	id, err := reg.Create("player")
	require.NoError(t, err)
	return reg, kind, id
}

func TestKind_CreateDestroyCycle(t *testing.T) {
	reg, kind, id := setup(t)

	tr, err := kind.Create(id)
	require.NoError(t, err)
	assert.True(t, reg.HasComponent(id, entity.TagTransform))
	assert.Equal(t, vec.Vec2{}, tr.Position())
	assert.Equal(t, 1.0, tr.Scale())

	_, err = kind.Create(id)
	assert.ErrorIs(t, err, entity.ErrComponentExists)

	got, ok := kind.Get(id)
	require.True(t, ok)
	assert.Same(t, tr, got)

	require.NoError(t, kind.Destroy(id))
	assert.False(t, reg.HasComponent(id, entity.TagTransform))
	assert.ErrorIs(t, kind.Destroy(id), entity.ErrComponentMissing)

	_, err = kind.Create(404)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, kind.Destroy(404), entity.ErrNotFound)
}

func TestTransform_Operations(t *testing.T) {
	_, kind, id := setup(t)
	tr, err := kind.Create(id)
	require.NoError(t, err)

	tr.Translate(3, -2)
	tr.Translate(1, 1)
	assert.Equal(t, vec.Vec2{X: 4, Y: -1}, tr.Position())
	tr.SetPosition(10, 20)
	assert.Equal(t, vec.Vec2{X: 10, Y: 20}, tr.Position())
	tr.ResetPosition()
	assert.True(t, tr.Position().IsZero())

	tr.Rotate(90)
	tr.Rotate(45)
	assert.Equal(t, 135.0, tr.Rotation())
	tr.ResetRotation()
	assert.Equal(t, 0.0, tr.Rotation())

	tr.ScaleBy(2)
	tr.ScaleBy(1.5)
	assert.Equal(t, 3.0, tr.Scale())
	tr.ResetScale()
	assert.Equal(t, 1.0, tr.Scale())
}

func TestTransform_Callbacks(t *testing.T) {
	_, kind, id := setup(t)
	tr, err := kind.Create(id)
	require.NoError(t, err)

	var moves []Change
	h, err := tr.Register(SignalTranslate, func(c Change) { moves = append(moves, c) })
	require.NoError(t, err)

	rotations := 0
	_, err = tr.Register(SignalRotate, func(Change) { rotations++ })
	require.NoError(t, err)

	tr.SetPosition(5, 5)
	tr.Translate(1, 0)
	tr.SetRotation(30)

	require.Len(t, moves, 2)
	assert.Equal(t, vec.Vec2{X: 5, Y: 5}, moves[1].OldPosition)
	assert.Equal(t, vec.Vec2{X: 6, Y: 5}, moves[1].Position)
	assert.Equal(t, vec.Vec2{X: 1, Y: 0}, moves[1].Delta())
	assert.Equal(t, 1, rotations)

	assert.True(t, tr.Unregister(h))
	assert.False(t, tr.Unregister(h))
	tr.Translate(1, 1)
	assert.Len(t, moves, 2, "после отписки колбэк не вызывается")

	_, err = tr.Register(SignalScale, nil)
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
	_, err = tr.Register(Signal(7), func(Change) {})
	assert.ErrorIs(t, err, entity.ErrInvalidArgument)
}

func TestTransform_UnregisterInsideCallback(t *testing.T) {
	_, kind, id := setup(t)
	tr, err := kind.Create(id)
	require.NoError(t, err)

	var calls []string
	var self Handle
	self, err = tr.Register(SignalTranslate, func(Change) {
		calls = append(calls, "a")
		tr.Unregister(self)
	})
	require.NoError(t, err)
	for _, name := range []string{"b", "c"} {
		name := name
		_, err = tr.Register(SignalTranslate, func(Change) { calls = append(calls, name) })
		require.NoError(t, err)
	}

	tr.Translate(1, 0)
	assert.Equal(t, []string{"a", "b", "c"}, calls)

	tr.Translate(1, 0)
	assert.Equal(t, []string{"a", "b", "c", "b", "c"}, calls)
}

func TestTransform_DistanceTo(t *testing.T) {
	reg, kind, a := setup(t)
	b, err := reg.Create("target")
	require.NoError(t, err)

	ta, err := kind.Create(a)
	require.NoError(t, err)
	tb, err := kind.Create(b)
	require.NoError(t, err)

	tb.SetPosition(3, 4)
	assert.Equal(t, 5.0, ta.DistanceTo(tb))
	assert.Equal(t, 5.0, tb.DistanceTo(ta))
}

func TestKind_DestroyedWithEntity(t *testing.T) {
	reg, kind, id := setup(t)
	_, err := kind.Create(id)
	require.NoError(t, err)

	require.NoError(t, reg.Destroy(id))
	_, ok := kind.Get(id)
	assert.False(t, ok)
}
