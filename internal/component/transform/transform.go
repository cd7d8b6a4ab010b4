// Package transform реализует компонент положения, поворота и масштаба сущности.
package transform

import (
	"fmt"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/logging"
	"github.com/annel0/rpgng/internal/vec"
)

// Signal задаёт тип изменения трансформа, на который можно подписаться.
type Signal uint8

const (
	SignalTranslate Signal = iota
	SignalRotate
	SignalScale
)

func (s Signal) String() string {
	switch s {
	case SignalTranslate:
		return "translate"
	case SignalRotate:
		return "rotate"
	case SignalScale:
		return "scale"
	default:
		return fmt.Sprintf("signal(%d)", uint8(s))
	}
}

// Change описывает изменение, переданное подписчику. Заполнены только
// поля, относящиеся к Signal.
type Change struct {
	Signal      Signal
	OldPosition vec.Vec2
	Position    vec.Vec2
	OldRotation float64
	Rotation    float64
	OldScale    float64
	Scale       float64
}

// Delta возвращает смещение для SignalTranslate.
func (c Change) Delta() vec.Vec2 { return c.Position.Sub(c.OldPosition) }

// Callback вызывается синхронно после изменения.
type Callback func(Change)

// Handle идентифицирует подписку для Unregister.
type Handle uint32

type subscription struct {
	handle Handle
	signal Signal
	cb     Callback
}

// Transform хранит payload компонента.
type Transform struct {
	position vec.Vec2
	rotation float64
	scale    float64

	subs       []subscription
	nextHandle Handle
}

func newTransform() *Transform {
	return &Transform{scale: 1, nextHandle: 1}
}

// Tag реализует entity.Payload.
func (t *Transform) Tag() entity.Tag { return entity.TagTransform }

// Register подписывает cb на изменения типа signal.
func (t *Transform) Register(signal Signal, cb Callback) (Handle, error) {
	if cb == nil {
		return 0, fmt.Errorf("%w: nil callback", entity.ErrInvalidArgument)
	}
	if signal > SignalScale {
		return 0, fmt.Errorf("%w: unknown %s", entity.ErrInvalidArgument, signal)
	}
	h := t.nextHandle
	t.nextHandle++
	t.subs = append(t.subs, subscription{handle: h, signal: signal, cb: cb})
	return h, nil
}

// Unregister снимает подписку. false, если подписка не найдена.
func (t *Transform) Unregister(h Handle) bool {
	for i, s := range t.subs {
		if s.handle == h {
			// Новый срез: emit может идти по старому прямо сейчас.
			subs := make([]subscription, 0, len(t.subs)-1)
			subs = append(subs, t.subs[:i]...)
			t.subs = append(subs, t.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (t *Transform) emit(c Change) {
	for _, s := range t.subs {
		if s.signal == c.Signal {
			s.cb(c)
		}
	}
}

func (t *Transform) setPosition(p vec.Vec2) {
	old := t.position
	t.position = p
	t.emit(Change{Signal: SignalTranslate, OldPosition: old, Position: p})
}

func (t *Transform) setRotation(r float64) {
	old := t.rotation
	t.rotation = r
	t.emit(Change{Signal: SignalRotate, OldRotation: old, Rotation: r})
}

func (t *Transform) setScale(s float64) {
	old := t.scale
	t.scale = s
	t.emit(Change{Signal: SignalScale, OldScale: old, Scale: s})
}

// Translate сдвигает сущность на (dx, dy).
func (t *Transform) Translate(dx, dy int) { t.setPosition(t.position.Add(vec.Vec2{X: dx, Y: dy})) }

// SetPosition ставит сущность в (x, y).
func (t *Transform) SetPosition(x, y int) { t.setPosition(vec.Vec2{X: x, Y: y}) }

// ResetPosition возвращает сущность в (0, 0).
func (t *Transform) ResetPosition() { t.setPosition(vec.Vec2{}) }

// Rotate поворачивает на deg градусов.
func (t *Transform) Rotate(deg float64) { t.setRotation(t.rotation + deg) }

// SetRotation задаёт поворот в градусах.
func (t *Transform) SetRotation(deg float64) { t.setRotation(deg) }

// ResetRotation сбрасывает поворот в 0.
func (t *Transform) ResetRotation() { t.setRotation(0) }

// ScaleBy умножает масштаб на factor.
func (t *Transform) ScaleBy(factor float64) { t.setScale(t.scale * factor) }

// SetScale задаёт масштаб.
func (t *Transform) SetScale(s float64) { t.setScale(s) }

// ResetScale возвращает масштаб 1.
func (t *Transform) ResetScale() { t.setScale(1) }

func (t *Transform) Position() vec.Vec2 { return t.position }
func (t *Transform) Rotation() float64  { return t.rotation }
func (t *Transform) Scale() float64     { return t.scale }

// DistanceTo возвращает расстояние между позициями двух трансформов.
func (t *Transform) DistanceTo(o *Transform) float64 { return t.position.DistanceTo(o.position) }

// Kind создаёт и уничтожает трансформы сущностей одного реестра.
type Kind struct {
	reg *entity.Registry
	log *logging.Logger
}

// NewKind создаёт вид компонента для реестра reg.
func NewKind(reg *entity.Registry) *Kind {
	return &Kind{reg: reg, log: logging.GetComponentLogger("component(transform)")}
}

// Tag реализует entity.Kind.
func (k *Kind) Tag() entity.Tag { return entity.TagTransform }

// Create привязывает к сущности трансформ в начале координат.
func (k *Kind) Create(id entity.ID) (*Transform, error) {
	k.log.Debug("attempting to create new transform for entity[%d]", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to create transform, failed to get entity[%d]", id)
		return nil, fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	if e.HasComponent(entity.TagTransform) {
		k.log.Warn("unable to create transform, entity[%d]('%s') already has transform", e.ID, e.Name)
		return nil, fmt.Errorf("%w: entity[%d] transform", entity.ErrComponentExists, e.ID)
	}

	t := newTransform()
	if err := e.Attach(t); err != nil {
		k.log.Warn("failed to map transform in component table for entity[%d]('%s'): %v", e.ID, e.Name, err)
		return nil, err
	}
	return t, nil
}

// Get возвращает трансформ сущности.
func (k *Kind) Get(id entity.ID) (*Transform, bool) {
	return entity.ComponentAs[*Transform](k.reg, id, entity.TagTransform)
}

// Destroy снимает трансформ с сущности и отписывает все колбэки.
func (k *Kind) Destroy(id entity.ID) error {
	k.log.Debug("attempting to destroy transform for entity[%d]", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to destroy transform, failed to get entity[%d]", id)
		return fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	p, err := e.Detach(entity.TagTransform)
	if err != nil {
		k.log.Warn("failed to detach transform of entity[%d]('%s'): %v", e.ID, e.Name, err)
		return err
	}
	if t, ok := p.(*Transform); ok {
		t.subs = nil
	}
	return nil
}
