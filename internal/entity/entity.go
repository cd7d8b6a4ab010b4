package entity

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/rpgng/internal/htable"
)

// ID представляет дескриптор сущности. Выдаётся монотонно и не переиспользуется.
type ID uint32

func (id ID) key() []byte {
	k := make([]byte, 4)
	binary.LittleEndian.PutUint32(k, uint32(id))
	return k
}

// Payload описывает данные компонента. Память payload принадлежит виду
// компонента, сущность владеет только привязкой.
type Payload interface {
	Tag() Tag
}

// Entity представляет игровой объект. Указатель, полученный из реестра,
// действителен до уничтожения сущности.
type Entity struct {
	ID   ID
	Name string

	components *htable.Table[Payload]
	registry   *Registry
}

// Alive сообщает, не уничтожена ли сущность.
func (e *Entity) Alive() bool { return e != nil && e.components != nil }

// Attach привязывает компонент. Повторная привязка того же вида
// отклоняется с ErrComponentExists.
func (e *Entity) Attach(p Payload) error {
	if p == nil {
		return fmt.Errorf("%w: nil component", ErrInvalidArgument)
	}
	if !e.Alive() {
		return fmt.Errorf("%w: entity destroyed", ErrNotFound)
	}
	tag := p.Tag()
	if !tag.Valid() {
		return fmt.Errorf("%w: component tag %s", ErrInvalidArgument, tag)
	}
	if e.components.Has(tag.key()) {
		return fmt.Errorf("%w: entity[%d]('%s') already has %s", ErrComponentExists, e.ID, e.Name, tag)
	}

	if err := e.components.Add(tag.key(), p); err != nil {
		if errors.Is(err, htable.ErrOutOfMemory) {
			return fmt.Errorf("%w: map %s for entity[%d]: %w", ErrOutOfMemory, tag, e.ID, err)
		}
		return fmt.Errorf("map %s for entity[%d]: %w", tag, e.ID, err)
	}

	if e.registry != nil && e.registry.observer != nil {
		e.registry.observer.ComponentAttached(e, tag)
	}
	return nil
}

// Detach снимает компонент и возвращает его payload. Освобождение ресурсов
// payload остаётся за видом компонента.
func (e *Entity) Detach(tag Tag) (Payload, error) {
	if !e.Alive() {
		return nil, fmt.Errorf("%w: entity destroyed", ErrNotFound)
	}
	if !tag.Valid() {
		return nil, fmt.Errorf("%w: component tag %s", ErrInvalidArgument, tag)
	}

	p, res := e.components.Lookup(tag.key())
	switch res {
	case htable.NotFound:
		return nil, fmt.Errorf("%w: entity[%d]('%s') has no %s", ErrComponentMissing, e.ID, e.Name, tag)
	case htable.InvalidCall:
		return nil, fmt.Errorf("%w: lookup of %s", ErrInvalidArgument, tag)
	}

	if err := e.components.Remove(tag.key()); err != nil {
		if e.registry != nil {
			e.registry.log.Critical("failed to remove %s of entity[%d]('%s'), but it was present in the component table: %v", tag, e.ID, e.Name, err)
		}
		return nil, fmt.Errorf("%w: remove %s of entity[%d]: %w", ErrInternalConsistency, tag, e.ID, err)
	}

	if e.registry != nil && e.registry.observer != nil {
		e.registry.observer.ComponentDetached(e, tag)
	}
	return p, nil
}

// Component возвращает payload компонента вида tag.
func (e *Entity) Component(tag Tag) (Payload, bool) {
	if !e.Alive() || !tag.Valid() {
		return nil, false
	}
	return e.components.Get(tag.key())
}

// HasComponent сообщает, привязан ли компонент вида tag.
func (e *Entity) HasComponent(tag Tag) bool {
	_, ok := e.Component(tag)
	return ok
}

// Tags возвращает отсортированные теги привязанных компонентов.
func (e *Entity) Tags() []Tag {
	if !e.Alive() {
		return nil
	}
	keys := e.components.Keys()
	tags := make([]Tag, 0, len(keys))
	for _, k := range keys {
		if t, ok := tagFromKey(k); ok {
			tags = append(tags, t)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
