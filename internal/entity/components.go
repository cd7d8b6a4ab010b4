package entity

import (
	"errors"
	"fmt"

	"github.com/annel0/rpgng/internal/logging"
)

// Kind описывает вид компонента. Каждый вид сам создаёт и привязывает свои
// payload'ы; реестру нужен только деструктор по тегу.
type Kind interface {
	Tag() Tag
	// Destroy освобождает payload вида у сущности и снимает привязку.
	Destroy(id ID) error
}

// Components хранит таблицу видов компонентов, собранная при старте, и
// диспетчер их уничтожения.
type Components struct {
	registry *Registry
	kinds    [tagCount]Kind
	log      *logging.Logger
}

func newComponents(r *Registry) *Components {
	return &Components{registry: r, log: logging.GetComponentLogger("component")}
}

// Register добавляет вид компонента в таблицу диспетчеризации.
func (c *Components) Register(k Kind) error {
	if k == nil {
		return fmt.Errorf("%w: nil kind", ErrInvalidArgument)
	}
	tag := k.Tag()
	if !tag.Valid() {
		return fmt.Errorf("%w: kind with tag %s", ErrInvalidArgument, tag)
	}
	if c.kinds[tag] != nil {
		c.log.Warn("unable to register %s kind, already registered", tag)
		return fmt.Errorf("%w: %s", ErrKindRegistered, tag)
	}
	c.kinds[tag] = k
	c.log.Debug("registered %s kind", tag)
	return nil
}

// Kind возвращает зарегистрированный вид по тегу.
func (c *Components) Kind(tag Tag) (Kind, bool) {
	if !tag.Valid() || c.kinds[tag] == nil {
		return nil, false
	}
	return c.kinds[tag], true
}

// Cleanup уничтожает все компоненты сущности. Ошибка деструктора одного
// компонента логируется и не мешает остальным. Возвращается ErrNotFound
// для неизвестной сущности и ErrInternalConsistency, если таблица
// компонентов повреждена; ошибки отдельных деструкторов собираются через
// errors.Join.
func (c *Components) Cleanup(id ID) error {
	e, ok := c.registry.Get(id)
	if !ok {
		c.log.Warn("unable to clean up components, failed to get entity[%d]", id)
		return fmt.Errorf("%w: entity %d", ErrNotFound, id)
	}

	var failed []error
	for _, key := range e.components.Keys() {
		tag, ok := tagFromKey(key)
		if !ok {
			c.log.Error("entity[%d]('%s') has a component with unknown tag %v, dropping its mapping", e.ID, e.Name, key)
			if err := e.components.Remove(key); err != nil {
				c.log.Critical("failed to drop unknown tag %v of entity[%d]('%s'): %v", key, e.ID, e.Name, err)
				return fmt.Errorf("%w: drop unknown tag of entity %d: %w", ErrInternalConsistency, e.ID, err)
			}
			continue
		}
		kind, ok := c.Kind(tag)
		if !ok {
			c.log.Error("no kind registered for %s of entity[%d]('%s'), dropping its mapping", tag, e.ID, e.Name)
			if _, err := e.Detach(tag); err != nil {
				return err
			}
			continue
		}

		c.log.Debug("destroying %s of entity[%d]('%s')", tag, e.ID, e.Name)
		if err := kind.Destroy(id); err != nil {
			if errors.Is(err, ErrInternalConsistency) {
				return err
			}
			c.log.Warn("failed to destroy %s of entity[%d]('%s'): %v", tag, e.ID, e.Name, err)
			failed = append(failed, fmt.Errorf("%s: %w", tag, err))
			continue
		}
		if e.components.Has(key) {
			c.log.Warn("%s kind reported success but left its mapping on entity[%d]('%s')", tag, e.ID, e.Name)
		}
	}
	return errors.Join(failed...)
}

// ComponentAs возвращает payload вида tag, приведённый к типу T.
func ComponentAs[T Payload](r *Registry, id ID, tag Tag) (T, bool) {
	var zero T
	p, ok := r.GetComponent(id, tag)
	if !ok {
		return zero, false
	}
	v, ok := p.(T)
	return v, ok
}
