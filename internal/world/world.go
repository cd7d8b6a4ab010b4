// Package world собирает реестр сущностей, виды компонентов и шину событий
// в один контекст. Все изменения проходят через World.Do, чтения через
// World.View: реестр сам по себе не потокобезопасен.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/annel0/rpgng/internal/component/dialogue"
	"github.com/annel0/rpgng/internal/component/inventory"
	"github.com/annel0/rpgng/internal/component/sprite"
	"github.com/annel0/rpgng/internal/component/transform"
	"github.com/annel0/rpgng/internal/config"
	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/eventbus"
	"github.com/annel0/rpgng/internal/logging"
)

// World представляет игровой мир: сущности и их компоненты.
type World struct {
	ID string

	mu       sync.RWMutex
	entities *entity.Registry

	Transforms  *transform.Kind
	Sprites     *sprite.Kind
	Inventories *inventory.Kind
	Dialogues   *dialogue.Kind

	bus eventbus.EventBus
	log *logging.Logger
}

type options struct {
	bus    eventbus.EventBus
	loader sprite.Loader
}

// Option настраивает World при создании.
type Option func(*options)

// WithEventBus задаёт шину событий жизненного цикла. По умолчанию
// создаётся синхронная in-process шина.
func WithEventBus(bus eventbus.EventBus) Option {
	return func(o *options) { o.bus = bus }
}

// WithSpriteLoader подменяет загрузку изображений спрайтов.
func WithSpriteLoader(l sprite.Loader) Option {
	return func(o *options) { o.loader = l }
}

// EntityConfig переводит секцию registry конфигурации в entity.Config.
func EntityConfig(c config.RegistryConfig) entity.Config {
	return entity.Config{
		FirstID:           entity.ID(c.FirstEntityID),
		InitialCapacity:   c.InitialCapacity,
		ComponentCapacity: c.ComponentCapacity,
		NameMaxLen:        c.NameMaxLen,
		Hash:              c.HashFunc(),
		MaxBuckets:        c.MaxBuckets,
	}
}

// New создаёт мир с зарегистрированными видами компонентов.
func New(cfg *config.Config, opts ...Option) (*World, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.bus == nil {
		o.bus = eventbus.NewSyncBus()
	}

	w := &World{
		ID:  uuid.NewString(),
		bus: o.bus,
		log: logging.GetComponentLogger("world"),
	}

	reg, err := entity.NewRegistry(EntityConfig(cfg.Registry))
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}
	w.entities = reg

	w.Transforms = transform.NewKind(reg)
	w.Sprites = sprite.NewKind(reg, o.loader)
	w.Inventories, err = inventory.NewKind(reg, inventory.Config{
		MaxItems:        cfg.Inventory.MaxItems,
		CatalogCapacity: cfg.Inventory.CatalogCapacity,
		Hash:            cfg.Registry.HashFunc(),
	})
	if err != nil {
		return nil, err
	}
	w.Dialogues, err = dialogue.NewKind(reg, cfg.Registry.HashFunc())
	if err != nil {
		return nil, err
	}

	for _, k := range []entity.Kind{w.Transforms, w.Sprites, w.Inventories, w.Dialogues} {
		if err := reg.Components().Register(k); err != nil {
			return nil, fmt.Errorf("register %s kind: %w", k.Tag(), err)
		}
	}
	reg.SetObserver(&publisher{world: w})

	w.log.Info("world %s created (first id %d, hash %q)", w.ID, reg.NextID(), cfg.Registry.Hash)
	return w, nil
}

// Do выполняет fn под эксклюзивной блокировкой мира.
func (w *World) Do(fn func(reg *entity.Registry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(w.entities)
}

// View выполняет fn под разделяемой блокировкой. fn не должна менять мир.
func (w *World) View(fn func(reg *entity.Registry) error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fn(w.entities)
}

// Bus возвращает шину событий мира.
func (w *World) Bus() eventbus.EventBus { return w.bus }

// Stats содержит снимок состояния мира.
type Stats struct {
	ID              string
	Registry        entity.Stats
	SpritesLive     int
	DialoguesCached int
	Items           int
	Events          eventbus.Stats
}

// Stats собирает снимок под разделяемой блокировкой.
func (w *World) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return Stats{
		ID:              w.ID,
		Registry:        w.entities.Stats(),
		SpritesLive:     w.Sprites.Live(),
		DialoguesCached: w.Dialogues.Cached(),
		Items:           len(w.Inventories.Items()),
		Events:          w.bus.Metrics(),
	}
}

// Close уничтожает все сущности и освобождает каталог предметов.
// Возвращает объединение ошибок уничтожения.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ids []entity.ID
	w.entities.Each(func(e *entity.Entity) bool {
		ids = append(ids, e.ID)
		return true
	})

	var errs []error
	for _, id := range ids {
		if err := w.entities.Destroy(id); err != nil {
			if errors.Is(err, entity.ErrInternalConsistency) {
				return err
			}
			errs = append(errs, err)
		}
	}
	w.Inventories.Close()
	w.log.Info("world %s closed, %d entities destroyed", w.ID, len(ids))
	return errors.Join(errs...)
}

// Event содержит полезную нагрузку событий жизненного цикла.
type Event struct {
	EntityID   uint32 `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Component  string `json:"component,omitempty"`
}

const (
	EventEntityCreated     = "EntityCreated"
	EventEntityDestroyed   = "EntityDestroyed"
	EventComponentAttached = "ComponentAttached"
	EventComponentDetached = "ComponentDetached"
)

// publisher переводит уведомления реестра в конверты шины.
type publisher struct {
	world *World
}

func (p *publisher) publish(eventType string, ev Event) {
	env, err := eventbus.NewEnvelope(p.world.ID, eventType, ev)
	if err != nil {
		p.world.log.Error("failed to build %s event: %v", eventType, err)
		return
	}
	if err := p.world.bus.Publish(context.Background(), env); err != nil {
		p.world.log.Warn("failed to publish %s for entity[%d]: %v", eventType, ev.EntityID, err)
	}
}

func (p *publisher) EntityCreated(e *entity.Entity) {
	p.publish(EventEntityCreated, Event{EntityID: uint32(e.ID), EntityName: e.Name})
}

func (p *publisher) EntityDestroyed(id entity.ID, name string) {
	p.publish(EventEntityDestroyed, Event{EntityID: uint32(id), EntityName: name})
}

func (p *publisher) ComponentAttached(e *entity.Entity, tag entity.Tag) {
	p.publish(EventComponentAttached, Event{EntityID: uint32(e.ID), EntityName: e.Name, Component: tag.String()})
}

func (p *publisher) ComponentDetached(e *entity.Entity, tag entity.Tag) {
	p.publish(EventComponentDetached, Event{EntityID: uint32(e.ID), EntityName: e.Name, Component: tag.String()})
}
