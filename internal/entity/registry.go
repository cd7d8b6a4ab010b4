// Package entity содержит реестр сущностей и диспетчер компонентов.
//
// Реестр индексирует сущности двумя независимыми хэш-таблицами: по ID и по
// имени. Каждая сущность владеет собственной таблицей компонентов с ключом
// по тегу вида компонента. Реестр не потокобезопасен.
package entity

import (
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/annel0/rpgng/internal/htable"
	"github.com/annel0/rpgng/internal/logging"
)

// DefaultNameMaxLen задаёт максимальную длина имени в байтах.
const DefaultNameMaxLen = 256

// Config задаёт параметры реестра. Нулевые поля заменяются значениями
// по умолчанию.
type Config struct {
	FirstID           ID
	InitialCapacity   int
	ComponentCapacity int
	NameMaxLen        int
	Hash              htable.HashFunc
	MaxBuckets        int
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		FirstID:           1,
		InitialCapacity:   16,
		ComponentCapacity: 4,
		NameMaxLen:        DefaultNameMaxLen,
		Hash:              htable.HashOneAtATime,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FirstID == 0 {
		c.FirstID = d.FirstID
	}
	if c.InitialCapacity <= 0 {
		c.InitialCapacity = d.InitialCapacity
	}
	if c.ComponentCapacity <= 0 {
		c.ComponentCapacity = d.ComponentCapacity
	}
	if c.NameMaxLen <= 0 {
		c.NameMaxLen = d.NameMaxLen
	}
	if c.Hash == nil {
		c.Hash = d.Hash
	}
	return c
}

func (c Config) tableOptions() []htable.Option {
	return []htable.Option{htable.WithHash(c.Hash), htable.WithMaxBuckets(c.MaxBuckets)}
}

// Observer получает уведомления о жизненном цикле сущностей. Вызывается
// синхронно внутри операций реестра и не должен менять реестр.
type Observer interface {
	EntityCreated(e *Entity)
	EntityDestroyed(id ID, name string)
	ComponentAttached(e *Entity, tag Tag)
	ComponentDetached(e *Entity, tag Tag)
}

// Registry владеет всеми сущностями одного мира.
type Registry struct {
	cfg        Config
	byID       *htable.Table[*Entity]
	byName     *htable.Table[*Entity]
	nextID     ID
	exhausted  bool
	components *Components
	observer   Observer
	log        *logging.Logger
}

// NewRegistry создаёт и инициализирует реестр.
func NewRegistry(cfg Config) (*Registry, error) {
	r := &Registry{cfg: cfg}
	if err := r.Init(); err != nil {
		return nil, err
	}
	return r, nil
}

// Init создаёт индексы. Должен быть вызван ровно один раз до любых других
// операций; NewRegistry делает это сам.
func (r *Registry) Init() error {
	if r.log == nil {
		r.log = logging.GetComponentLogger("entity")
	}
	r.log.Debug("attempting to initialize entity registry")

	if r.byID != nil || r.byName != nil {
		r.log.Warn("init failed, this registry was already initialized")
		return ErrAlreadyInitialized
	}

	cfg := r.cfg.withDefaults()
	byID, err := htable.New[*Entity](cfg.InitialCapacity, cfg.tableOptions()...)
	if err != nil {
		r.log.Warn("unable to create entity table: %v", err)
		return fmt.Errorf("%w: create id index: %w", ErrOutOfMemory, err)
	}
	byName, err := htable.New[*Entity](cfg.InitialCapacity, cfg.tableOptions()...)
	if err != nil {
		r.log.Warn("unable to create entity name table: %v", err)
		byID.Destroy()
		return fmt.Errorf("%w: create name index: %w", ErrOutOfMemory, err)
	}

	r.cfg = cfg
	r.byID = byID
	r.byName = byName
	r.nextID = cfg.FirstID
	r.components = newComponents(r)
	return nil
}

func (r *Registry) initialized() bool { return r != nil && r.byID != nil && r.byName != nil }

// SetObserver подключает наблюдателя жизненного цикла. nil отключает.
func (r *Registry) SetObserver(o Observer) { r.observer = o }

// Components возвращает диспетчер компонентов реестра.
func (r *Registry) Components() *Components {
	if r == nil {
		return nil
	}
	return r.components
}

// Create создаёт сущность с уникальным именем и возвращает её ID.
// Имя длиннее NameMaxLen обрезается; уникальность проверяется для
// обрезанного имени.
func (r *Registry) Create(name string) (ID, error) {
	if !r.initialized() {
		logging.GetComponentLogger("entity").Warn("cannot create entity before initializing the registry")
		return 0, ErrNotInitialized
	}
	r.log.Debug("attempting to create new entity id:%d, name:'%s'", r.nextID, name)

	if name == "" {
		r.log.Warn("cannot create entity:%d with empty name", r.nextID)
		return 0, fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}
	if r.exhausted {
		r.log.Error("cannot create entity '%s', id space exhausted", name)
		return 0, fmt.Errorf("%w: id space exhausted", ErrOutOfMemory)
	}
	name = truncateName(name, r.cfg.NameMaxLen)
	if name == "" {
		r.log.Warn("name of entity:%d is empty after truncation to %d bytes", r.nextID, r.cfg.NameMaxLen)
		return 0, fmt.Errorf("%w: name empty after truncation", ErrInvalidArgument)
	}

	comps, err := htable.New[Payload](r.cfg.ComponentCapacity, r.cfg.tableOptions()...)
	if err != nil {
		r.log.Warn("cannot allocate component table for entity '%s': %v", name, err)
		return 0, fmt.Errorf("%w: component table: %w", ErrOutOfMemory, err)
	}

	e := &Entity{ID: r.nextID, Name: name, components: comps, registry: r}

	if err := r.byID.Add(e.ID.key(), e); err != nil {
		r.log.Warn("unable to add new entity to entity table: %v", err)
		comps.Destroy()
		if errors.Is(err, htable.ErrDuplicateKey) {
			// Счётчик монотонный: занятый ID означает порчу индекса.
			r.log.Critical("entity id %d is already indexed", e.ID)
			return 0, fmt.Errorf("%w: id %d already indexed", ErrInternalConsistency, e.ID)
		}
		return 0, fmt.Errorf("%w: index by id: %w", ErrOutOfMemory, err)
	}

	if err := r.byName.Add([]byte(name), e); err != nil {
		r.log.Warn("unable to add new entity to entity name table: %v", err)

		if rmErr := r.byID.Remove(e.ID.key()); rmErr != nil {
			// Запись только что добавлена: если её нельзя удалить,
			// таблица повреждена.
			r.log.Critical("failed to roll back id mapping of entity:%d: %v", e.ID, rmErr)
			return 0, fmt.Errorf("%w: rollback of entity %d: %w", ErrInternalConsistency, e.ID, rmErr)
		}
		comps.Destroy()

		if errors.Is(err, htable.ErrDuplicateKey) {
			return 0, fmt.Errorf("%w: %q: %w", ErrNameTaken, name, err)
		}
		return 0, fmt.Errorf("%w: index by name: %w", ErrOutOfMemory, err)
	}

	r.nextID++
	if r.nextID == 0 {
		r.exhausted = true
	}

	if r.observer != nil {
		r.observer.EntityCreated(e)
	}
	return e.ID, nil
}

// Destroy уничтожает сущность: сначала компоненты (по возможности каждый),
// затем обе записи индекса, затем таблицу компонентов.
func (r *Registry) Destroy(id ID) error {
	if !r.initialized() {
		return ErrNotInitialized
	}
	r.log.Debug("attempting to destroy entity:%d", id)

	e, ok := r.byID.Get(id.key())
	if !ok {
		r.log.Warn("failed to remove entity:%d, not found in entity table", id)
		return fmt.Errorf("%w: entity %d", ErrNotFound, id)
	}

	if err := r.components.Cleanup(id); err != nil {
		if errors.Is(err, ErrInternalConsistency) {
			return err
		}
		r.log.Warn("component cleanup for entity:%d('%s') incomplete: %v", id, e.Name, err)
	}

	if err := r.byID.Remove(id.key()); err != nil {
		r.log.Critical("failed to remove entity:%d from entity table after successful lookup: %v", id, err)
		return fmt.Errorf("%w: remove id mapping of entity %d: %w", ErrInternalConsistency, id, err)
	}
	if err := r.byName.Remove([]byte(e.Name)); err != nil {
		r.log.Critical("entity:%d('%s') was indexed by id but not by name: %v", id, e.Name, err)
		return fmt.Errorf("%w: remove name mapping of entity %d: %w", ErrInternalConsistency, id, err)
	}

	if left := e.components.Len(); left > 0 {
		r.log.Warn("entity:%d('%s') destroyed with %d component(s) that were not cleaned up", id, e.Name, left)
	}
	e.components.Destroy()
	e.components = nil

	if r.observer != nil {
		r.observer.EntityDestroyed(id, e.Name)
	}
	e.registry = nil
	return nil
}

// Get возвращает сущность по ID.
func (r *Registry) Get(id ID) (*Entity, bool) {
	if !r.initialized() {
		return nil, false
	}
	e, ok := r.byID.Get(id.key())
	if !ok {
		r.log.Trace("entity:%d not found in entity table", id)
	}
	return e, ok
}

// GetByName возвращает сущность по имени. Имя обрезается так же, как
// при создании.
func (r *Registry) GetByName(name string) (*Entity, bool) {
	if !r.initialized() || name == "" {
		return nil, false
	}
	return r.byName.Get([]byte(truncateName(name, r.cfg.NameMaxLen)))
}

// HasComponent сообщает, привязан ли к сущности компонент вида tag.
func (r *Registry) HasComponent(id ID, tag Tag) bool {
	e, ok := r.Get(id)
	if !ok {
		return false
	}
	return e.HasComponent(tag)
}

// GetComponent возвращает payload компонента вида tag.
func (r *Registry) GetComponent(id ID, tag Tag) (Payload, bool) {
	e, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return e.Component(tag)
}

// Len возвращает число живых сущностей.
func (r *Registry) Len() int {
	if !r.initialized() {
		return 0
	}
	return r.byID.Len()
}

// NextID возвращает ID, который получит следующая сущность.
func (r *Registry) NextID() ID { return r.nextID }

// Each вызывает fn для сущностей в порядке возрастания ID, пока fn
// возвращает true. fn не должна создавать или уничтожать сущности.
func (r *Registry) Each(fn func(e *Entity) bool) {
	if !r.initialized() {
		return
	}
	all := make([]*Entity, 0, r.byID.Len())
	r.byID.Range(func(_ []byte, e *Entity) bool {
		all = append(all, e)
		return true
	})
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, e := range all {
		if !fn(e) {
			return
		}
	}
}

// Stats содержит снимок состояния реестра.
type Stats struct {
	Entities   int
	NextID     ID
	ByID       htable.Stats
	ByName     htable.Stats
	Components map[Tag]int
}

// Stats собирает счётчики реестра и компонентов по видам.
func (r *Registry) Stats() Stats {
	s := Stats{Components: make(map[Tag]int, tagCount)}
	if !r.initialized() {
		return s
	}
	s.Entities = r.byID.Len()
	s.NextID = r.nextID
	s.ByID = r.byID.Stats()
	s.ByName = r.byName.Stats()
	r.byID.Range(func(_ []byte, e *Entity) bool {
		for _, t := range e.Tags() {
			s.Components[t]++
		}
		return true
	})
	return s
}

// truncateName обрезает имя до max байт, не разрывая руну UTF-8.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
