// Package inventory содержит каталог предметов и компонент инвентаря сущности.
package inventory

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/htable"
	"github.com/annel0/rpgng/internal/logging"
)

const (
	ItemNameMaxLen = 128
	ItemDescMaxLen = 256

	// DefaultMaxItems задаёт число слотов инвентаря по умолчанию.
	DefaultMaxItems = 256
)

var (
	ErrUnknownItem = errors.New("inventory: unknown item")
	ErrFull        = errors.New("inventory: no free slot")
)

// ItemID идентифицирует тип предмета в каталоге.
type ItemID uint32

func (id ItemID) key() []byte {
	k := make([]byte, 4)
	binary.LittleEndian.PutUint32(k, uint32(id))
	return k
}

// Item описывает тип предмета.
type Item struct {
	ID          ItemID `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Value       uint32 `json:"value"`
}

// Inventory хранит payload компонента: список предметов с ограниченной ёмкостью.
type Inventory struct {
	items    []ItemID
	capacity int
}

// Tag реализует entity.Payload.
func (inv *Inventory) Tag() entity.Tag { return entity.TagInventory }

// Items возвращает копию содержимого в порядке добавления.
func (inv *Inventory) Items() []ItemID {
	out := make([]ItemID, len(inv.items))
	copy(out, inv.items)
	return out
}

// Len возвращает число занятых слотов.
func (inv *Inventory) Len() int { return len(inv.items) }

// Capacity возвращает число слотов.
func (inv *Inventory) Capacity() int { return inv.capacity }

// Contains сообщает, есть ли предмет в инвентаре.
func (inv *Inventory) Contains(item ItemID) bool {
	for _, it := range inv.items {
		if it == item {
			return true
		}
	}
	return false
}

// Count возвращает число экземпляров предмета.
func (inv *Inventory) Count(item ItemID) int {
	n := 0
	for _, it := range inv.items {
		if it == item {
			n++
		}
	}
	return n
}

func (inv *Inventory) add(item ItemID) error {
	if len(inv.items) >= inv.capacity {
		return fmt.Errorf("%w: capacity %d", ErrFull, inv.capacity)
	}
	inv.items = append(inv.items, item)
	return nil
}

// removeOne убирает первый экземпляр предмета.
func (inv *Inventory) removeOne(item ItemID) bool {
	for i, it := range inv.items {
		if it == item {
			inv.items = append(inv.items[:i], inv.items[i+1:]...)
			return true
		}
	}
	return false
}

// removeAll убирает все экземпляры предмета и возвращает их число.
func (inv *Inventory) removeAll(item ItemID) int {
	kept := inv.items[:0]
	removed := 0
	for _, it := range inv.items {
		if it == item {
			removed++
			continue
		}
		kept = append(kept, it)
	}
	inv.items = kept
	return removed
}

// Kind владеет каталогом предметов и инвентарями сущностей одного реестра.
type Kind struct {
	reg      *entity.Registry
	items    *htable.Table[*Item]
	nextItem ItemID
	maxItems int
	log      *logging.Logger
}

// Config задаёт параметры каталога.
type Config struct {
	MaxItems        int
	CatalogCapacity int
	Hash            htable.HashFunc
}

// NewKind создаёт вид компонента с пустым каталогом.
func NewKind(reg *entity.Registry, cfg Config) (*Kind, error) {
	log := logging.GetComponentLogger("component(inventory)")
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.CatalogCapacity <= 0 {
		cfg.CatalogCapacity = 16
	}

	log.Debug("attempting to create item table")
	items, err := htable.New[*Item](cfg.CatalogCapacity, htable.WithHash(cfg.Hash))
	if err != nil {
		log.Warn("could not allocate item table: %v", err)
		return nil, fmt.Errorf("create item table: %w", err)
	}
	return &Kind{reg: reg, items: items, nextItem: 1, maxItems: cfg.MaxItems, log: log}, nil
}

// Tag реализует entity.Kind.
func (k *Kind) Tag() entity.Tag { return entity.TagInventory }

// CreateItem регистрирует тип предмета. Имя и описание обрезаются до
// ItemNameMaxLen и ItemDescMaxLen байт.
func (k *Kind) CreateItem(name, description string, value uint32) (ItemID, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty item name", entity.ErrInvalidArgument)
	}
	it := &Item{
		ID:          k.nextItem,
		Name:        truncate(name, ItemNameMaxLen),
		Description: truncate(description, ItemDescMaxLen),
		Value:       value,
	}
	if err := k.items.Add(it.ID.key(), it); err != nil {
		k.log.Warn("failed to add item '%s' to item table: %v", it.Name, err)
		return 0, fmt.Errorf("add item %q: %w", it.Name, err)
	}
	k.nextItem++
	k.log.Debug("created item:%d '%s'", it.ID, it.Name)
	return it.ID, nil
}

// Item возвращает копию типа предмета.
func (k *Kind) Item(id ItemID) (Item, bool) {
	it, ok := k.items.Get(id.key())
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// ItemByName возвращает предмет с данным именем; при совпадении имён —
// с наименьшим ID.
func (k *Kind) ItemByName(name string) (Item, bool) {
	var found *Item
	k.items.Range(func(_ []byte, it *Item) bool {
		if it.Name == name && (found == nil || it.ID < found.ID) {
			found = it
		}
		return true
	})
	if found == nil {
		return Item{}, false
	}
	return *found, true
}

// Items возвращает все предметы каталога по возрастанию ID.
func (k *Kind) Items() []Item {
	out := make([]Item, 0, k.items.Len())
	k.items.Range(func(_ []byte, it *Item) bool {
		out = append(out, *it)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DestroyItem удаляет тип предмета из каталога и из всех инвентарей.
func (k *Kind) DestroyItem(id ItemID) error {
	if err := k.items.Remove(id.key()); err != nil {
		if errors.Is(err, htable.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrUnknownItem, id)
		}
		return err
	}

	removed := 0
	k.reg.Each(func(e *entity.Entity) bool {
		if p, ok := e.Component(entity.TagInventory); ok {
			removed += p.(*Inventory).removeAll(id)
		}
		return true
	})
	k.log.Debug("destroyed item:%d, removed %d instance(s) from inventories", id, removed)
	return nil
}

// Create привязывает к сущности инвентарь с предметами items.
func (k *Kind) Create(id entity.ID, items []ItemID) (*Inventory, error) {
	k.log.Debug("creating new inventory for entity:%d", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to create inventory, failed to get entity:%d", id)
		return nil, fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	if e.HasComponent(entity.TagInventory) {
		k.log.Warn("cannot create inventory for entity:%d, entity already has inventory", id)
		return nil, fmt.Errorf("%w: entity[%d] inventory", entity.ErrComponentExists, id)
	}
	if len(items) > k.maxItems {
		return nil, fmt.Errorf("%w: %d items for %d slots", ErrFull, len(items), k.maxItems)
	}

	inv := &Inventory{items: make([]ItemID, 0, len(items)), capacity: k.maxItems}
	for _, it := range items {
		if !k.items.Has(it.key()) {
			k.log.Warn("cannot create inventory for entity:%d, unknown item:%d", id, it)
			return nil, fmt.Errorf("%w: %d", ErrUnknownItem, it)
		}
		inv.items = append(inv.items, it)
	}

	if err := e.Attach(inv); err != nil {
		k.log.Warn("failed to map inventory in component table for entity:%d: %v", id, err)
		return nil, err
	}
	return inv, nil
}

// Get возвращает инвентарь сущности.
func (k *Kind) Get(id entity.ID) (*Inventory, bool) {
	return entity.ComponentAs[*Inventory](k.reg, id, entity.TagInventory)
}

// AddItem кладёт предмет в инвентарь сущности.
func (k *Kind) AddItem(id entity.ID, item ItemID) error {
	inv, ok := k.Get(id)
	if !ok {
		return fmt.Errorf("%w: entity %d has no inventory", entity.ErrComponentMissing, id)
	}
	if !k.items.Has(item.key()) {
		return fmt.Errorf("%w: %d", ErrUnknownItem, item)
	}
	return inv.add(item)
}

// RemoveItem забирает один экземпляр предмета из инвентаря сущности.
func (k *Kind) RemoveItem(id entity.ID, item ItemID) error {
	inv, ok := k.Get(id)
	if !ok {
		return fmt.Errorf("%w: entity %d has no inventory", entity.ErrComponentMissing, id)
	}
	if !inv.removeOne(item) {
		return fmt.Errorf("%w: entity %d does not hold item %d", ErrUnknownItem, id, item)
	}
	return nil
}

// Destroy снимает инвентарь с сущности.
func (k *Kind) Destroy(id entity.ID) error {
	k.log.Debug("destroying inventory for entity:%d", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to destroy inventory, failed to get entity:%d", id)
		return fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	p, err := e.Detach(entity.TagInventory)
	if err != nil {
		k.log.Warn("failed to destroy inventory, no inventory found for entity:%d", id)
		return err
	}
	p.(*Inventory).items = nil
	return nil
}

// Close освобождает каталог.
func (k *Kind) Close() {
	k.items.Destroy()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
