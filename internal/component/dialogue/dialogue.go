// Package dialogue реализует компонент диалога сущности. Деревья диалогов читаются
// из YAML-файлов и разделяются между сущностями через кэш по пути.
package dialogue

import (
	"errors"
	"fmt"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/htable"
	"github.com/annel0/rpgng/internal/logging"
)

// ErrEndOfDialogue возвращается при выборе варианта, завершающего диалог.
var ErrEndOfDialogue = errors.New("dialogue: end of dialogue")

// Dialogue хранит payload компонента: дерево и текущий узел.
type Dialogue struct {
	Path    string
	Tree    *Tree
	Current string
}

// Tag реализует entity.Payload.
func (d *Dialogue) Tag() entity.Tag { return entity.TagDialogue }

// Node возвращает текущий узел; nil после Destroy.
func (d *Dialogue) Node() *Node {
	if d.Tree == nil {
		return nil
	}
	n, _ := d.Tree.Node(d.Current)
	return n
}

// Choose переходит по варианту i текущего узла.
func (d *Dialogue) Choose(i int) (*Node, error) {
	n := d.Node()
	if n == nil {
		return nil, fmt.Errorf("%w: dialogue %q has no current node", entity.ErrInvalidArgument, d.Path)
	}
	if i < 0 || i >= len(n.Choices) {
		return nil, fmt.Errorf("%w: choice %d of %d at node %q", entity.ErrInvalidArgument, i, len(n.Choices), n.ID)
	}
	next := n.Choices[i].Next
	if next == "" {
		return nil, ErrEndOfDialogue
	}
	d.Current = next
	return d.Node(), nil
}

// Reset возвращает диалог к стартовому узлу.
func (d *Dialogue) Reset() {
	if d.Tree != nil {
		d.Current = d.Tree.Start
	}
}

type cached struct {
	tree *Tree
	refs int
}

// Kind создаёт диалоги сущностей; одинаковые файлы читаются один раз.
type Kind struct {
	reg   *entity.Registry
	trees *htable.Table[*cached]
	load  func(path string) (*Tree, error)
	log   *logging.Logger
}

// NewKind создаёт вид компонента с пустым кэшем деревьев.
func NewKind(reg *entity.Registry, hash htable.HashFunc) (*Kind, error) {
	log := logging.GetComponentLogger("component(dialogue)")

	log.Debug("attempting to create dialogue table")
	trees, err := htable.New[*cached](16, htable.WithHash(hash))
	if err != nil {
		log.Warn("could not allocate dialogue table: %v", err)
		return nil, fmt.Errorf("create dialogue table: %w", err)
	}
	return &Kind{reg: reg, trees: trees, load: LoadFile, log: log}, nil
}

// Tag реализует entity.Kind.
func (k *Kind) Tag() entity.Tag { return entity.TagDialogue }

// Cached возвращает число деревьев в кэше.
func (k *Kind) Cached() int { return k.trees.Len() }

// Create загружает дерево path (или берёт его из кэша) и привязывает диалог
// к сущности.
func (k *Kind) Create(id entity.ID, path string) (*Dialogue, error) {
	k.log.Debug("creating new dialogue for entity:%d", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to create dialogue, failed to get entity:%d", id)
		return nil, fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	if e.HasComponent(entity.TagDialogue) {
		return nil, fmt.Errorf("%w: entity[%d] dialogue", entity.ErrComponentExists, id)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty dialogue path", entity.ErrInvalidArgument)
	}

	c, err := k.acquire(path)
	if err != nil {
		k.log.Warn("unable to create dialogue for entity:%d: %v", id, err)
		return nil, err
	}

	d := &Dialogue{Path: path, Tree: c.tree, Current: c.tree.Start}
	if err := e.Attach(d); err != nil {
		k.log.Warn("failed to map dialogue in component table for entity:%d: %v", id, err)
		k.release(path)
		return nil, err
	}
	return d, nil
}

// Get возвращает диалог сущности.
func (k *Kind) Get(id entity.ID) (*Dialogue, bool) {
	return entity.ComponentAs[*Dialogue](k.reg, id, entity.TagDialogue)
}

// Destroy снимает диалог с сущности и отпускает дерево в кэше.
func (k *Kind) Destroy(id entity.ID) error {
	e, ok := k.reg.Get(id)
	if !ok {
		return fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	p, err := e.Detach(entity.TagDialogue)
	if err != nil {
		return err
	}
	d := p.(*Dialogue)
	k.release(d.Path)
	d.Tree = nil
	return nil
}

func (k *Kind) acquire(path string) (*cached, error) {
	if c, ok := k.trees.Get([]byte(path)); ok {
		c.refs++
		return c, nil
	}
	tree, err := k.load(path)
	if err != nil {
		return nil, fmt.Errorf("load dialogue %q: %w", path, err)
	}
	c := &cached{tree: tree, refs: 1}
	if err := k.trees.Add([]byte(path), c); err != nil {
		return nil, fmt.Errorf("cache dialogue %q: %w", path, err)
	}
	return c, nil
}

func (k *Kind) release(path string) {
	c, ok := k.trees.Get([]byte(path))
	if !ok {
		k.log.Error("dialogue %q released but not cached", path)
		return
	}
	c.refs--
	if c.refs > 0 {
		return
	}
	if err := k.trees.Remove([]byte(path)); err != nil {
		k.log.Error("failed to evict dialogue %q: %v", path, err)
	}
}
