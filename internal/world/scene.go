package world

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/annel0/rpgng/internal/component/inventory"
	"github.com/annel0/rpgng/internal/entity"
)

// Scene содержит описание начального состояния мира.
//
//	items:
//	  - name: sword
//	    value: 10
//	entities:
//	  - name: hero
//	    transform: {x: 3, y: 4}
//	    sprite: {path: hero.png, opacity: 0.5}
//	    inventory: [sword]
//	    dialogue: hero.yaml
//
// Относительные пути спрайтов и диалогов отсчитываются от каталога сцены.
type Scene struct {
	Items    []SceneItem   `yaml:"items"`
	Entities []SceneEntity `yaml:"entities"`
}

type SceneItem struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Value       uint32 `yaml:"value"`
}

type SceneEntity struct {
	Name      string          `yaml:"name"`
	Transform *SceneTransform `yaml:"transform,omitempty"`
	Sprite    *SceneSprite    `yaml:"sprite,omitempty"`
	Inventory []string        `yaml:"inventory,omitempty"`
	Dialogue  string          `yaml:"dialogue,omitempty"`
}

type SceneTransform struct {
	X        int      `yaml:"x"`
	Y        int      `yaml:"y"`
	Rotation float64  `yaml:"rotation"`
	Scale    *float64 `yaml:"scale,omitempty"`
}

type SceneSprite struct {
	Path    string   `yaml:"path"`
	Opacity *float64 `yaml:"opacity,omitempty"`
	FlipH   bool     `yaml:"flip_h"`
	FlipV   bool     `yaml:"flip_v"`
	Clip    []int    `yaml:"clip,omitempty"` // x0, y0, x1, y1
}

// ParseScene декодирует сцену из YAML.
func ParseScene(data []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return &s, nil
}

// LoadScene читает сцену из файла и применяет её к миру.
func (w *World) LoadScene(path string) ([]entity.ID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScene(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ids, err := w.ApplyScene(s, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	w.log.Info("scene %s loaded: %d items, %d entities", path, len(s.Items), len(ids))
	return ids, nil
}

// ApplyScene создаёт предметы и сущности сцены. При ошибке уже созданные
// сущности сцены уничтожаются; предметы каталога остаются.
func (w *World) ApplyScene(s *Scene, baseDir string) ([]entity.ID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, it := range s.Items {
		if _, err := w.Inventories.CreateItem(it.Name, it.Description, it.Value); err != nil {
			return nil, fmt.Errorf("item %q: %w", it.Name, err)
		}
	}

	ids := make([]entity.ID, 0, len(s.Entities))
	for i := range s.Entities {
		se := &s.Entities[i]
		id, err := w.spawn(se, baseDir)
		if err != nil {
			w.rollback(ids)
			return nil, fmt.Errorf("entity %q: %w", se.Name, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (w *World) spawn(se *SceneEntity, baseDir string) (entity.ID, error) {
	id, err := w.entities.Create(se.Name)
	if err != nil {
		return 0, err
	}
	if err := w.attachScene(id, se, baseDir); err != nil {
		if derr := w.entities.Destroy(id); derr != nil {
			return 0, errors.Join(err, derr)
		}
		return 0, err
	}
	return id, nil
}

func (w *World) attachScene(id entity.ID, se *SceneEntity, baseDir string) error {
	if st := se.Transform; st != nil {
		t, err := w.Transforms.Create(id)
		if err != nil {
			return err
		}
		t.SetPosition(st.X, st.Y)
		t.SetRotation(st.Rotation)
		if st.Scale != nil {
			t.SetScale(*st.Scale)
		}
	}

	if ss := se.Sprite; ss != nil {
		sp, err := w.Sprites.Create(id, resolve(baseDir, ss.Path))
		if err != nil {
			return err
		}
		if ss.Opacity != nil {
			if err := sp.SetOpacity(*ss.Opacity); err != nil {
				return err
			}
		}
		sp.FlipH, sp.FlipV = ss.FlipH, ss.FlipV
		if len(ss.Clip) > 0 {
			if len(ss.Clip) != 4 {
				return fmt.Errorf("%w: sprite clip needs 4 values, got %d", entity.ErrInvalidArgument, len(ss.Clip))
			}
			if err := sp.SetClip(image.Rect(ss.Clip[0], ss.Clip[1], ss.Clip[2], ss.Clip[3])); err != nil {
				return err
			}
		}
	}

	if se.Inventory != nil {
		items := make([]inventory.ItemID, 0, len(se.Inventory))
		for _, name := range se.Inventory {
			it, ok := w.Inventories.ItemByName(name)
			if !ok {
				return fmt.Errorf("%w: %q", inventory.ErrUnknownItem, name)
			}
			items = append(items, it.ID)
		}
		if _, err := w.Inventories.Create(id, items); err != nil {
			return err
		}
	}

	if se.Dialogue != "" {
		if _, err := w.Dialogues.Create(id, resolve(baseDir, se.Dialogue)); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) rollback(ids []entity.ID) {
	for i := len(ids) - 1; i >= 0; i-- {
		if err := w.entities.Destroy(ids[i]); err != nil {
			w.log.Error("scene rollback: failed to destroy entity[%d]: %v", ids[i], err)
		}
	}
}

func resolve(baseDir, path string) string {
	if baseDir == "" || path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
