// Package sprite реализует компонент изображения сущности.
package sprite

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/annel0/rpgng/internal/entity"
	"github.com/annel0/rpgng/internal/logging"
)

// Loader декодирует изображение по пути.
type Loader func(path string) (image.Image, error)

// DecodeFile используется как Loader по умолчанию: PNG, JPEG и GIF с диска.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Sprite хранит payload компонента.
type Sprite struct {
	Path string
	// Clip задаёт видимую часть поверхности; по умолчанию всё изображение.
	Clip  image.Rectangle
	FlipH bool
	FlipV bool

	opacity float64
	surface image.Image
}

// Tag реализует entity.Payload.
func (s *Sprite) Tag() entity.Tag { return entity.TagSprite }

// Surface возвращает декодированное изображение. nil после уничтожения.
func (s *Sprite) Surface() image.Image { return s.surface }

// Opacity возвращает непрозрачность: 1 — непрозрачный, 0 — прозрачный.
func (s *Sprite) Opacity() float64 { return s.opacity }

// FlipHorizontal отражает спрайт по горизонтали.
func (s *Sprite) FlipHorizontal() { s.FlipH = !s.FlipH }

// FlipVertical отражает спрайт по вертикали.
func (s *Sprite) FlipVertical() { s.FlipV = !s.FlipV }

// SetOpacity задаёт непрозрачность в диапазоне [0, 1].
func (s *Sprite) SetOpacity(opacity float64) error {
	if opacity < 0 || opacity > 1 {
		return fmt.Errorf("%w: opacity %.2f outside [0,1]", entity.ErrInvalidArgument, opacity)
	}
	s.opacity = opacity
	return nil
}

// SetClip задаёт видимую часть; прямоугольник обрезается по границам
// изображения.
func (s *Sprite) SetClip(r image.Rectangle) error {
	if s.surface == nil {
		return fmt.Errorf("%w: sprite has no surface", entity.ErrInvalidArgument)
	}
	clip := r.Intersect(s.surface.Bounds())
	if clip.Empty() {
		return fmt.Errorf("%w: clip %v outside image bounds %v", entity.ErrInvalidArgument, r, s.surface.Bounds())
	}
	s.Clip = clip
	return nil
}

// Kind создаёт и уничтожает спрайты сущностей одного реестра.
type Kind struct {
	reg  *entity.Registry
	load Loader
	live int
	log  *logging.Logger
}

// NewKind создаёт вид компонента. При load == nil используется DecodeFile.
func NewKind(reg *entity.Registry, load Loader) *Kind {
	if load == nil {
		load = DecodeFile
	}
	return &Kind{reg: reg, load: load, log: logging.GetComponentLogger("component(sprite)")}
}

// Tag реализует entity.Kind.
func (k *Kind) Tag() entity.Tag { return entity.TagSprite }

// Live возвращает число загруженных и ещё не освобождённых поверхностей.
func (k *Kind) Live() int { return k.live }

// Create загружает изображение path и привязывает спрайт к сущности.
func (k *Kind) Create(id entity.ID, path string) (*Sprite, error) {
	k.log.Debug("attempting to create new sprite for entity[%d]", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to create sprite, failed to get entity[%d]", id)
		return nil, fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	if e.HasComponent(entity.TagSprite) {
		k.log.Warn("unable to create sprite, entity[%d]('%s') already has sprite", e.ID, e.Name)
		return nil, fmt.Errorf("%w: entity[%d] sprite", entity.ErrComponentExists, e.ID)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: empty image path", entity.ErrInvalidArgument)
	}

	img, err := k.load(path)
	if err != nil {
		k.log.Warn("unable to create sprite for entity[%d]('%s'), failed to load image at path '%s': %v", e.ID, e.Name, path, err)
		return nil, fmt.Errorf("load sprite %q: %w", path, err)
	}

	s := &Sprite{Path: path, Clip: img.Bounds(), opacity: 1, surface: img}
	k.live++

	if err := e.Attach(s); err != nil {
		k.log.Warn("failed to map sprite in component table for entity[%d]('%s'): %v", e.ID, e.Name, err)
		k.release(s)
		return nil, err
	}
	return s, nil
}

// Get возвращает спрайт сущности.
func (k *Kind) Get(id entity.ID) (*Sprite, bool) {
	return entity.ComponentAs[*Sprite](k.reg, id, entity.TagSprite)
}

// Destroy освобождает поверхность и снимает спрайт с сущности.
func (k *Kind) Destroy(id entity.ID) error {
	k.log.Debug("attempting to destroy sprite for entity[%d]", id)

	e, ok := k.reg.Get(id)
	if !ok {
		k.log.Warn("unable to destroy sprite, failed to get entity[%d]", id)
		return fmt.Errorf("%w: entity %d", entity.ErrNotFound, id)
	}
	p, err := e.Detach(entity.TagSprite)
	if err != nil {
		k.log.Warn("unable to destroy sprite of entity[%d]('%s'): %v", e.ID, e.Name, err)
		return err
	}
	if s, ok := p.(*Sprite); ok {
		k.release(s)
	}
	return nil
}

func (k *Kind) release(s *Sprite) {
	if s.surface == nil {
		return
	}
	s.surface = nil
	k.live--
}
