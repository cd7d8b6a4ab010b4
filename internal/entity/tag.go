package entity

import (
	"fmt"
	"strings"
)

// Tag определяет вид компонента. У сущности не больше одного компонента
// каждого вида.
type Tag uint8

const (
	TagTransform Tag = iota
	TagSprite
	TagInventory
	TagDialogue

	tagCount
)

var tagNames = [tagCount]string{
	TagTransform: "transform",
	TagSprite:    "sprite",
	TagInventory: "inventory",
	TagDialogue:  "dialogue",
}

// Valid сообщает, входит ли тег в перечисление.
func (t Tag) Valid() bool { return t < tagCount }

func (t Tag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
	return tagNames[t]
}

func (t Tag) key() []byte { return []byte{byte(t)} }

// ParseTag разбирает имя вида компонента (без учёта регистра).
func ParseTag(s string) (Tag, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range tagNames {
		if name == s {
			return Tag(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown component %q", ErrInvalidArgument, s)
}

// Tags возвращает все теги в порядке объявления.
func Tags() []Tag {
	tags := make([]Tag, 0, tagCount)
	for t := Tag(0); t < tagCount; t++ {
		tags = append(tags, t)
	}
	return tags
}

func tagFromKey(key []byte) (Tag, bool) {
	if len(key) != 1 {
		return 0, false
	}
	t := Tag(key[0])
	return t, t.Valid()
}
