package dialogue

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMalformedTree возвращается для структурно неверного дерева.
var ErrMalformedTree = errors.New("dialogue: malformed tree")

// Choice описывает вариант ответа, ведущий к узлу Next. Пустой Next завершает диалог.
type Choice struct {
	Text string `yaml:"text"`
	Next string `yaml:"next,omitempty"`
}

// Node содержит реплику говорящего.
type Node struct {
	ID      string   `yaml:"id"`
	Speaker string   `yaml:"speaker"`
	Text    string   `yaml:"text"`
	Choices []Choice `yaml:"choices,omitempty"`
}

// Tree представляет файл диалога.
type Tree struct {
	Start string `yaml:"start"`
	Nodes []Node `yaml:"nodes"`

	index map[string]int
}

// Parse декодирует и проверяет дерево.
func Parse(r io.Reader) (*Tree, error) {
	var t Tree
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformedTree)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile читает дерево с диска.
func LoadFile(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

func (t *Tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrMalformedTree)
	}
	t.index = make(map[string]int, len(t.Nodes))
	for i, n := range t.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node #%d has no id", ErrMalformedTree, i)
		}
		if _, dup := t.index[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node %q", ErrMalformedTree, n.ID)
		}
		t.index[n.ID] = i
	}
	if t.Start == "" {
		t.Start = t.Nodes[0].ID
	}
	if _, ok := t.index[t.Start]; !ok {
		return fmt.Errorf("%w: start node %q does not exist", ErrMalformedTree, t.Start)
	}
	for _, n := range t.Nodes {
		for _, c := range n.Choices {
			if c.Next == "" {
				continue
			}
			if _, ok := t.index[c.Next]; !ok {
				return fmt.Errorf("%w: node %q choice %q leads to unknown node %q", ErrMalformedTree, n.ID, c.Text, c.Next)
			}
		}
	}
	return nil
}

// Node возвращает узел по ID.
func (t *Tree) Node(id string) (*Node, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.Nodes[i], true
}
