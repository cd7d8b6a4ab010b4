// Package htable реализует хэш-таблицу с открытой адресацией и линейным
// пробированием. Ключ — произвольная непустая последовательность байт,
// таблица хранит собственную копию ключа. Значение хранится как есть:
// владельцем значения остаётся вызывающий код.
//
// Таблица не потокобезопасна.
package htable

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/annel0/rpgng/internal/logging"
)

var (
	ErrInvalidArgument = errors.New("htable: invalid argument")
	ErrDuplicateKey    = errors.New("htable: key already exists")
	ErrNotFound        = errors.New("htable: key not found")
	ErrOutOfMemory     = errors.New("htable: out of memory")
)

// Result описывает исход Lookup. В отличие от (V, bool) различает отсутствие
// ключа и некорректный вызов.
type Result uint8

const (
	NotFound Result = iota
	Found
	InvalidCall
)

func (r Result) String() string {
	switch r {
	case NotFound:
		return "not_found"
	case Found:
		return "found"
	case InvalidCall:
		return "invalid_call"
	default:
		return "unknown"
	}
}

// growScale: во сколько раз увеличивается таблица при рехэше.
const growScale = 2

type entry[V any] struct {
	key   []byte // nil — пустой слот
	value V
}

// Table представляет хэш-таблицу ключ→значение. Создаётся через New.
type Table[V any] struct {
	buckets    []entry[V]
	count      int
	hash       HashFunc
	maxBuckets int
	rehashes   uint64
	log        *logging.Logger
}

// Stats содержит снимок внутреннего состояния таблицы.
type Stats struct {
	Buckets  int
	Mappings int
	Rehashes uint64
}

// LoadFactor возвращает отношение числа записей к числу бакетов.
func (s Stats) LoadFactor() float64 {
	if s.Buckets == 0 {
		return 0
	}
	return float64(s.Mappings) / float64(s.Buckets)
}

type options struct {
	hash       HashFunc
	maxBuckets int
}

// Option настраивает таблицу при создании.
type Option func(*options)

// WithHash задаёт хэш-функцию. По умолчанию HashOneAtATime.
func WithHash(h HashFunc) Option {
	return func(o *options) {
		if h != nil {
			o.hash = h
		}
	}
}

// WithMaxBuckets ограничивает размер таблицы. Попытка вырасти сверх лимита
// завершается ErrOutOfMemory. 0 означает без ограничения.
func WithMaxBuckets(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBuckets = n
		}
	}
}

// New создаёт таблицу на capacity бакетов.
func New[V any](capacity int, opts ...Option) (*Table[V], error) {
	log := logging.GetComponentLogger("htable")

	o := options{hash: HashOneAtATime}
	for _, opt := range opts {
		opt(&o)
	}

	if capacity <= 0 {
		log.Warn("cannot create hash table of size %d", capacity)
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
	}
	if o.maxBuckets > 0 && capacity > o.maxBuckets {
		log.Warn("cannot create hash table of size %d, limit is %d buckets", capacity, o.maxBuckets)
		return nil, fmt.Errorf("%w: capacity %d exceeds limit %d", ErrOutOfMemory, capacity, o.maxBuckets)
	}

	t := &Table[V]{
		buckets:    make([]entry[V], capacity),
		hash:       o.hash,
		maxBuckets: o.maxBuckets,
		log:        log,
	}
	log.Trace("created hash table (%p) of size %d", t, capacity)
	return t, nil
}

// Size возвращает число бакетов.
func (t *Table[V]) Size() int {
	if t == nil {
		return 0
	}
	return len(t.buckets)
}

// Len возвращает число живых записей.
func (t *Table[V]) Len() int {
	if t == nil {
		return 0
	}
	return t.count
}

// Stats возвращает снимок счётчиков таблицы.
func (t *Table[V]) Stats() Stats {
	if t == nil {
		return Stats{}
	}
	return Stats{Buckets: len(t.buckets), Mappings: t.count, Rehashes: t.rehashes}
}

// Destroy освобождает бакеты и копии ключей. Значения не трогаются.
// После Destroy любые операции над таблицей возвращают ErrInvalidArgument.
func (t *Table[V]) Destroy() {
	if t == nil {
		logging.GetComponentLogger("htable").Warn("attempted to destroy nil table")
		return
	}
	t.buckets = nil
	t.count = 0
}

// Add добавляет запись. Ключ копируется, значение сохраняется как есть.
func (t *Table[V]) Add(key []byte, value V) error {
	if err := t.validate(key, "add"); err != nil {
		return err
	}
	if isNil(value) {
		t.log.Warn("attempted to add a nil value to table")
		return fmt.Errorf("%w: nil value", ErrInvalidArgument)
	}
	if t.indexOf(key) >= 0 {
		t.log.Warn("unable to add mapping to table, key already exists")
		return ErrDuplicateKey
	}

	if insert(t.buckets, t.hash, key, value) {
		t.count++
		return nil
	}

	// Полный круг без свободного слота: растём и пробуем ещё раз.
	if err := t.rehash(growScale); err != nil {
		t.log.Warn("rehash failed: %v", err)
		return err
	}
	if !insert(t.buckets, t.hash, key, value) {
		t.log.Error("no free bucket after rehash to %d buckets", len(t.buckets))
		return fmt.Errorf("%w: no free bucket after rehash", ErrOutOfMemory)
	}
	t.count++
	return nil
}

// Lookup ищет значение по ключу.
func (t *Table[V]) Lookup(key []byte) (V, Result) {
	var zero V
	if err := t.validate(key, "lookup"); err != nil {
		return zero, InvalidCall
	}
	i := t.indexOf(key)
	if i < 0 {
		return zero, NotFound
	}
	return t.buckets[i].value, Found
}

// Get является короткой формой Lookup.
func (t *Table[V]) Get(key []byte) (V, bool) {
	v, res := t.Lookup(key)
	return v, res == Found
}

// Has сообщает, есть ли ключ в таблице.
func (t *Table[V]) Has(key []byte) bool {
	_, res := t.Lookup(key)
	return res == Found
}

// Remove удаляет запись. Значение не освобождается.
func (t *Table[V]) Remove(key []byte) error {
	if err := t.validate(key, "remove"); err != nil {
		return err
	}
	i := t.indexOf(key)
	if i < 0 {
		t.log.Debug("unable to remove mapping from table, key not found")
		return ErrNotFound
	}
	t.buckets[i] = entry[V]{}
	t.count--
	return nil
}

// Keys возвращает копии всех ключей на момент вызова. Ключ из снимка
// может исчезнуть до того, как вызывающий снова обратится к таблице.
func (t *Table[V]) Keys() [][]byte {
	if t == nil {
		return nil
	}
	keys := make([][]byte, 0, t.count)
	for _, e := range t.buckets {
		if e.key != nil {
			keys = append(keys, bytes.Clone(e.key))
		}
	}
	return keys
}

// Range вызывает fn для каждой записи в порядке бакетов, пока fn
// возвращает true. Изменять таблицу внутри fn нельзя.
func (t *Table[V]) Range(fn func(key []byte, value V) bool) {
	if t == nil {
		return
	}
	for _, e := range t.buckets {
		if e.key == nil {
			continue
		}
		if !fn(e.key, e.value) {
			return
		}
	}
}

func (t *Table[V]) validate(key []byte, op string) error {
	if t == nil {
		logging.GetComponentLogger("htable").Warn("attempted %s on a nil table", op)
		return fmt.Errorf("%w: nil table", ErrInvalidArgument)
	}
	if t.buckets == nil {
		t.log.Warn("attempted %s on a destroyed table", op)
		return fmt.Errorf("%w: table destroyed", ErrInvalidArgument)
	}
	if len(key) == 0 {
		t.log.Warn("attempted %s using an empty key", op)
		return fmt.Errorf("%w: empty key", ErrInvalidArgument)
	}
	return nil
}

// indexOf обходит таблицу по кругу от стартового индекса. Пустые слоты не
// прерывают поиск: удаление обнуляет слот без надгробия.
func (t *Table[V]) indexOf(key []byte) int {
	n := len(t.buckets)
	start := int(t.hash(key) % uint64(n))
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if e := &t.buckets[i]; e.key != nil && bytes.Equal(e.key, key) {
			return i
		}
	}
	return -1
}

// rehash строит массив бакетов в scale раз больше и переносит в него все
// записи. При ошибке исходная таблица не меняется.
func (t *Table[V]) rehash(scale int) error {
	if scale < 2 {
		return fmt.Errorf("%w: scale %d is less than 2", ErrInvalidArgument, scale)
	}
	old := len(t.buckets)
	if old > math.MaxInt/scale {
		return fmt.Errorf("%w: cannot grow beyond %d buckets", ErrOutOfMemory, old)
	}
	size := old * scale
	if t.maxBuckets > 0 && size > t.maxBuckets {
		return fmt.Errorf("%w: growing to %d buckets exceeds limit %d", ErrOutOfMemory, size, t.maxBuckets)
	}

	next := make([]entry[V], size)
	for _, e := range t.buckets {
		if e.key == nil {
			continue
		}
		if !insert(next, t.hash, e.key, e.value) {
			return fmt.Errorf("%w: rehash lost a mapping", ErrOutOfMemory)
		}
	}

	t.buckets = next
	t.rehashes++
	t.log.Debug("rehashed table (%p) from %d to %d buckets", t, old, size)
	return nil
}

// insert кладёт копию ключа в первый свободный слот по кругу.
func insert[V any](buckets []entry[V], hash HashFunc, key []byte, value V) bool {
	n := len(buckets)
	start := int(hash(key) % uint64(n))
	for k := 0; k < n; k++ {
		i := (start + k) % n
		if buckets[i].key == nil {
			buckets[i] = entry[V]{key: bytes.Clone(key), value: value}
			return true
		}
	}
	return false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func,
		reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	default:
		return false
	}
}
