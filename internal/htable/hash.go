package htable

import "github.com/cespare/xxhash/v2"

// HashFunc отображает байты ключа в 64-битный хэш. Индекс бакета
// вычисляется как hash % bucketCount.
type HashFunc func(key []byte) uint64

// HashOneAtATime реализует хэш Боба Дженкинса one-at-a-time.
func HashOneAtATime(key []byte) uint64 {
	var h uint32
	for _, b := range key {
		h += uint32(b)
		h += h << 10
		h ^= h >> 6
	}
	h += h << 3
	h ^= h >> 11
	h += h << 15
	return uint64(h)
}

// HashXX использует xxhash64, он лучше распределяет длинные ключи.
func HashXX(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// HashByName возвращает хэш-функцию по имени из конфигурации.
func HashByName(name string) (HashFunc, bool) {
	switch name {
	case "", "oaat", "one-at-a-time":
		return HashOneAtATime, true
	case "xxhash", "xxh64":
		return HashXX, true
	default:
		return nil, false
	}
}
