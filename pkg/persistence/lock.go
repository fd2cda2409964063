package persistence

import (
	"strings"
	"sync"
)

// KeyedMutex serializes work per key while letting distinct keys proceed
// concurrently. Entries are dropped once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the function releasing it.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()

	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}

	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()

		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}

		k.mu.Unlock()
	}
}

// ValidateID rejects identifiers that could escape a storage directory or key space.
func ValidateID(id string) error {
	if id == "" || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return ErrInvalidID
	}

	return nil
}
