// Package services – keyLock
//
// This file implements the per-key serialization the core relies on. The
// system makes no assumption about how callers thread their requests, so
// every mutation of a (user, habit, day) key and every grant/revoke of a
// (user, day) award acquires the corresponding key's mutex first. Lock
// entries are reference-counted and removed when the last holder releases,
// keeping the map bounded by live concurrency rather than key cardinality.
package services

import "sync"

// keyLock hands out one mutex per string key.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyLockEntry)}
}

// Lock acquires the mutex for key and returns the matching unlock function.
// Callers must invoke the returned function exactly once, typically deferred.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyLockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
