package orchestrator

import (
	"fmt"
	"sync"
)

const memoryShards = 16

// SignalMemory remembers the last notified signal per (chat, symbol) and
// serializes access per key so concurrent workers cannot double-notify. The
// memory is in-process only; a restart clears it and the first post-restart
// change re-notifies.
type SignalMemory struct {
	shards [memoryShards]*memoryShard
}

type memoryShard struct {
	mu   sync.Mutex
	keys map[string]*memoryEntry
}

type memoryEntry struct {
	mu   sync.Mutex
	last string
}

// NewSignalMemory creates an empty memory.
func NewSignalMemory() *SignalMemory {
	m := &SignalMemory{}
	for i := range m.shards {
		m.shards[i] = &memoryShard{keys: make(map[string]*memoryEntry)}
	}
	return m
}

// MemoryKey is a held (chat, symbol) lock. The holder may read and update the
// last signal; Release unlocks the key.
type MemoryKey struct {
	entry *memoryEntry
}

// Acquire locks the (chat, symbol) key for a read-compare-notify-write
// sequence. At most one worker holds a given key at a time.
func (m *SignalMemory) Acquire(chatID int64, symbol string) *MemoryKey {
	shard := m.shards[uint64(chatID)%memoryShards]
	key := fmt.Sprintf("%d:%s", chatID, symbol)

	shard.mu.Lock()
	e, ok := shard.keys[key]
	if !ok {
		e = &memoryEntry{}
		shard.keys[key] = e
	}
	shard.mu.Unlock()

	e.mu.Lock()
	return &MemoryKey{entry: e}
}

// Last returns the last notified signal, empty when none.
func (k *MemoryKey) Last() string {
	return k.entry.last
}

// Set records the last notified signal.
func (k *MemoryKey) Set(signal string) {
	k.entry.last = signal
}

// Release unlocks the key.
func (k *MemoryKey) Release() {
	k.entry.mu.Unlock()
}
