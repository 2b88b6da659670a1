package cart

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// FileStore persists cart snapshots as a JSON file. A missing file is an
// empty cart, matching first-visit behavior of browser storage.
type FileStore struct {
	Path string
}

func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, err
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt storage resets the cart rather than bricking checkout.
		return State{}, nil
	}
	return state, nil
}

func (f *FileStore) Save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o644)
}

// MemoryStore is the test double for Persistence.
type MemoryStore struct {
	mu    sync.Mutex
	state State
}

func (m *MemoryStore) Load() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryStore) Save(state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

// Broadcaster is an in-process Syncer modelled on a storage-event bus.
// Snapshots are delivered to every subscriber; the publishing store absorbs
// its own echo as an idempotent apply.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]func(State)
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(State))}
}

func (b *Broadcaster) Publish(state State) {
	b.mu.Lock()
	fns := make([]func(State), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (b *Broadcaster) Subscribe(fn func(State)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
