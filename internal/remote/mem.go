package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pkordes/tripmate/internal/domain"
)

type memDoc struct {
	state     []byte
	updatedAt time.Time
}

// MemStore is an in-process Store with the same semantics as the server:
// whole-document upsert and change delivery to every subscriber, the writer
// included. Documents are held encoded so callers never share memory with
// the store. Change delivery happens synchronously inside Save, after the
// store's lock is released.
type MemStore struct {
	mu     sync.Mutex
	docs   map[string]memDoc
	subs   map[string]map[int]func(domain.TripState)
	nextID int
	saves  map[string]int

	loadErr, saveErr, subscribeErr error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		docs:  make(map[string]memDoc),
		subs:  make(map[string]map[int]func(domain.TripState)),
		saves: make(map[string]int),
	}
}

// FailLoad makes every Load return err until called again with nil.
func (m *MemStore) FailLoad(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

// FailSave makes every Save return err until called again with nil.
func (m *MemStore) FailSave(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// FailSubscribe makes every Subscribe return err until called again with nil.
func (m *MemStore) FailSubscribe(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribeErr = err
}

// Saves returns how many successful saves key has received.
func (m *MemStore) Saves(key domain.TripKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[key.Address()]
}

// Subscribers returns the number of live subscriptions for key.
func (m *MemStore) Subscribers(key domain.TripKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs[key.Address()])
}

// UpdatedAt returns the server-side time of key's last write.
func (m *MemStore) UpdatedAt(key domain.TripKey) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[key.Address()]
	return d.updatedAt, ok
}

// Load implements Store.
func (m *MemStore) Load(_ context.Context, key domain.TripKey) (*domain.TripState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, fmt.Errorf("remote.MemStore.Load: %w", m.loadErr)
	}
	d, ok := m.docs[key.Address()]
	if !ok {
		return nil, nil
	}
	var s domain.TripState
	if err := json.Unmarshal(d.state, &s); err != nil {
		return nil, fmt.Errorf("remote.MemStore.Load: %w: %v", ErrBackend, err)
	}
	return &s, nil
}

// Save implements Store.
func (m *MemStore) Save(_ context.Context, key domain.TripKey, state domain.TripState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("remote.MemStore.Save: %w", err)
	}

	m.mu.Lock()
	if m.saveErr != nil {
		err := m.saveErr
		m.mu.Unlock()
		return fmt.Errorf("remote.MemStore.Save: %w", err)
	}
	addr := key.Address()
	m.docs[addr] = memDoc{state: data, updatedAt: time.Now()}
	m.saves[addr]++
	callbacks := make([]func(domain.TripState), 0, len(m.subs[addr]))
	for _, fn := range m.subs[addr] {
		callbacks = append(callbacks, fn)
	}
	m.mu.Unlock()

	for _, fn := range callbacks {
		var s domain.TripState
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("remote.MemStore.Save: %w", err)
		}
		fn(s)
	}
	return nil
}

// Subscribe implements Store.
func (m *MemStore) Subscribe(_ context.Context, key domain.TripKey, onChange func(domain.TripState)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return nil, fmt.Errorf("remote.MemStore.Subscribe: %w", m.subscribeErr)
	}

	addr := key.Address()
	if m.subs[addr] == nil {
		m.subs[addr] = make(map[int]func(domain.TripState))
	}
	id := m.nextID
	m.nextID++
	m.subs[addr][id] = onChange

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs[addr], id)
			if len(m.subs[addr]) == 0 {
				delete(m.subs, addr)
			}
		})
	}, nil
}
