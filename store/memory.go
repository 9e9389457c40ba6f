package store

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// ErrWrongType mirrors Redis' WRONGTYPE reply.
var ErrWrongType = errors.New("store: operation against a key holding the wrong kind of value")

type kind int

const (
	kindString kind = iota
	kindSet
	kindHash
	kindList
)

type entry struct {
	kind      kind
	str       string
	set       map[string]struct{}
	hash      map[string]string
	list      []string
	expiresAt time.Time
}

// MemoryStore is a single-process Store. Expired keys are dropped lazily on
// access.
type MemoryStore struct {
	data  map[string]*entry
	mutex sync.Mutex
	now   func() time.Time
	rng   *rand.Rand
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*entry),
		now:  now,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// lookup returns the live entry for key, or nil. Caller holds the mutex.
func (m *MemoryStore) lookup(key string) *entry {
	e, ok := m.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.data, key)
		return nil
	}
	return e
}

// lookupKind returns the entry for key, creating it when create is set.
func (m *MemoryStore) lookupKind(key string, k kind, create bool) (*entry, error) {
	e := m.lookup(key)
	if e == nil {
		if !create {
			return nil, nil
		}
		e = &entry{kind: k}
		switch k {
		case kindSet:
			e.set = make(map[string]struct{})
		case kindHash:
			e.hash = make(map[string]string)
		}
		m.data[key] = e
		return e, nil
	}
	if e.kind != k {
		return nil, ErrWrongType
	}
	return e, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindString, false)
	if err != nil || e == nil {
		return "", false, err
	}
	return e.str, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e := &entry{kind: kindString, str: value}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.lookup(key) != nil, nil
}

func (m *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e := m.lookup(key)
	if e == nil {
		return nil
	}
	if ttl <= 0 {
		e.expiresAt = time.Time{}
		return nil
	}
	e.expiresAt = m.now().Add(ttl)
	return nil
}

func (m *MemoryStore) SAdd(_ context.Context, key string, members ...string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(members) == 0 {
		return 0, nil
	}
	e, err := m.lookupKind(key, kindSet, true)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, member := range members {
		if _, ok := e.set[member]; ok {
			continue
		}
		e.set[member] = struct{}{}
		added++
	}
	return added, nil
}

func (m *MemoryStore) SRem(_ context.Context, key string, members ...string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindSet, false)
	if err != nil || e == nil {
		return err
	}
	for _, member := range members {
		delete(e.set, member)
	}
	if len(e.set) == 0 {
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) SMembers(_ context.Context, key string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindSet, false)
	if err != nil || e == nil {
		return nil, err
	}
	members := make([]string, 0, len(e.set))
	for member := range e.set {
		members = append(members, member)
	}
	return members, nil
}

func (m *MemoryStore) SCard(_ context.Context, key string) (int, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindSet, false)
	if err != nil || e == nil {
		return 0, err
	}
	return len(e.set), nil
}

func (m *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindSet, false)
	if err != nil || e == nil {
		return false, err
	}
	_, ok := e.set[member]
	return ok, nil
}

func (m *MemoryStore) SPop(_ context.Context, key string) (string, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindSet, false)
	if err != nil || e == nil {
		return "", false, err
	}
	if len(e.set) == 0 {
		delete(m.data, key)
		return "", false, nil
	}
	// map iteration order is not random enough to rely on
	n := m.rng.Intn(len(e.set))
	for member := range e.set {
		if n == 0 {
			delete(e.set, member)
			if len(e.set) == 0 {
				delete(m.data, key)
			}
			return member, true, nil
		}
		n--
	}
	return "", false, nil
}

func (m *MemoryStore) HGet(_ context.Context, key, field string) (string, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindHash, false)
	if err != nil || e == nil {
		return "", false, err
	}
	v, ok := e.hash[field]
	return v, ok, nil
}

func (m *MemoryStore) HSet(_ context.Context, key string, fields map[string]string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindHash, true)
	if err != nil {
		return err
	}
	for f, v := range fields {
		e.hash[f] = v
	}
	return nil
}

func (m *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindHash, false)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if e == nil {
		return out, nil
	}
	for f, v := range e.hash {
		out[f] = v
	}
	return out, nil
}

func (m *MemoryStore) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindHash, true)
	if err != nil {
		return 0, err
	}
	var current int64
	if raw, ok := e.hash[field]; ok {
		current, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, err
		}
	}
	current += delta
	e.hash[field] = strconv.FormatInt(current, 10)
	return current, nil
}

func (m *MemoryStore) RPush(_ context.Context, key string, values ...string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindList, true)
	if err != nil {
		return err
	}
	e.list = append(e.list, values...)
	return nil
}

func (m *MemoryStore) LRange(_ context.Context, key string) ([]string, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	e, err := m.lookupKind(key, kindList, false)
	if err != nil || e == nil {
		return nil, err
	}
	out := make([]string, len(e.list))
	copy(out, e.list)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
