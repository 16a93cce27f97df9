package docstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store.  Bodies are kept JSON-encoded so callers
// never share maps with the store.
type Memory struct {
	mu    sync.RWMutex
	colls map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{colls: map[string]map[string][]byte{}}
}

func (m *Memory) Get(_ context.Context, coll, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.colls[coll][id]
	if !ok {
		return nil, ErrNotFound
	}
	return decodeRaw(raw, id)
}

func (m *Memory) Query(_ context.Context, coll string, f Filter) ([]Document, error) {
	if f.Field != "" {
		if err := checkField(f.Field); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for id, raw := range m.colls[coll] {
		d, err := decodeRaw(raw, id)
		if err != nil {
			return nil, err
		}
		if matches(d, f) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, coll, id string, doc Document) error {
	raw, err := json.Marshal(body(doc))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coll(coll)[id] = raw
	return nil
}

func (m *Memory) Create(_ context.Context, coll, id string, doc Document) error {
	raw, err := json.Marshal(body(doc))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(coll)
	if _, ok := c[id]; ok {
		return ErrAlreadyExists
	}
	c[id] = raw
	return nil
}

func (m *Memory) Add(ctx context.Context, coll string, doc Document) (string, error) {
	id := uuid.NewString()
	return id, m.Create(ctx, coll, id, doc)
}

func (m *Memory) Update(_ context.Context, coll, id string, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.colls[coll][id]
	if !ok {
		return ErrNotFound
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	next, err := json.Marshal(apply(d, p))
	if err != nil {
		return err
	}
	m.colls[coll][id] = next
	return nil
}

func (m *Memory) Delete(_ context.Context, coll, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.colls[coll][id]; !ok {
		return ErrNotFound
	}
	delete(m.colls[coll], id)
	return nil
}

func (m *Memory) Close(context.Context) error { return nil }

// coll returns the named collection, creating it.  Callers hold mu.
func (m *Memory) coll(name string) map[string][]byte {
	c, ok := m.colls[name]
	if !ok {
		c = map[string][]byte{}
		m.colls[name] = c
	}
	return c
}

func decodeRaw(raw []byte, id string) (Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Document{}
	}
	d[IDField] = id
	return d, nil
}
