package store

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory is a map-backed Store with in-process watchers. It is the backend
// for tests and single-node deployments; state is lost on restart.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string // full leaf path -> value
	watchers map[*watcher]struct{}
}

type watcher struct {
	path string
	ch   chan Snapshot
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data:     make(map[string]string),
		watchers: make(map[*watcher]struct{}),
	}
}

func (m *Memory) Get(ctx context.Context, path string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(path), nil
}

func (m *Memory) Set(ctx context.Context, path, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path] = value
	m.notifyLocked(path)
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range fields {
		m.data[path+"/"+k] = v
	}
	m.notifyLocked(path)
	return nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, path)
	prefix := path + "/"
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	m.notifyLocked(path)
	return nil
}

func (m *Memory) Push(ctx context.Context, path, value string) (string, error) {
	key := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[path+"/"+key] = value
	m.notifyLocked(path)
	return key, nil
}

func (m *Memory) QueryEqualTo(ctx context.Context, collection, key string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(collection + "/" + key), nil
}

func (m *Memory) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	w := &watcher{path: path, ch: make(chan Snapshot, 1)}

	m.mu.Lock()
	m.watchers[w] = struct{}{}
	w.ch <- m.snapshotLocked(path)
	m.mu.Unlock()

	sub := &Subscription{
		updates: w.ch,
		stop: func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.watchers[w]; ok {
				delete(m.watchers, w)
				close(w.ch)
			}
		},
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			sub.Close()
		}()
	}
	return sub, nil
}

// snapshotLocked materializes path: its leaf value plus immediate
// children. A child that is itself a branch appears with an empty value.
func (m *Memory) snapshotLocked(path string) Snapshot {
	snap := Snapshot{Path: path, Value: m.data[path]}
	prefix := path + "/"
	for k, v := range m.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if snap.Children == nil {
			snap.Children = make(map[string]string)
		}
		seg, _, nested := strings.Cut(k[len(prefix):], "/")
		if nested {
			if _, ok := snap.Children[seg]; !ok {
				snap.Children[seg] = ""
			}
		} else {
			snap.Children[seg] = v
		}
	}
	return snap
}

// notifyLocked re-delivers snapshots to every watcher whose path contains,
// or is contained in, the changed path. Sends never block: each watcher
// channel holds the latest snapshot only.
func (m *Memory) notifyLocked(changed string) {
	for w := range m.watchers {
		if !overlaps(changed, w.path) {
			continue
		}
		snap := m.snapshotLocked(w.path)
		select {
		case w.ch <- snap:
		default:
			select {
			case <-w.ch:
			default:
			}
			select {
			case w.ch <- snap:
			default:
			}
		}
	}
}

func overlaps(a, b string) bool {
	return a == b || strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}
