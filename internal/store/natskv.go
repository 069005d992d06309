package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSKVConfig holds connection settings for the JetStream KV backend.
type NATSKVConfig struct {
	URL           string
	Bucket        string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSKVConfig returns the default NATS KV configuration.
func DefaultNATSKVConfig() NATSKVConfig {
	return NATSKVConfig{
		URL:           nats.DefaultURL,
		Bucket:        "fishbowl",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NATSKV is a Store backed by a NATS JetStream Key-Value bucket. Slash
// paths map to dot-separated KV keys so that a subtree subscription is a
// "prefix.>" watcher. Per-key writes are last-write-wins; nothing spans
// keys atomically, which is exactly the consistency the lobby assumes.
type NATSKV struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	config NATSKVConfig
}

// NewNATSKV connects to NATS and creates or binds the KV bucket.
func NewNATSKV(ctx context.Context, cfg NATSKVConfig) (*NATSKV, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "fishbowl lobby state",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create KV bucket: %w", err)
	}

	log.Info().Str("bucket", cfg.Bucket).Str("url", cfg.URL).Msg("bound JetStream KV bucket")
	return &NATSKV{nc: nc, kv: kv, config: cfg}, nil
}

// Close shuts the NATS connection down.
func (s *NATSKV) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

func (s *NATSKV) Get(ctx context.Context, path string) (Snapshot, error) {
	snap := Snapshot{Path: path}
	key := toKey(path)

	entry, err := s.kv.Get(ctx, key)
	if err == nil {
		snap.Value = string(entry.Value())
	} else if !errors.Is(err, jetstream.ErrKeyNotFound) {
		return snap, &OperationError{Op: "get", Path: path, Err: err}
	}

	keys, err := s.keysUnder(ctx, key)
	if err != nil {
		return snap, &OperationError{Op: "get", Path: path, Err: err}
	}
	for _, k := range keys {
		if snap.Children == nil {
			snap.Children = make(map[string]string)
		}
		seg, _, nested := strings.Cut(strings.TrimPrefix(k, key+"."), ".")
		if nested {
			if _, ok := snap.Children[seg]; !ok {
				snap.Children[seg] = ""
			}
			continue
		}
		child, err := s.kv.Get(ctx, k)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return snap, &OperationError{Op: "get", Path: path, Err: err}
		}
		snap.Children[seg] = string(child.Value())
	}
	return snap, nil
}

func (s *NATSKV) Set(ctx context.Context, path, value string) error {
	if _, err := s.kv.PutString(ctx, toKey(path), value); err != nil {
		return &OperationError{Op: "set", Path: path, Err: err}
	}
	return nil
}

func (s *NATSKV) Update(ctx context.Context, path string, fields map[string]string) error {
	for k, v := range fields {
		if _, err := s.kv.PutString(ctx, toKey(path+"/"+k), v); err != nil {
			return &OperationError{Op: "update", Path: path + "/" + k, Err: err}
		}
	}
	return nil
}

func (s *NATSKV) Remove(ctx context.Context, path string) error {
	key := toKey(path)
	keys, err := s.keysUnder(ctx, key)
	if err != nil {
		return &OperationError{Op: "remove", Path: path, Err: err}
	}
	keys = append(keys, key)
	for _, k := range keys {
		if err := s.kv.Purge(ctx, k); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return &OperationError{Op: "remove", Path: path, Err: err}
		}
	}
	return nil
}

func (s *NATSKV) Push(ctx context.Context, path, value string) (string, error) {
	key := uuid.NewString()
	if _, err := s.kv.PutString(ctx, toKey(path)+"."+key, value); err != nil {
		return "", &OperationError{Op: "push", Path: path, Err: err}
	}
	return key, nil
}

func (s *NATSKV) QueryEqualTo(ctx context.Context, collection, key string) (Snapshot, error) {
	return s.Get(ctx, collection+"/"+key)
}

func (s *NATSKV) Subscribe(ctx context.Context, path string) (*Subscription, error) {
	prefix := toKey(path)
	watcher, err := s.kv.Watch(ctx, prefix+".>")
	if err != nil {
		return nil, &OperationError{Op: "subscribe", Path: path, Err: err}
	}

	updates := make(chan Snapshot, 1)
	sub := &Subscription{
		updates: updates,
		stop: func() {
			if err := watcher.Stop(); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to stop KV watcher")
			}
		},
	}

	go func() {
		defer close(updates)
		state := make(map[string]string)
		replayDone := false
		for entry := range watcher.Updates() {
			if entry == nil {
				// Initial replay complete; deliver the first snapshot.
				replayDone = true
				deliverLatest(updates, fold(path, prefix, state))
				continue
			}
			switch entry.Operation() {
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				delete(state, entry.Key())
			default:
				state[entry.Key()] = string(entry.Value())
			}
			if replayDone {
				deliverLatest(updates, fold(path, prefix, state))
			}
		}
	}()

	return sub, nil
}

// toKey converts a slash path into a dot-separated bucket key so that
// descendants share a subject hierarchy.
func toKey(path string) string {
	return strings.ReplaceAll(path, "/", ".")
}

// keysUnder lists the bucket keys strictly below prefix.
func (s *NATSKV) keysUnder(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	defer lister.Stop()

	var keys []string
	for k := range lister.Keys() {
		if strings.HasPrefix(k, prefix+".") {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// fold materializes the immediate children of the watched path from the
// accumulated key state. Branch children appear with an empty value.
func fold(path, prefix string, state map[string]string) Snapshot {
	snap := Snapshot{Path: path}
	for k, v := range state {
		if snap.Children == nil {
			snap.Children = make(map[string]string)
		}
		seg, _, nested := strings.Cut(strings.TrimPrefix(k, prefix+"."), ".")
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

// deliverLatest replaces whatever snapshot is pending on ch with snap.
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case ch <- snap:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
