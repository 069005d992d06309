package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/fishbowl/internal/store"
)

// ReaperConfig holds sweep settings.
type ReaperConfig struct {
	Interval time.Duration
}

// DefaultReaperConfig returns the default reaper configuration.
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{Interval: time.Minute}
}

// Reaper periodically removes session state whose roster is empty. The
// last-leaver teardown is best effort: a client that dies between its own
// roster removal and the teardown leaks the session record and words. The
// reaper sweeps those leftovers. It carries the same roster race as the
// leave path, and is safe for the same reason: every removal is idempotent.
type Reaper struct {
	store  store.Store
	clock  clockwork.Clock
	config ReaperConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewReaper creates a reaper sweeping the given store.
func NewReaper(st store.Store, clock clockwork.Clock, cfg ReaperConfig) *Reaper {
	return &Reaper{
		store:    st,
		clock:    clock,
		config:   cfg,
		stopChan: make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper already running")
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx)

	log.Info().Dur("interval", r.config.Interval).Msg("session reaper started")
	return nil
}

// Stop halts the sweep loop and waits for it to exit.
func (r *Reaper) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper not running")
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()

	log.Info().Msg("session reaper stopped")
	return nil
}

func (r *Reaper) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.Chan():
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every session that still has a record or words
// and tears down those with empty rosters.
func (r *Reaper) Sweep(ctx context.Context) {
	ids := make(map[string]struct{})
	for _, root := range []string{GamesRoot(), WordsRoot()} {
		snap, err := r.store.Get(ctx, root)
		if err != nil {
			log.Warn().Err(err).Str("path", root).Msg("reaper failed to list sessions")
			continue
		}
		for id := range snap.Children {
			ids[id] = struct{}{}
		}
	}

	for id := range ids {
		roster, err := r.store.QueryEqualTo(ctx, PlayersRoot(), id)
		if err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("reaper failed to read roster")
			continue
		}
		if roster.Exists() {
			continue
		}
		if err := r.store.Remove(ctx, GamePath(id)); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("reaper failed to remove session record")
		}
		if err := r.store.Remove(ctx, WordsPath(id)); err != nil {
			log.Warn().Err(err).Str("session_id", id).Msg("reaper failed to remove session words")
		}
		log.Info().Str("session_id", id).Msg("reaped abandoned session")
	}
}
