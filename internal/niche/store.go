package niche

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"
)

// Store holds the active registries and swaps them atomically on reload.
// Readers never block; a failed reload keeps the previous set.
type Store struct {
	path         string
	defaultNiche string
	logger       *slog.Logger
	current      atomic.Pointer[map[string]*Registry]
}

// NewStore loads path (file or directory) and returns a ready store.
func NewStore(path, defaultNiche string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, defaultNiche: defaultNiche, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewStaticStore wraps already-built registries. Reload is a no-op.
func NewStaticStore(defaultNiche string, regs ...*Registry) *Store {
	m := make(map[string]*Registry, len(regs))
	for _, r := range regs {
		m[r.ID()] = r
	}
	s := &Store{defaultNiche: defaultNiche, logger: slog.Default()}
	s.current.Store(&m)
	return s
}

// Reload re-reads the configured path.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	start := time.Now()
	regs, err := LoadPath(s.path)
	if err != nil {
		s.logger.Error("niche.reload.error", "path", s.path, "err", err)
		return err
	}
	if s.defaultNiche != "" {
		if _, ok := regs[s.defaultNiche]; !ok {
			err := &ConfigError{Path: s.path, Violations: []string{fmt.Sprintf("default niche %q not found", s.defaultNiche)}}
			s.logger.Error("niche.reload.error", "path", s.path, "err", err)
			return err
		}
	}
	s.current.Store(&regs)
	for id, r := range regs {
		for _, w := range r.Warnings() {
			s.logger.Warn("niche.config.warning", "niche", id, "warning", w)
		}
	}
	s.logger.Info("niche.reload.ok", "path", s.path, "niches", len(regs), "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// Get returns the registry for nicheID; an empty id selects the default niche.
func (s *Store) Get(nicheID string) (*Registry, bool) {
	m := s.current.Load()
	if m == nil {
		return nil, false
	}
	if nicheID == "" {
		nicheID = s.defaultNiche
	}
	r, ok := (*m)[nicheID]
	return r, ok
}

// Lookup is Get that reports unknown niches as an error.
func (s *Store) Lookup(nicheID string) (*Registry, error) {
	r, ok := s.Get(nicheID)
	if !ok {
		return nil, fmt.Errorf("niche %q is not loaded", nicheID)
	}
	return r, nil
}

// WatchSignals reloads on SIGHUP until ctx is done.
func (s *Store) WatchSignals(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			_ = s.Reload()
		}
	}
}
