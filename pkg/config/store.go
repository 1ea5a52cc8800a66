package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Store holds the current snapshot. Readers get a pointer that is never
// mutated; writers swap in a new snapshot whole.
type Store struct {
	current *atomic.Pointer[Config]
}

// NewStore returns a store holding cfg, or the defaults when cfg is nil.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	return &Store{current: atomic.NewPointer(cfg)}
}

// Load returns the current snapshot. Callers must not modify it.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// Replace validates cfg and makes it current.
func (s *Store) Replace(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	s.current.Store(cfg)
	return nil
}

// Update applies fn to a copy of the current snapshot and swaps it in if it
// validates.
func (s *Store) Update(fn func(*Config)) error {
	next := s.Load().Clone()
	fn(next)
	return s.Replace(next)
}

// Watch reloads path into store whenever it changes, until ctx is done. A
// file that fails to parse or validate is logged and the previous snapshot
// stays in effect.
func Watch(ctx context.Context, path string, store *Store, logger *zap.SugaredLogger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}

	// Editors often replace the file, which drops a watch on the file
	// itself, so watch the directory and filter by name.
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return errors.Wrap(err, "resolve config path")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "watch %s", filepath.Dir(abs))
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(abs)
				if err != nil {
					logger.Warnf("config reload rejected, keeping previous: %v", err)
					continue
				}
				if err := store.Replace(cfg); err != nil {
					logger.Warnf("config reload rejected, keeping previous: %v", err)
					continue
				}
				logger.Infof("config reloaded from %s", abs)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("config watcher: %v", err)
			}
		}
	}()
	return nil
}
