package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Loaded is an immutable snapshot of a loaded artifact
type Loaded struct {
	Pipeline *Pipeline
	Path     string
	LoadedAt time.Time
}

// LoadHook is called after every load attempt
type LoadHook func(l *Loaded, err error)

// Registry holds the process-wide pipeline. The pipeline is built once at
// construction and only replaced wholesale when the artifact file changes.
type Registry struct {
	path    string
	current atomic.Pointer[Loaded]
	reloads atomic.Int64
	hook    LoadHook
}

// NewRegistry loads the artifact at path. A failed initial load is fatal.
func NewRegistry(path string, hook LoadHook) (*Registry, error) {
	r := &Registry{path: path, hook: hook}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewStaticRegistry wraps an already built pipeline
func NewStaticRegistry(p *Pipeline, path string) *Registry {
	r := &Registry{path: path}
	r.current.Store(&Loaded{Pipeline: p, Path: path, LoadedAt: time.Now()})
	return r
}

// Path returns the artifact path
func (r *Registry) Path() string {
	return r.path
}

// Current returns the active snapshot
func (r *Registry) Current() *Loaded {
	return r.current.Load()
}

// Reloads returns how many successful loads happened after the first
func (r *Registry) Reloads() int64 {
	return r.reloads.Load()
}

// Reload reads the artifact again. On failure the previous pipeline stays active.
func (r *Registry) Reload() error {
	start := time.Now()
	p, err := Load(r.path)
	if err != nil {
		if r.hook != nil {
			r.hook(nil, err)
		}
		return err
	}

	l := &Loaded{Pipeline: p, Path: r.path, LoadedAt: time.Now()}
	if r.current.Swap(l) != nil {
		r.reloads.Add(1)
	}

	log.Info().
		Str("path", r.path).
		Str("classifier", p.Clf.Kind()).
		Int("features", p.Pre.Width()).
		Dur("took", time.Since(start)).
		Msg("pipeline artifact loaded")

	if r.hook != nil {
		r.hook(l, nil)
	}
	return nil
}

// Watch reloads the artifact whenever the file is written, created or
// renamed into place. It blocks until ctx is cancelled.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create artifact watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(r.path)
	if err != nil {
		return fmt.Errorf("failed to resolve artifact path: %w", err)
	}
	// watch the directory so atomic replace-by-rename is seen
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}
	log.Info().Str("path", target).Msg("watching pipeline artifact for changes")

	const settle = 200 * time.Millisecond
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce = time.After(settle)
		case <-debounce:
			debounce = nil
			if err := r.Reload(); err != nil {
				log.Error().Err(err).Str("path", r.path).Msg("artifact reload failed, keeping previous pipeline")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("artifact watcher error")
		}
	}
}
