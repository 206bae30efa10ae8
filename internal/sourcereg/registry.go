// Package sourcereg is the in-process registry mapping a SourceIdentifier to
// its source.Source, seeded from a JSON manifest and hot-reloaded whenever
// that file changes on disk. It is the concrete, ambient answer to "the
// per-source wiring is supplied by the host": the host here is the manifest
// plus whichever Factory kinds the process registers before Start
package sourcereg

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"suggestfed/internal/platform/logger"
	"suggestfed/internal/suggest/domain"
	"suggestfed/internal/suggest/source"
)

// Factory builds a source.Source from one manifest entry
type Factory func(Entry) (source.Source, error)

// Registry holds the live package+class -> source.Source mapping
type Registry struct {
	mu       sync.RWMutex
	sources  map[string]source.Source
	order    []string
	path     string
	log      logger.Logger
	factories map[string]Factory

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// New builds an empty Registry watching the manifest at path. "http" is
// registered as a built-in Factory kind; callers add more via RegisterFactory
// before calling Load
func New(path string, log logger.Logger) *Registry {
	r := &Registry{
		sources:   map[string]source.Source{},
		path:      path,
		log:       log,
		factories: map[string]Factory{},
	}
	r.RegisterFactory("http", func(e Entry) (source.Source, error) { return NewHTTPSource(e), nil })
	return r
}

// RegisterFactory adds or replaces the builder used for manifest entries
// whose "kind" field equals kind
func (r *Registry) RegisterFactory(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Load reads the manifest once and replaces the live registry atomically
func (r *Registry) Load() error {
	entries, err := loadManifest(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	factories := make(map[string]Factory, len(r.factories))
	for k, v := range r.factories {
		factories[k] = v
	}
	r.mu.Unlock()

	built := map[string]source.Source{}
	var order []string
	for _, e := range entries {
		f, ok := factories[e.Kind]
		if !ok {
			return fmt.Errorf("sourcereg: no factory registered for kind %q (%s)", e.Kind, e.Identifier())
		}
		src, err := f(e)
		if err != nil {
			return fmt.Errorf("sourcereg: build %s: %w", e.Identifier(), err)
		}
		key := e.Identifier().String()
		built[key] = src
		order = append(order, key)
	}

	r.mu.Lock()
	r.sources = built
	r.order = order
	r.mu.Unlock()

	r.log.Info().Str("manifest", r.path).Int("sources", len(built)).Msg("sourcereg: manifest loaded")
	return nil
}

// Lookup implements refresh.SourceLookup/mux's lookup dependency
func (r *Registry) Lookup(id domain.SourceIdentifier) (source.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id.String()]
	return src, ok
}

// All returns every currently registered source, in manifest order
func (r *Registry) All() []source.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]source.Source, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.sources[key])
	}
	return out
}

// Watch starts watching the manifest's directory and reloads on any write or
// create event naming the manifest file, logging (not failing) a reload that
// errors so one bad edit doesn't take the registry down. Stops when ctx is
// canceled or Close is called
func (r *Registry) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sourcereg: new watcher: %w", err)
	}
	dir := filepath.Dir(r.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("sourcereg: watch %s: %w", dir, err)
	}

	r.mu.Lock()
	r.watcher = w
	r.done = make(chan struct{})
	done := r.done
	r.mu.Unlock()

	want := filepath.Clean(r.path)
	go func() {
		defer close(done)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != want {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.Load(); err != nil {
					r.log.Error().Err(err).Str("manifest", r.path).Msg("sourcereg: reload failed, keeping previous registry")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.log.Error().Err(err).Msg("sourcereg: watcher error")
			}
		}
	}()
	return nil
}

// Close stops the watcher goroutine, if one was started. Idempotent
func (r *Registry) Close() {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w != nil {
		w.Close()
	}
}
