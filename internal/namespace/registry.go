// Package namespace owns the process-wide registry of per-namespace
// handles: one Store file and one Engine serializer goroutine each, opened
// lazily on first touch and kept alive until the process exits (spec §5:
// "The namespace registry (map of handles) is protected by a lock held
// only for open/close; per-namespace engine state is owned by that
// namespace's serializer").
package namespace

import (
	"context"
	"fmt"
	"sync"

	"github.com/monument-sim/monument/internal/engine"
	"github.com/monument-sim/monument/internal/store"
)

// BootstrapSpec carries the first-touch parameters for a namespace that
// has never been opened before. Subsequent opens ignore it; the store's
// meta table is already authoritative.
type BootstrapSpec struct {
	Width, Height    int
	Goal             string
	Epoch            int64
	VisibilityRadius int

	// Tick-loop overrides. These are applied whenever Open constructs the
	// engine goroutine (not only when the store file is new), since they
	// configure the engine rather than persisted world state; an Open that
	// finds the namespace already open ignores them. Nil/zero means "use
	// the registry default".
	ScoringInterval        int64
	ScoringEnabled         *bool
	EliminateAtOrBelowZero *bool
}

// Handle is one namespace's live resources: its Store and the Engine
// goroutine serializing its tick state machine.
type Handle struct {
	Namespace string
	Store     *store.Store
	Engine    *engine.Engine

	cancel context.CancelFunc
	done   chan struct{}

	fatalMu sync.Mutex
	fatal   error // set once, per spec §7 "SchemaMismatch and repeated Internal are fatal"
}

// Fatal reports the error that made this namespace refuse further
// requests, if any.
func (h *Handle) Fatal() error {
	h.fatalMu.Lock()
	defer h.fatalMu.Unlock()
	return h.fatal
}

func (h *Handle) markFatal(err error) {
	h.fatalMu.Lock()
	defer h.fatalMu.Unlock()
	if h.fatal == nil {
		h.fatal = err
	}
}

// Registry is the process-wide map of open namespace handles.
type Registry struct {
	dataDir string
	cfg     engine.Config

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewRegistry creates an empty registry rooted at dataDir (spec §6:
// "Data directory: data/sims/").
func NewRegistry(dataDir string, cfg engine.Config) *Registry {
	return &Registry{
		dataDir: dataDir,
		cfg:     cfg,
		handles: map[string]*Handle{},
	}
}

// Open returns the existing handle for id, or opens and bootstraps one.
// bootstrap's world fields are written only when the namespace's meta
// table is still empty; its tick-loop overrides apply to the engine this
// call starts. For an already-open namespace bootstrap is ignored.
func (r *Registry) Open(ctx context.Context, id string, bootstrap BootstrapSpec) (*Handle, error) {
	if err := Validate(id); err != nil {
		return nil, &engine.Error{Code: engine.CodeInvalidNamespace, Detail: err.Error()}
	}

	r.mu.Lock()
	if h, ok := r.handles[id]; ok {
		r.mu.Unlock()
		if err := h.Fatal(); err != nil {
			return nil, err
		}
		return h, nil
	}

	path, err := StorePath(r.dataDir, id)
	if err != nil {
		r.mu.Unlock()
		return nil, &engine.Error{Code: engine.CodeInvalidNamespace, Detail: err.Error()}
	}

	s, err := store.Open(path)
	if err != nil {
		r.mu.Unlock()
		return nil, translateStoreErr(err)
	}

	if err := engine.BootstrapWorld(ctx, s, bootstrap.Width, bootstrap.Height, bootstrap.Goal, bootstrap.Epoch, bootstrap.VisibilityRadius); err != nil {
		_ = s.Close()
		r.mu.Unlock()
		return nil, err
	}

	w, err := engine.LoadWorld(ctx, id, s)
	if err != nil {
		_ = s.Close()
		r.mu.Unlock()
		return nil, err
	}

	effCfg := r.cfg
	if bootstrap.ScoringInterval > 0 {
		effCfg.ScoringInterval = bootstrap.ScoringInterval
	}
	if bootstrap.ScoringEnabled != nil {
		effCfg.ScoringEnabled = *bootstrap.ScoringEnabled
	}
	if bootstrap.EliminateAtOrBelowZero != nil {
		effCfg.EliminateAtOrBelowZero = *bootstrap.EliminateAtOrBelowZero
	}

	eng := engine.NewEngine(id, s, w, effCfg)
	runCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{Namespace: id, Store: s, Engine: eng, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		if runErr := eng.Run(runCtx); runErr != nil {
			h.markFatal(runErr)
		}
	}()

	r.handles[id] = h
	r.mu.Unlock()
	return h, nil
}

// Get returns an already-open handle without opening a new one.
func (r *Registry) Get(id string) (*Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	return h, ok
}

// Close stops every namespace's serializer and closes its store. Intended
// for graceful shutdown only.
func (r *Registry) Close() {
	r.mu.Lock()
	handles := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.cancel()
		<-h.done
		_ = h.Store.Close()
	}
}

func translateStoreErr(err error) error {
	se, ok := err.(*store.Error)
	if !ok {
		return &engine.Error{Code: engine.CodeInternal, Detail: err.Error()}
	}
	switch se.Kind {
	case store.KindSchemaMismatch:
		return &engine.Error{Code: engine.CodeSchemaMismatch, Detail: se.Error()}
	case store.KindBusy:
		return &engine.Error{Code: engine.CodeStoreBusy, Detail: se.Error()}
	default:
		return &engine.Error{Code: engine.CodeIO, Detail: fmt.Sprintf("%v", se)}
	}
}
