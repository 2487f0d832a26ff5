package engine

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/monument-sim/monument/internal/store"
)

// Event is one item on a namespace's live broadcast stream (spec §6 WS
// surface). The transport/ws layer fans these out; delivery is best-effort
// — a slow or disconnected client never blocks the tick.
type Event struct {
	Type        string // tick_started | submission_received | tick_resolved | paused_for_scoring | scoring_committed
	Namespace   string
	SuperTickID int64
	Phase       Phase
	Detail      any
}

// Config bundles the per-namespace tuning knobs consumed by the tick loop
// (spec §6 "Environment/config").
type Config struct {
	CollectTimeout  time.Duration
	ScoringInterval int64
	ScoringEnabled  bool

	// EliminateAtOrBelowZero opts a namespace into the original's implicit
	// elimination rule: a scoring round that drives an actor's points to
	// zero or below eliminates it (SPEC_FULL §12 "Elimination mechanics").
	// Off by default — elimination stays an explicit admin action.
	EliminateAtOrBelowZero bool
}

type submitJob struct {
	req  SubmitRequest
	resp chan submitOutcome
}

type submitOutcome struct {
	result SubmitResult
	err    error
}

type scoreJob struct {
	round AdjudicationSubmission
	resp  chan error
}

// Engine owns one namespace's serialized tick state machine: SNAPSHOT,
// COLLECT, MERGE, BROADCAST, and the scoring/epoch pause states, mirroring
// the teacher's single-goroutine World.Run select loop (spec §5: "single-
// threaded per namespace for mutating paths").
type Engine struct {
	namespace string
	store     *store.Store
	cfg       Config

	mu          sync.RWMutex // guards world/contextHash for concurrent read-only access
	world       *World
	contextHash string

	submitCh  chan submitJob
	scoreCh   chan scoreJob
	advanceCh chan chan error
	adminCh   chan adminJob
	stopCh    chan struct{}
	events    chan Event
}

type adminJob struct {
	fn   func(ctx context.Context) error
	resp chan error
}

// NewEngine wires an Engine around an already-open Store and its loaded
// World. The caller (namespace registry) owns Store's lifecycle.
func NewEngine(namespace string, s *store.Store, w *World, cfg Config) *Engine {
	return &Engine{
		namespace: namespace,
		store:     s,
		cfg:       cfg,
		world:     w,
		submitCh:  make(chan submitJob, 256),
		scoreCh:   make(chan scoreJob, 4),
		advanceCh: make(chan chan error, 4),
		adminCh:   make(chan adminJob, 16),
		stopCh:    make(chan struct{}),
		events:    make(chan Event, 256),
	}
}

// Events exposes the broadcast stream for the WS transport to drain.
func (e *Engine) Events() <-chan Event { return e.events }

// Stop signals Run to exit after the in-flight phase settles.
func (e *Engine) Stop() { close(e.stopCh) }

// Snapshot returns a read-only copy of the current world pointer and
// context hash. Safe for concurrent callers (spec §5: "Reads ... may
// proceed concurrently"); the returned *World must not be mutated.
func (e *Engine) Snapshot() (*World, string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world, e.contextHash
}

// Run drives the namespace's tick state machine until ctx is cancelled or
// Stop is called. It is the only goroutine allowed to mutate e.world.
func (e *Engine) Run(ctx context.Context) error {
	e.refreshHash()

	for {
		e.mu.RLock()
		phase := e.world.Phase
		e.mu.RUnlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		default:
		}

		switch phase {
		case PhaseSetup:
			e.setPhase(PhaseCollect)
			e.mu.RLock()
			tick := e.world.SuperTickID
			e.mu.RUnlock()
			e.emit(Event{Type: "tick_started", Namespace: e.namespace, SuperTickID: tick, Phase: PhaseCollect})

		case PhaseCollect:
			if err := e.runCollect(ctx); err != nil {
				return err
			}

		case PhaseMerge:
			if err := e.runMerge(ctx); err != nil {
				return err
			}

		case PhasePausedForScoring:
			if err := e.runPausedForScoring(ctx); err != nil {
				return err
			}

		case PhasePaused:
			if err := e.runPaused(ctx); err != nil {
				return err
			}
		}
	}
}

// runCollect services submissions until every registered non-eliminated
// actor has submitted or the collect deadline elapses (spec §4.3/§4.4).
func (e *Engine) runCollect(ctx context.Context) error {
	var timer *time.Timer
	var timerC <-chan time.Time
	if e.cfg.CollectTimeout > 0 {
		timer = time.NewTimer(e.cfg.CollectTimeout)
		timerC = timer.C
		defer timer.Stop()
	}

	for {
		if e.collectComplete(ctx) {
			e.setPhase(PhaseMerge)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-timerC:
			// COLLECT deadline elapsed: Merge synthesizes TIMEOUT rows for
			// every actor that hasn't submitted yet.
			e.setPhase(PhaseMerge)
			return nil
		case job := <-e.submitCh:
			e.mu.RLock()
			w, hash := e.world, e.contextHash
			e.mu.RUnlock()
			result, err := Submit(ctx, e.store, w, hash, job.req, time.Now())
			job.resp <- submitOutcome{result: result, err: err}
			if err == nil {
				e.emit(Event{Type: "submission_received", Namespace: e.namespace, SuperTickID: job.req.SuperTickID, Phase: PhaseCollect, Detail: job.req.ActorID})
			}
		case job := <-e.adminCh:
			job.resp <- job.fn(ctx)
		}
	}
}

// collectComplete reports whether every registered non-eliminated actor
// has a journal row for the current tick.
func (e *Engine) collectComplete(ctx context.Context) bool {
	e.mu.RLock()
	w := e.world
	e.mu.RUnlock()

	ids := w.NonEliminatedActorIDs()
	if len(ids) == 0 {
		return true
	}
	for _, id := range ids {
		ok, err := store.JournalExists(ctx, e.store.DB(), w.SuperTickID, id)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// maxMergeInternalRetries bounds how many consecutive CodeInternal merge
// failures a namespace tolerates before it is treated as fatal (spec §7:
// "repeated Internal [is] fatal"). StoreBusy failures retry too, since the
// busy_timeout pragma already bounded the wait that produced them.
const maxMergeInternalRetries = 3

func (e *Engine) runMerge(ctx context.Context) error {
	var result *MergeResult
	for attempt := 0; ; attempt++ {
		e.mu.Lock()
		w, hash := e.world, e.contextHash
		var err error
		result, err = Merge(ctx, e.store, w, hash, e.cfg.ScoringInterval, e.cfg.ScoringEnabled, time.Now())
		e.mu.Unlock()
		if err == nil {
			break
		}
		if !retryableMergeErr(err) || attempt >= maxMergeInternalRetries {
			return err
		}
	}

	e.mu.RLock()
	w := e.world
	e.mu.RUnlock()

	e.emit(Event{Type: "tick_resolved", Namespace: e.namespace, SuperTickID: result.SuperTickID, Phase: result.NextPhase, Detail: result.Outcomes})
	e.refreshHash()

	if result.NextPhase == PhasePausedForScoring {
		e.emit(Event{Type: "paused_for_scoring", Namespace: e.namespace, SuperTickID: w.SuperTickID, Phase: PhasePausedForScoring})
	}
	return nil
}

// runPausedForScoring blocks until the adjudicator submits a round (spec
// §4.8). An unbounded wait is explicitly allowed here.
func (e *Engine) runPausedForScoring(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case job := <-e.scoreCh:
			err := e.commitScoringRound(ctx, job.round)
			job.resp <- err
			if err == nil {
				e.setPhase(PhaseCollect)
				e.mu.RLock()
				tick := e.world.SuperTickID
				e.mu.RUnlock()
				e.emit(Event{Type: "scoring_committed", Namespace: e.namespace, SuperTickID: tick})
				return nil
			}
		case job := <-e.adminCh:
			job.resp <- job.fn(ctx)
		}
	}
}

// runPaused blocks until an admin call advances the epoch (AdvanceEpoch),
// servicing other admin calls meanwhile.
func (e *Engine) runPaused(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case resp := <-e.advanceCh:
			e.mu.Lock()
			e.world.Epoch += DefaultEpoch
			e.mu.Unlock()
			if err := e.persistEpoch(ctx); err != nil {
				resp <- err
				continue
			}
			resp <- nil
			e.setPhase(PhaseCollect)
			return nil
		case job := <-e.adminCh:
			job.resp <- job.fn(ctx)
		}
	}
}

func (e *Engine) persistEpoch(ctx context.Context) error {
	e.mu.RLock()
	epoch := e.world.Epoch
	e.mu.RUnlock()
	return e.store.WithTx(ctx, func(tx *sql.Tx) error {
		return store.SetMeta(ctx, tx, "epoch", strconv.FormatInt(epoch, 10))
	})
}

func retryableMergeErr(err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Code == CodeStoreBusy || e.Code == CodeInternal
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.world.Phase = p
	e.mu.Unlock()
}

func (e *Engine) refreshHash() {
	e.mu.Lock()
	e.contextHash = ContextHash(e.world)
	e.mu.Unlock()
}

func (e *Engine) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
		// Slow consumer: drop rather than block the tick (spec §6:
		// "Events are fire-and-forget; dropped clients are closed").
	}
}

// SubmitAction hands one action submission to the serializer goroutine and
// blocks until it is accepted or rejected. Safe to call concurrently.
func (e *Engine) SubmitAction(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	job := submitJob{req: req, resp: make(chan submitOutcome, 1)}
	select {
	case e.submitCh <- job:
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
	select {
	case out := <-job.resp:
		return out.result, out.err
	case <-ctx.Done():
		return SubmitResult{}, ctx.Err()
	}
}

// SubmitScoringRound hands an adjudicator payload to the serializer and
// blocks until it is committed or rejected.
func (e *Engine) SubmitScoringRound(ctx context.Context, round AdjudicationSubmission) error {
	job := scoreJob{round: round, resp: make(chan error, 1)}
	select {
	case e.scoreCh <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AdvanceEpoch unblocks a namespace stuck in PAUSED by raising its epoch
// by DefaultEpoch (supplemented admin operation, SPEC_FULL §11.1).
func (e *Engine) AdvanceEpoch(ctx context.Context) error {
	resp := make(chan error, 1)
	select {
	case e.advanceCh <- resp:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAdmin queues fn to run on the serializer goroutine between ticks and
// blocks until it completes. Used for actor registration/unregistration so
// those mutations never race with COLLECT/MERGE (SPEC_FULL §11.1).
func (e *Engine) RunAdmin(ctx context.Context, fn func(ctx context.Context) error) error {
	job := adminJob{fn: fn, resp: make(chan error, 1)}
	select {
	case e.adminCh <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
