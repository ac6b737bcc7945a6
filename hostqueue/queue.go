// Package hostqueue implements the bounded hostcall queue: a fast ring
// buffer backed by an overflow deque for spill, with epoch-based
// reclamation (EBR) of popped entries and a terminal safe-fallback mode.
// It is the sole channel carrying every JS-to-host request, so pushes and
// pops are kept allocation-light on the hot path; a single mutex guards
// the whole structure, mirroring the teacher's ChunkedIngress (see
// eventloop/ingress.go) rather than attempting a fully lock-free design in
// Go, where value-generic lock-free rings are awkward without unsafe code.
package hostqueue

import (
	"sync"

	"github.com/joeycumines/pi-hostbridge/bravo"
)

const (
	// FastRingCapacityDefault is the default fast-lane ring capacity.
	FastRingCapacityDefault = 256
	// OverflowCapacityDefault is the default overflow deque capacity.
	OverflowCapacityDefault = 2048

	safeFallbackBacklogMultiplier = 8
	safeFallbackBacklogMin        = 32
)

// EnqueueOutcome tags the result of a push.
type EnqueueOutcome int

const (
	// FastPath means the request landed in the ring.
	FastPath EnqueueOutcome = iota
	// OverflowPath means the request landed in the overflow deque.
	OverflowPath
	// Rejected means both lanes were full; the request was discarded.
	Rejected
)

func (o EnqueueOutcome) String() string {
	switch o {
	case FastPath:
		return "fast_path"
	case OverflowPath:
		return "overflow_path"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// EnqueueResult is returned from Queue.PushBack.
type EnqueueResult struct {
	Outcome        EnqueueOutcome
	Depth          int
	OverflowDepth  int
}

// Telemetry is a non-blocking, non-mutating snapshot of queue state.
type Telemetry struct {
	FastDepth                  int
	OverflowDepth               int
	TotalDepth                  int
	MaxDepthSeen                int
	OverflowEnqueuedTotal       uint64
	OverflowRejectedTotal       uint64
	FastCapacity                int
	OverflowCapacity            int
	ReclamationMode             ReclaimMode
	RetiredBacklog               int
	ReclaimedTotal               uint64
	CurrentEpoch                 uint64
	EpochLag                     uint64
	MaxEpochLag                  uint64
	ReclamationLatencyMaxEpochs  uint64
	FallbackTransitions          uint64
	ActiveEpochPins              int
	BravoMode                    bravo.Mode
	BravoTransitions             uint64
	BravoRollbacks               uint64
	BravoConsecutiveReadBiasWindows uint32
	BravoWriterRecoveryRemaining    uint32
	BravoLastSignature              bravo.Signature
}

type retiredNode[T any] struct {
	value        T
	retiredEpoch uint64
}

// Pin is a short-lived reader registration that forbids reclamation while
// held. Release it exactly once; calling Release twice panics in builds
// where the debug check is compiled in (it always is in this port — Go has
// no cheap release-mode strip of a bounds check like the Rust debug_assert,
// so the check is unconditional and cheap enough to keep).
type Pin struct {
	q        *pinCounter
	released bool
}

// Release drops the pin. Safe to call from any goroutine, but only once.
func (p *Pin) Release() {
	if p.released {
		panic("hostqueue: epoch pin released twice")
	}
	p.released = true
	p.q.dec()
}

type pinCounter struct {
	mu    *sync.Mutex
	count *int
}

func (c pinCounter) inc() {
	c.mu.Lock()
	*c.count++
	c.mu.Unlock()
}

func (c pinCounter) dec() {
	c.mu.Lock()
	if *c.count <= 0 {
		c.mu.Unlock()
		panic("hostqueue: epoch pin underflow")
	}
	*c.count--
	c.mu.Unlock()
}

// Queue is the bounded hostcall queue: fast ring + overflow deque + EBR
// retirement list + embedded BRAVO contention policy. Queue is safe for
// concurrent use; all operations serialize through an internal mutex.
type Queue[T any] struct {
	mu sync.Mutex

	fast         []T
	fastHead     int
	fastLen      int
	fastCapacity int

	overflow         []T
	overflowCapacity int

	overflowEnqueuedTotal uint64
	overflowRejectedTotal uint64
	maxDepthSeen          int

	mode ReclaimMode

	activePins int
	pinMu      sync.Mutex

	currentEpoch uint64
	retired      []retiredNode[T]
	reclaimedTotal uint64
	maxEpochLag    uint64
	reclamationLatencyMaxEpochs uint64
	fallbackTransitions         uint64
	safeFallbackBacklogThreshold int

	policy *bravo.State
}

// Option configures a Queue at construction time.
type Option func(*queueConfig)

type queueConfig struct {
	fastCapacity     int
	overflowCapacity int
	mode             ReclaimMode
	modeSet          bool
	bravoConfig      bravo.Config
}

// WithFastCapacity overrides the fast-ring capacity (default 256).
func WithFastCapacity(n int) Option {
	return func(c *queueConfig) { c.fastCapacity = n }
}

// WithOverflowCapacity overrides the overflow deque capacity (default 2048).
func WithOverflowCapacity(n int) Option {
	return func(c *queueConfig) { c.overflowCapacity = n }
}

// WithReclaimMode overrides the reclamation mode (default: from env, see
// ReclaimModeFromEnv).
func WithReclaimMode(mode ReclaimMode) Option {
	return func(c *queueConfig) {
		c.mode = mode
		c.modeSet = true
	}
}

// WithBravoConfig overrides the embedded contention policy's config
// (default bravo.DefaultConfig()).
func WithBravoConfig(config bravo.Config) Option {
	return func(c *queueConfig) { c.bravoConfig = config }
}

// New constructs a Queue with the given options.
func New[T any](opts ...Option) *Queue[T] {
	cfg := queueConfig{
		fastCapacity:     FastRingCapacityDefault,
		overflowCapacity: OverflowCapacityDefault,
		bravoConfig:      bravo.DefaultConfig(),
	}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.modeSet {
		cfg.mode = ReclaimModeFromEnv()
	}
	if cfg.fastCapacity < 1 {
		cfg.fastCapacity = 1
	}
	if cfg.overflowCapacity < 1 {
		cfg.overflowCapacity = 1
	}

	threshold := (cfg.fastCapacity + cfg.overflowCapacity) * safeFallbackBacklogMultiplier
	if threshold < safeFallbackBacklogMin {
		threshold = safeFallbackBacklogMin
	}

	return &Queue[T]{
		fast:                         make([]T, cfg.fastCapacity),
		fastCapacity:                 cfg.fastCapacity,
		overflow:                     make([]T, 0, cfg.overflowCapacity),
		overflowCapacity:             cfg.overflowCapacity,
		mode:                         cfg.mode,
		safeFallbackBacklogThreshold: threshold,
		policy:                       bravo.New(cfg.bravoConfig),
	}
}

// ReclaimMode returns the queue's current reclamation mode.
func (q *Queue[T]) ReclaimMode() ReclaimMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.mode
}

// Len returns the total number of enqueued entries across both lanes.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fastLen + len(q.overflow)
}

func (q *Queue[T]) pins() pinCounter {
	return pinCounter{mu: &q.pinMu, count: &q.activePins}
}

// PinEpoch registers a reader pin, forbidding reclamation of any entry
// retired while the pin is held. Release it when done.
func (q *Queue[T]) PinEpoch() *Pin {
	pc := q.pins()
	pc.inc()
	return &Pin{q: &pc}
}

// PushBack enqueues a request. Never fails: it either lands in a lane or is
// Rejected (telemetry-only, not an error).
func (q *Queue[T]) PushBack(request T) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Preserve FIFO across lanes: once overflow is non-empty, every push
	// stays in overflow until it drains (I1).
	if len(q.overflow) == 0 && q.fastLen < q.fastCapacity {
		idx := (q.fastHead + q.fastLen) % q.fastCapacity
		q.fast[idx] = request
		q.fastLen++
		q.bumpEpoch()
		q.tryReclaim()
		depth := q.fastLen + len(q.overflow)
		if depth > q.maxDepthSeen {
			q.maxDepthSeen = depth
		}
		return EnqueueResult{Outcome: FastPath, Depth: depth}
	}

	if len(q.overflow) < q.overflowCapacity {
		q.overflow = append(q.overflow, request)
		q.overflowEnqueuedTotal++
		q.bumpEpoch()
		q.tryReclaim()
		depth := q.fastLen + len(q.overflow)
		if depth > q.maxDepthSeen {
			q.maxDepthSeen = depth
		}
		return EnqueueResult{Outcome: OverflowPath, Depth: depth, OverflowDepth: len(q.overflow)}
	}

	q.overflowRejectedTotal++
	return EnqueueResult{Outcome: Rejected, Depth: q.fastLen + len(q.overflow), OverflowDepth: len(q.overflow)}
}

// PopFront returns the head of the queue across both lanes (ring first),
// or ok=false if empty.
func (q *Queue[T]) PopFront() (value T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popFrontLocked()
}

func (q *Queue[T]) popFrontLocked() (value T, ok bool) {
	if q.fastLen > 0 {
		value = q.fast[q.fastHead]
		var zero T
		q.fast[q.fastHead] = zero
		q.fastHead = (q.fastHead + 1) % q.fastCapacity
		q.fastLen--
		ok = true
	} else if len(q.overflow) > 0 {
		value = q.overflow[0]
		q.overflow = q.overflow[1:]
		ok = true
	} else {
		return value, false
	}

	q.bumpEpoch()
	if q.mode == Ebr {
		q.retired = append(q.retired, retiredNode[T]{value: value, retiredEpoch: q.currentEpoch})
	}
	q.tryReclaim()
	return value, true
}

// DrainAll repeatedly pops until empty, retaining FIFO order.
func (q *Queue[T]) DrainAll() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]T, 0, q.fastLen+len(q.overflow))
	for {
		v, ok := q.popFrontLocked()
		if !ok {
			break
		}
		out = append(out, v)
	}
	return out
}

// ForceReclaim advances the epoch once and attempts reclamation; used by
// tests and slow-path maintenance.
func (q *Queue[T]) ForceReclaim() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.bumpEpoch()
	q.tryReclaim()
}

// ForceSafeFallback immediately and irrevocably disables EBR.
func (q *Queue[T]) ForceSafeFallback() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transitionToSafeFallback()
}

// ObserveContentionWindow feeds one observation window into the embedded
// BRAVO policy.
func (q *Queue[T]) ObserveContentionWindow(sample bravo.Sample) bravo.Decision {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.policy.Observe(sample)
}

// ContentionPolicySnapshot returns the embedded policy's telemetry.
func (q *Queue[T]) ContentionPolicySnapshot() bravo.Telemetry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.policy.Snapshot()
}

// Snapshot returns a non-blocking, non-mutating telemetry snapshot.
func (q *Queue[T]) Snapshot() Telemetry {
	q.mu.Lock()
	defer q.mu.Unlock()

	var epochLag uint64
	if len(q.retired) > 0 {
		epochLag = q.currentEpoch - q.retired[0].retiredEpoch
	}

	q.pinMu.Lock()
	activePins := q.activePins
	q.pinMu.Unlock()

	contention := q.policy.Snapshot()

	return Telemetry{
		FastDepth:                      q.fastLen,
		OverflowDepth:                  len(q.overflow),
		TotalDepth:                     q.fastLen + len(q.overflow),
		MaxDepthSeen:                   q.maxDepthSeen,
		OverflowEnqueuedTotal:          q.overflowEnqueuedTotal,
		OverflowRejectedTotal:          q.overflowRejectedTotal,
		FastCapacity:                   q.fastCapacity,
		OverflowCapacity:               q.overflowCapacity,
		ReclamationMode:                q.mode,
		RetiredBacklog:                 len(q.retired),
		ReclaimedTotal:                 q.reclaimedTotal,
		CurrentEpoch:                   q.currentEpoch,
		EpochLag:                       epochLag,
		MaxEpochLag:                    q.maxEpochLag,
		ReclamationLatencyMaxEpochs:    q.reclamationLatencyMaxEpochs,
		FallbackTransitions:            q.fallbackTransitions,
		ActiveEpochPins:                activePins,
		BravoMode:                      contention.Mode,
		BravoTransitions:               contention.Transitions,
		BravoRollbacks:                 contention.Rollbacks,
		BravoConsecutiveReadBiasWindows: contention.ConsecutiveReadBiasWindows,
		BravoWriterRecoveryRemaining:    contention.WriterRecoveryRemaining,
		BravoLastSignature:              contention.LastSignature,
	}
}

func (q *Queue[T]) bumpEpoch() {
	q.currentEpoch++
}

func (q *Queue[T]) transitionToSafeFallback() {
	if q.mode == SafeFallback {
		return
	}
	q.mode = SafeFallback
	q.fallbackTransitions++
	q.retired = q.retired[:0]
}

func (q *Queue[T]) tryReclaim() {
	if q.mode != Ebr {
		return
	}

	q.pinMu.Lock()
	active := q.activePins
	q.pinMu.Unlock()

	if active > 0 {
		if len(q.retired) > 0 {
			lag := q.currentEpoch - q.retired[0].retiredEpoch
			if lag > q.maxEpochLag {
				q.maxEpochLag = lag
			}
		}
		if len(q.retired) > q.safeFallbackBacklogThreshold {
			q.transitionToSafeFallback()
		}
		return
	}

	i := 0
	for i < len(q.retired) && q.retired[i].retiredEpoch < q.currentEpoch {
		latency := q.currentEpoch - q.retired[i].retiredEpoch
		if latency > q.reclamationLatencyMaxEpochs {
			q.reclamationLatencyMaxEpochs = latency
		}
		q.reclaimedTotal++
		var zero T
		q.retired[i].value = zero
		i++
	}
	if i > 0 {
		q.retired = q.retired[i:]
	}
}
