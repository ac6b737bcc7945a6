// Package bravo implements a deterministic BRAVO-style contention policy
// state machine: it classifies per-window reader/writer contention samples
// into a fixed signature and emits bias decisions (balanced, read-biased,
// writer-recovery). No wall-clock time or randomness is involved anywhere
// in this package; the same (config, initial state, sample sequence) always
// produces the same decision sequence.
package bravo

// Mode is the current lock-bias mode of the policy state machine.
type Mode int

const (
	// Balanced is the neutral mode; no explicit read bias is applied.
	Balanced Mode = iota
	// ReadBiased favours reader throughput under stable read-heavy contention.
	ReadBiased
	// WriterRecovery temporarily favours writers after a starvation signal.
	WriterRecovery
)

func (m Mode) String() string {
	switch m {
	case Balanced:
		return "balanced"
	case ReadBiased:
		return "read_biased"
	case WriterRecovery:
		return "writer_recovery"
	default:
		return "unknown"
	}
}

// Signature is the deterministic classification of one observation window.
type Signature int

const (
	// InsufficientSamples means the window did not carry enough operations
	// for a stable decision.
	InsufficientSamples Signature = iota
	// ReadDominant is read-dominant contention with a healthy writer profile.
	ReadDominant
	// MixedContention is mixed read/write contention without starvation.
	MixedContention
	// WriterStarvationRisk means the writer wait/timeout profile indicates
	// starvation risk.
	WriterStarvationRisk
	// WriteDominant is write-dominant contention (or low reader pressure).
	WriteDominant
)

func (s Signature) String() string {
	switch s {
	case InsufficientSamples:
		return "insufficient_samples"
	case ReadDominant:
		return "read_dominant"
	case MixedContention:
		return "mixed_contention"
	case WriterStarvationRisk:
		return "writer_starvation_risk"
	case WriteDominant:
		return "write_dominant"
	default:
		return "unknown"
	}
}

// Sample is one observation bucket fed into the policy state machine.
type Sample struct {
	ReadAcquires   uint64
	WriteAcquires  uint64
	ReadWaitP95Us  uint64
	WriteWaitP95Us uint64
	WriteTimeouts  uint64
}

// TotalAcquires is the saturating sum of read and write acquires.
func (s Sample) TotalAcquires() uint64 {
	total := s.ReadAcquires + s.WriteAcquires
	if total < s.ReadAcquires {
		return ^uint64(0)
	}
	return total
}

// ReadRatioPermille is the read share of total acquires, in parts per
// thousand, saturating at 1000 and returning 0 for an empty window.
func (s Sample) ReadRatioPermille() uint32 {
	total := s.TotalAcquires()
	if total == 0 {
		return 0
	}
	numerator := s.ReadAcquires * 1000
	if s.ReadAcquires != 0 && numerator/s.ReadAcquires != 1000 {
		// overflow of the multiply: clamp to the ceiling used elsewhere.
		return 1000
	}
	ratio := numerator / total
	if ratio > 1000 {
		return 1000
	}
	return uint32(ratio)
}

// Config holds the tuning knobs for the deterministic contention policy.
type Config struct {
	MinTotalAcquires              uint64
	ReadDominantRatioPermille     uint32
	MixedRatioFloorPermille       uint32
	MixedRatioCeilingPermille     uint32
	WriterStarvationWaitUs        uint64
	WriterStarvationTimeouts      uint64
	MaxConsecutiveReadBiasWindows uint32
	WriterRecoveryWindows         uint32
}

// DefaultConfig mirrors the reference implementation's defaults.
func DefaultConfig() Config {
	return Config{
		MinTotalAcquires:              32,
		ReadDominantRatioPermille:     800,
		MixedRatioFloorPermille:       450,
		MixedRatioCeilingPermille:     799,
		WriterStarvationWaitUs:        8000,
		WriterStarvationTimeouts:      2,
		MaxConsecutiveReadBiasWindows: 5,
		WriterRecoveryWindows:         2,
	}
}

// Decision is one policy transition emitted from an observation window.
type Decision struct {
	PreviousMode      Mode
	NextMode          Mode
	Signature         Signature
	Switched          bool
	RollbackTriggered bool
}

// Telemetry is a snapshot of policy internals for diagnostics/tests.
type Telemetry struct {
	Mode                       Mode
	Transitions                uint64
	Rollbacks                  uint64
	WindowsObserved            uint64
	ConsecutiveReadBiasWindows uint32
	WriterRecoveryRemaining    uint32
	LastSignature              Signature
}

// State is the deterministic BRAVO-style contention policy state machine.
// It is not safe for concurrent use; callers serialize access (the
// hostqueue package guards it with the same mutex that protects the queue).
type State struct {
	config                     Config
	mode                       Mode
	transitions                uint64
	rollbacks                  uint64
	windowsObserved            uint64
	consecutiveReadBiasWindows uint32
	writerRecoveryRemaining    uint32
	lastSignature              Signature
}

// New constructs a policy state machine starting in Balanced mode.
func New(config Config) *State {
	return &State{
		config:        config,
		mode:          Balanced,
		lastSignature: InsufficientSamples,
	}
}

// NewDefault constructs a policy state machine using DefaultConfig.
func NewDefault() *State {
	return New(DefaultConfig())
}

// Mode returns the current bias mode.
func (s *State) Mode() Mode { return s.mode }

// Snapshot returns the current policy telemetry.
func (s *State) Snapshot() Telemetry {
	return Telemetry{
		Mode:                       s.mode,
		Transitions:                s.transitions,
		Rollbacks:                  s.rollbacks,
		WindowsObserved:            s.windowsObserved,
		ConsecutiveReadBiasWindows: s.consecutiveReadBiasWindows,
		WriterRecoveryRemaining:    s.writerRecoveryRemaining,
		LastSignature:              s.lastSignature,
	}
}

// Classify derives the deterministic contention signature for a sample
// under the given config, in strict priority order.
func Classify(sample Sample, config Config) Signature {
	if sample.TotalAcquires() < config.MinTotalAcquires {
		return InsufficientSamples
	}

	if sample.WriteWaitP95Us >= config.WriterStarvationWaitUs ||
		sample.WriteTimeouts >= config.WriterStarvationTimeouts {
		return WriterStarvationRisk
	}

	readRatio := sample.ReadRatioPermille()
	readDominantFloor := config.ReadDominantRatioPermille
	if readDominantFloor > 1000 {
		readDominantFloor = 1000
	}
	if readRatio >= readDominantFloor {
		return ReadDominant
	}

	mixedFloor := config.MixedRatioFloorPermille
	if mixedFloor > 1000 {
		mixedFloor = 1000
	}
	mixedCeiling := config.MixedRatioCeilingPermille
	if mixedCeiling < mixedFloor {
		mixedCeiling = mixedFloor
	}
	if mixedCeiling > 1000 {
		mixedCeiling = 1000
	}
	if readRatio >= mixedFloor && readRatio <= mixedCeiling {
		return MixedContention
	}

	return WriteDominant
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

// Observe feeds one deterministic contention observation window into the
// policy and returns the resulting transition decision.
func (s *State) Observe(sample Sample) Decision {
	previousMode := s.mode
	signature := Classify(sample, s.config)
	s.windowsObserved++

	rollbackTriggered := false

	switch s.mode {
	case Balanced:
		switch signature {
		case WriterStarvationRisk:
			s.mode = WriterRecovery
			s.writerRecoveryRemaining = max32(s.config.WriterRecoveryWindows, 1)
			s.consecutiveReadBiasWindows = 0
			s.rollbacks++
			rollbackTriggered = true
		case ReadDominant, MixedContention:
			s.mode = ReadBiased
			s.consecutiveReadBiasWindows = 1
		case InsufficientSamples, WriteDominant:
			s.consecutiveReadBiasWindows = 0
		}

	case ReadBiased:
		s.consecutiveReadBiasWindows++

		starvation := signature == WriterStarvationRisk
		fairnessBudgetExhausted := s.consecutiveReadBiasWindows >= max32(s.config.MaxConsecutiveReadBiasWindows, 1)

		switch {
		case starvation || fairnessBudgetExhausted:
			s.mode = WriterRecovery
			s.writerRecoveryRemaining = max32(s.config.WriterRecoveryWindows, 1)
			s.consecutiveReadBiasWindows = 0
			rollbackTriggered = starvation
			if starvation {
				s.rollbacks++
			}
		case signature == InsufficientSamples || signature == WriteDominant:
			s.mode = Balanced
			s.consecutiveReadBiasWindows = 0
		}

	case WriterRecovery:
		s.consecutiveReadBiasWindows = 0
		if signature == WriterStarvationRisk {
			s.writerRecoveryRemaining = max32(s.config.WriterRecoveryWindows, 1)
		} else if s.writerRecoveryRemaining > 0 {
			s.writerRecoveryRemaining--
		}
		if s.writerRecoveryRemaining == 0 {
			s.mode = Balanced
		}
	}

	if s.mode != previousMode {
		s.transitions++
	}
	s.lastSignature = signature

	return Decision{
		PreviousMode:      previousMode,
		NextMode:          s.mode,
		Signature:         signature,
		Switched:          s.mode != previousMode,
		RollbackTriggered: rollbackTriggered,
	}
}
