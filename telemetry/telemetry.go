// Package telemetry implements the structured JSONL trace sink: stable
// field order, monotonic per-logger sequence numbers, sensitive-key
// redaction, normalization for artifact comparison, and the hotspot-matrix
// aggregation used by the benchmark harness. JSONL emission is built on
// top of github.com/joeycumines/logiface + github.com/joeycumines/stumpy,
// whose Event builder appends fields strictly in call order — that is what
// makes "stable field order" free instead of something this package has
// to hand-roll with a custom encoder.
package telemetry

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Schema identifiers, stable across releases (spec §6).
const (
	SchemaBench         = "pi.ext.rust_bench.v1"
	SchemaHostcallTrace = "pi.ext.hostcall_trace.v1"
	SchemaHotspotMatrix = "pi.ext.hostcall_hotspot_matrix.v1"
	SchemaTestLog       = "pi.test.log.v1"
	SchemaTestArtifact  = "pi.test.artifact.v1"
)

// defaultSensitiveKeys mirrors the substrings the original test harness's
// logging normalizer treats as sensitive.
var defaultSensitiveKeys = []string{
	"token", "secret", "key", "password", "authorization", "cookie",
}

// Redacted is substituted for the value of any field whose key matches a
// sensitive substring.
const Redacted = "[REDACTED]"

// Redactor replaces values of keys matching a fixed substring set with
// Redacted. The zero value uses defaultSensitiveKeys.
type Redactor struct {
	substrings []string
}

// NewRedactor builds a Redactor over the given case-insensitive substrings.
// A nil/empty slice uses the built-in default set.
func NewRedactor(substrings []string) *Redactor {
	if len(substrings) == 0 {
		substrings = defaultSensitiveKeys
	}
	cp := make([]string, len(substrings))
	for i, s := range substrings {
		cp[i] = strings.ToLower(s)
	}
	return &Redactor{substrings: cp}
}

// IsSensitive reports whether key matches one of the redactor's substrings.
func (r *Redactor) IsSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// RedactMap walks a JSON-decoded map/slice tree in place, replacing the
// value of any sensitive key with Redacted.
func (r *Redactor) RedactMap(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if r.IsSensitive(k) {
				t[k] = Redacted
				continue
			}
			t[k] = r.RedactMap(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = r.RedactMap(val)
		}
		return t
	default:
		return v
	}
}

// Sink is a structured JSONL telemetry sink. One Sink owns one monotonic
// sequence counter and one underlying writer; it is safe for concurrent
// use (the embedded logiface/stumpy logger serializes writes internally).
type Sink struct {
	logger   *logiface.Logger[*stumpy.Event]
	seq      atomic.Uint64
	redactor *Redactor
	mu       sync.Mutex // guards RawWrite-adjacent bookkeeping if ever added
}

// Option configures a Sink.
type Option func(*sinkConfig)

type sinkConfig struct {
	writer   io.Writer
	redactor *Redactor
}

// WithWriter overrides the sink's output writer (default os.Stderr).
func WithWriter(w io.Writer) Option {
	return func(c *sinkConfig) { c.writer = w }
}

// WithRedactor overrides the sink's sensitive-key redactor.
func WithRedactor(r *Redactor) Option {
	return func(c *sinkConfig) { c.redactor = r }
}

// NewSink constructs a telemetry sink.
func NewSink(opts ...Option) *Sink {
	cfg := sinkConfig{writer: os.Stderr, redactor: NewRedactor(nil)}
	for _, o := range opts {
		o(&cfg)
	}

	logger := stumpy.L.New(
		stumpy.L.WithStumpy(
			stumpy.WithWriter(cfg.writer),
			stumpy.WithTimeField("ts"),
			stumpy.WithLevelField("level"),
			stumpy.WithMessageField("message"),
			stumpy.WithErrorField("error"),
		),
	)

	return &Sink{logger: logger, redactor: cfg.redactor}
}

// Event is one structured record written through Emit. Context, when
// non-nil, is marshalled as a nested JSON object under "context" and
// passed through the redactor first.
type Event struct {
	Schema   string
	Category string
	Message  string
	Context  map[string]any
}

// Emit writes one telemetry event as a single JSONL line with the field
// order {schema, seq, category, message, context} — "seq" and "ts" (the
// logger's own time field) are stamped by the sink, not the caller.
func (s *Sink) Emit(e Event) {
	seq := s.seq.Add(1)
	b := s.logger.Info().
		Str("schema", e.Schema).
		Uint64("seq", seq).
		Str("category", e.Category)

	if e.Context != nil {
		redacted := s.redactor.RedactMap(cloneMap(e.Context))
		if raw, err := json.Marshal(redacted); err == nil {
			b = b.RawJSON("context", raw)
		}
	}

	b.Log(e.Message)
}

func cloneMap(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return m
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return m
	}
	return out
}

// --- Normalization -------------------------------------------------------

// normalizeKeys are context keys whose values are replaced with a stable
// placeholder when normalizing a record for artifact comparison.
var normalizeKeys = map[string]string{
	"run_id":       "<RUN_ID>",
	"ts":           "<TIMESTAMP>",
	"timestamp":    "<TIMESTAMP>",
	"uuid":         "<UUID>",
	"port":         "<PORT>",
	"project_root": "<PROJECT_ROOT>",
	"test_root":    "<TEST_ROOT>",
}

// Normalize replaces volatile fields (timestamps, run IDs, UUIDs, local
// ports, project/test roots) in a decoded JSONL record with stable
// placeholders, for byte-stable artifact comparison across runs.
// Normalize is idempotent: normalizing twice equals normalizing once.
func Normalize(record map[string]any) map[string]any {
	return normalizeValue(record).(map[string]any)
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if placeholder, ok := normalizeKeys[strings.ToLower(k)]; ok {
				out[k] = placeholder
				continue
			}
			out[k] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}

// --- Hotspot matrix -------------------------------------------------------

// StageWeights decomposes one hostcall's wall-clock time across the fixed
// pipeline stages, matching the original benchmark harness.
type StageWeights struct {
	Marshal  float64
	Queue    float64
	Schedule float64
	Policy   float64
	Execute  float64
	IO       float64
}

// Sum returns the total across all stages.
func (w StageWeights) Sum() float64 {
	return w.Marshal + w.Queue + w.Schedule + w.Policy + w.Execute + w.IO
}

// Add returns the element-wise sum of two StageWeights.
func (w StageWeights) Add(o StageWeights) StageWeights {
	return StageWeights{
		Marshal:  w.Marshal + o.Marshal,
		Queue:    w.Queue + o.Queue,
		Schedule: w.Schedule + o.Schedule,
		Policy:   w.Policy + o.Policy,
		Execute:  w.Execute + o.Execute,
		IO:       w.IO + o.IO,
	}
}

// Scaled returns each stage's share of totalUs, proportional to this
// StageWeights' own relative shares.
func (w StageWeights) Scaled(totalUs float64) StageWeights {
	sum := w.Sum()
	if sum <= 0 {
		return StageWeights{}
	}
	scale := totalUs / sum
	return StageWeights{
		Marshal:  w.Marshal * scale,
		Queue:    w.Queue * scale,
		Schedule: w.Schedule * scale,
		Policy:   w.Policy * scale,
		Execute:  w.Execute * scale,
		IO:       w.IO * scale,
	}
}

// stageOrder fixes iteration order for deterministic hotspot matrix output.
var stageOrder = []string{"marshal", "queue", "schedule", "policy", "execute", "io"}

func (w StageWeights) byName() map[string]float64 {
	return map[string]float64{
		"marshal":  w.Marshal,
		"queue":    w.Queue,
		"schedule": w.Schedule,
		"policy":   w.Policy,
		"execute":  w.Execute,
		"io":       w.IO,
	}
}

// HotspotEntry is one row of the hotspot matrix, mirroring
// pi.ext.hostcall_hotspot_matrix.v1's per-stage record.
type HotspotEntry struct {
	Stage                    string  `json:"stage"`
	SharePct                 float64 `json:"share_pct"`
	OptimizationPotentialPct float64 `json:"optimization_potential_pct"`
	Confidence               float64 `json:"confidence"`
	EVScore                  float64 `json:"ev_score"`
	ProjectedUserImpactUs    float64 `json:"projected_user_impact_us"`
	RecommendedAction        string  `json:"recommended_action"`
}

// stageOptimizationPotential assigns a fixed per-stage ceiling on how much
// of a stage's time is plausibly recoverable, matching the original
// harness's heuristic table.
func stageOptimizationPotential(stage string) float64 {
	switch stage {
	case "marshal":
		return 0.16
	case "queue":
		return 0.34
	case "schedule":
		return 0.24
	case "policy":
		return 0.22
	case "execute":
		return 0.29
	case "io":
		return 0.18
	default:
		return 0.10
	}
}

func stageRecommendation(stage string) string {
	switch stage {
	case "marshal":
		return "Adopt zero-copy or schema-cached (de)serialization for hostcall payloads."
	case "queue":
		return "Reduce fast-ring contention via batching or larger fast capacity."
	case "schedule":
		return "Shrink the pump's per-tick overhead; avoid redundant microtask drains."
	case "policy":
		return "Tighten BRAVO window sizing to cut classification churn."
	case "execute":
		return "Profile the tool executor; this stage is largely irreducible host work."
	case "io":
		return "Batch or pipeline outbound I/O issued from hostcall handlers."
	default:
		return "No specific recommendation."
	}
}

// confidence implements clamp(ln(samples+1)/8, 0.35, 0.99).
func confidence(samples uint64) float64 {
	c := math.Log1p(float64(samples)) / 8
	if c < 0.35 {
		return 0.35
	}
	if c > 0.99 {
		return 0.99
	}
	return c
}

// BuildHotspotMatrix aggregates per-stage totals (in microseconds) across
// samples hostcalls into the hotspot matrix, EV-sorted descending.
func BuildHotspotMatrix(totals StageWeights, samples uint64) (stageTotalsUs map[string]float64, matrix []HotspotEntry) {
	sum := totals.Sum()
	byName := totals.byName()
	conf := confidence(samples)

	matrix = make([]HotspotEntry, 0, len(stageOrder))
	for _, stage := range stageOrder {
		us := byName[stage]
		sharePct := 0.0
		if sum > 0 {
			sharePct = us / sum * 100
		}
		potential := stageOptimizationPotential(stage) * 100
		ev := sharePct * (potential / 100) * conf
		var perCallSavingUs float64
		if samples > 0 {
			perCallSavingUs = (us * stageOptimizationPotential(stage)) / float64(samples)
		}
		matrix = append(matrix, HotspotEntry{
			Stage:                    stage,
			SharePct:                 sharePct,
			OptimizationPotentialPct: potential,
			Confidence:               conf,
			EVScore:                  ev,
			ProjectedUserImpactUs:    perCallSavingUs,
			RecommendedAction:        stageRecommendation(stage),
		})
	}

	sort.SliceStable(matrix, func(i, j int) bool {
		return matrix[i].EVScore > matrix[j].EVScore
	})

	return byName, matrix
}

// ConfidenceFormula and EVFormula are the stable formula strings emitted
// alongside a hotspot matrix artifact, matching the original harness.
const (
	ConfidenceFormula = "clamp(log(sample_count+1)/8, 0.35, 0.99)"
	EVFormula         = "share_pct * optimization_potential * confidence"
)
