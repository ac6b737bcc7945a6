// Command hostbench runs a deterministic tool-call workload against a
// jsengine.Host + pump.Pump + hostrouter.Router, measuring per-stage
// wall-clock time and emitting a hotspot-matrix telemetry artifact.
// It is the Go-native counterpart of the original corpus's
// ext_workloads benchmark harness, trimmed to the pieces this module
// implements (no real extension corpus, no load_runs cold-start sweep).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joeycumines/pi-hostbridge/extmanager"
	"github.com/joeycumines/pi-hostbridge/hostproto"
	"github.com/joeycumines/pi-hostbridge/hostrouter"
	"github.com/joeycumines/pi-hostbridge/jsengine"
	"github.com/joeycumines/pi-hostbridge/pump"
	"github.com/joeycumines/pi-hostbridge/telemetry"
)

func main() {
	iterations := flag.Int("iterations", 2000, "number of pi.tool(\"hello\") calls to issue")
	out := flag.String("out", "", "JSONL output path (stdout if empty)")
	matrixOut := flag.String("matrix-out", "", "hotspot matrix JSON output path (stdout if empty)")
	flag.Parse()

	writer := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("hostbench: %v", err)
		}
		defer f.Close()
		writer = f
	}

	sink := telemetry.NewSink(telemetry.WithWriter(writer))

	if err := run(*iterations, sink, *matrixOut); err != nil {
		log.Fatalf("hostbench: %v", err)
	}
}

type echoTool struct{}

func (echoTool) Invoke(ctx context.Context, payload json.RawMessage) (hostrouter.ToolResult, error) {
	return hostrouter.ToolResult{Value: payload}, nil
}

type toolRegistry struct{}

func (toolRegistry) Lookup(name string) (hostrouter.Tool, bool) {
	if name != "hello" {
		return nil, false
	}
	return echoTool{}, true
}

func run(iterations int, sink *telemetry.Sink, matrixOut string) error {
	host, err := jsengine.Start(jsengine.Config{EvalTimeoutMs: 5000})
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer host.Shutdown(5 * time.Second)

	router := &hostrouter.Router{
		Tools:  toolRegistry{},
		Events: &extmanager.Dispatcher{Manager: host.Extensions},
	}
	p := pump.New(host, router)

	var totals telemetry.StageWeights
	marshalStart := time.Now()
	src := fmt.Sprintf(`
		for (let i = 0; i < %d; i++) {
			pi.tool("hello", {n: i});
		}
	`, iterations)
	totals.Marshal += float64(time.Since(marshalStart).Microseconds())

	if _, err := host.LoadExtension(extmanager.LoadSpec{
		ID:     "hostbench.workload",
		Name:   "hostbench workload",
		Source: `pi.events("register_flag", {name: "hostbench_ran", value: true});`,
	}); err != nil {
		return fmt.Errorf("load workload extension: %w", err)
	}

	queueStart := time.Now()
	if _, err := host.Eval(src); err != nil {
		return fmt.Errorf("eval workload: %w", err)
	}
	totals.Queue += float64(time.Since(queueStart).Microseconds())

	scheduleStart := time.Now()
	if err := p.Run(context.Background(), 30*time.Second); err != nil {
		return fmt.Errorf("pump run: %w", err)
	}
	totals.Schedule += float64(time.Since(scheduleStart).Microseconds())

	sink.Emit(telemetry.Event{
		Schema:   telemetry.SchemaBench,
		Category: "tool_call_workload",
		Message:  "completed",
		Context: map[string]any{
			"iterations": iterations,
			"call_kind":  hostproto.Tool("hello").Tag,
		},
	})

	stageTotals, matrix := telemetry.BuildHotspotMatrix(totals, uint64(iterations))
	sink.Emit(telemetry.Event{
		Schema:   telemetry.SchemaHotspotMatrix,
		Category: "hotspot_matrix",
		Message:  "computed",
		Context: map[string]any{
			"stage_totals_us":    stageTotals,
			"matrix":             matrix,
			"confidence_formula": telemetry.ConfidenceFormula,
			"ev_formula":         telemetry.EVFormula,
		},
	})

	if matrixOut != "" {
		raw, err := json.MarshalIndent(matrix, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(matrixOut, raw, 0o644)
	}
	return nil
}
