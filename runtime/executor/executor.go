// Package executor runs an Operation Plan against a PDF engine.
//
// Execution is single-threaded and synchronous. Documents open in binding
// order, ranges resolve against their live page counts, and every file the
// run produces is written to a temporary file and renamed into place, so a
// failure or cancellation never leaves a partial output behind.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/invariant"
	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/runtime/compat"
	"github.com/aledsdavies/pdftl/runtime/resolver"
)

// Config configures the executor. Nothing is read from process state: the
// working directory, standard streams and the password prompt all come
// from here.
type Config struct {
	Engine  engine.Engine
	WorkDir string    // relative paths resolve against it; "" means the process cwd
	Stdin   io.Reader // source for "-" inputs and data files
	Stdout  io.Writer // destination for "output -" and data reports
	Stderr  io.Writer // verbose progress lines

	// Prompt reads a password when the command line says PROMPT. Nil
	// makes PROMPT an AuthorizationError.
	Prompt func(label string) (string, error)

	Compat  compat.Policy
	Compass resolver.CompassMode
	Logger  *slog.Logger

	// RenameRetries is how often a failed rename of a finished output is
	// retried. Zero means the default of 2; negative disables retries.
	RenameRetries int

	Debug     DebugLevel     // Debug tracing (development only)
	Telemetry TelemetryLevel // Telemetry collection (production-safe)
}

// DebugLevel controls debug tracing (development only)
type DebugLevel int

const (
	DebugOff      DebugLevel = iota // No debug info (default)
	DebugPaths                      // Phase entry/exit tracing
	DebugDetailed                   // Per-document and per-output details
)

// TelemetryLevel controls telemetry collection (production-safe)
type TelemetryLevel int

const (
	TelemetryOff    TelemetryLevel = iota // Zero overhead (default)
	TelemetryBasic                        // Counts only
	TelemetryTiming                       // Counts + timing per phase
)

// ExecutionResult holds the result of plan execution
type ExecutionResult struct {
	ExitCode    int                 // Final exit code (0 = success)
	Duration    time.Duration       // Total execution time
	Outputs     []string            // Files written, in order; "-" for standard output
	Warnings    []string            // Compatibility warnings, one line each
	Telemetry   *ExecutionTelemetry // Additional metrics (nil if TelemetryOff)
	DebugEvents []DebugEvent        // Debug events (nil if DebugOff)
}

// ExecutionTelemetry holds additional execution metrics (optional, production-safe)
type ExecutionTelemetry struct {
	DocumentsOpened int
	PagesResolved   int
	OutputsWritten  int
	PhaseTimings    []PhaseTiming // Per-phase timing (if TelemetryTiming)
}

// PhaseTiming holds timing information for one execution phase
type PhaseTiming struct {
	Phase    string // "open", "operate"
	Duration time.Duration
}

// DebugEvent represents a debug trace event
type DebugEvent struct {
	Timestamp time.Time
	Event     string // "enter_execute", "open_input", "write_output", etc.
	Context   string // Additional context
}

// executor holds execution state for one plan
type executor struct {
	config Config
	plan   *plan.Plan
	shim   *compat.Shim
	logger *slog.Logger

	docs      map[plan.Handle]engine.Document
	stdinData []byte
	stdinRead bool

	outputs     []string
	debugEvents []DebugEvent
	telemetry   *ExecutionTelemetry
	startTime   time.Time
}

const defaultRenameRetries = 2

// Execute runs p and returns the result. The result is never nil; on
// failure its ExitCode matches the returned error's kind.
func Execute(ctx context.Context, p *plan.Plan, config Config) (*ExecutionResult, error) {
	// INPUT CONTRACT (preconditions)
	invariant.NotNil(ctx, "ctx")
	invariant.NotNil(p, "plan")
	invariant.NotNil(config.Engine, "config.Engine")
	invariant.Precondition(len(p.Inputs) > 0, "plan must bind at least one input")

	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Stdout == nil {
		config.Stdout = io.Discard
	}
	if config.RenameRetries == 0 {
		config.RenameRetries = defaultRenameRetries
	}

	e := &executor{
		config:    config,
		plan:      p,
		shim:      compat.New(config.Compat, config.Logger),
		logger:    config.Logger,
		docs:      make(map[plan.Handle]engine.Document),
		startTime: time.Now(),
	}
	if config.Telemetry != TelemetryOff {
		e.telemetry = &ExecutionTelemetry{}
	}

	e.recordDebugEvent(DebugPaths, "enter_execute", fmt.Sprintf("operator=%s inputs=%d", p.Operator, len(p.Inputs)))

	err := e.run(ctx)
	closeErr := e.closeAll()
	if err == nil && closeErr != nil {
		err = errors.Internal(closeErr, "closing documents")
	}
	err = classify(err)

	duration := time.Since(e.startTime)
	exitCode := errors.ExitCode(err)
	e.recordDebugEvent(DebugPaths, "exit_execute", fmt.Sprintf("outputs=%d exit=%d duration=%v", len(e.outputs), exitCode, duration))

	// OUTPUT CONTRACT (postconditions)
	invariant.InRange(exitCode, 0, 255, "exit code")
	invariant.Postcondition(err == nil || exitCode != 0, "a failed run must not exit 0")

	if e.telemetry != nil {
		e.telemetry.OutputsWritten = len(e.outputs)
	}
	return &ExecutionResult{
		ExitCode:    exitCode,
		Duration:    duration,
		Outputs:     e.outputs,
		Warnings:    e.shim.Report().Lines(),
		Telemetry:   e.telemetry,
		DebugEvents: e.debugEvents,
	}, err
}

func (e *executor) run(ctx context.Context) error {
	// Unbound handles fail before any document is opened.
	if err := resolver.CheckHandles(e.plan); err != nil {
		return err
	}
	if err := e.checkOutputTarget(); err != nil {
		return err
	}

	if err := e.phase("open", func() error { return e.openInputs(ctx) }); err != nil {
		return err
	}

	op, ok := handlers[e.plan.Operator]
	invariant.Invariant(ok, "no handler for operator %s", e.plan.Operator)
	return e.phase("operate", func() error { return op(e, ctx) })
}

// phase runs fn and records its timing when telemetry asks for it.
func (e *executor) phase(name string, fn func() error) error {
	start := time.Now()
	e.recordDebugEvent(DebugPaths, "enter_"+name, "")
	err := fn()
	if e.telemetry != nil && e.config.Telemetry == TelemetryTiming {
		e.telemetry.PhaseTimings = append(e.telemetry.PhaseTimings, PhaseTiming{Phase: name, Duration: time.Since(start)})
	}
	e.recordDebugEvent(DebugPaths, "exit_"+name, fmt.Sprintf("err=%v", err != nil))
	return err
}

// resolver builds a range resolver over the open documents.
func (e *executor) resolver() *resolver.Resolver {
	sources := make(map[plan.Handle]resolver.Source, len(e.docs))
	for h, d := range e.docs {
		sources[h] = d
	}
	return resolver.New(resolver.Config{Compass: e.config.Compass}, sources, e.plan.DefaultHandle())
}

func (e *executor) countPages(n int) {
	if e.telemetry != nil {
		e.telemetry.PagesResolved += n
	}
}

// recordDebugEvent records a debug event (only if debug is at least level)
func (e *executor) recordDebugEvent(level DebugLevel, event, context string) {
	if e.config.Debug < level || e.config.Debug == DebugOff {
		return
	}
	e.debugEvents = append(e.debugEvents, DebugEvent{
		Timestamp: time.Now(),
		Event:     event,
		Context:   context,
	})
}
