// Package constants provides named constants used throughout the tendril codebase.
// This centralizes magic numbers and default locations.
package constants

import "time"

// Filesystem layout.
const (
	// DirName is the per-user and per-project state directory.
	DirName = ".tendril"

	// ConfigFile is the config file name inside DirName.
	ConfigFile = "config.yaml"

	// ProgramsDir holds user program files inside DirName.
	ProgramsDir = "programs"

	// TracesDir holds trace databases inside DirName.
	TracesDir = "traces"

	// DefaultTraceFile is the trace database name used when none is given.
	DefaultTraceFile = "trace.db"
)

// Driver defaults.
const (
	// DefaultTickInterval is the wall-clock time between scheduled ticks.
	DefaultTickInterval = 100 * time.Millisecond

	// MaxStepsPerCall caps how many ticks one step request may run.
	MaxStepsPerCall = 10000
)

// Server defaults.
const (
	// DefaultServerAddr is where the visualization server listens.
	DefaultServerAddr = "127.0.0.1:7357"

	// ServerShutdownTimeout bounds graceful shutdown.
	ServerShutdownTimeout = 5 * time.Second
)

// Remote control budgets, in tokens per minute. A step call costs one
// token plus one per TicksPerStepToken ticks.
const (
	StepRateLimit     = 600
	SnapshotRateLimit = 120
	LoadRateLimit     = 10

	TicksPerStepToken = 1000
)
