// Package engine runs untrusted code, isolated when a container runtime is
// reachable and via a restricted subprocess otherwise.
package engine

import (
	"context"
	"time"

	"proctorhub/internal/sandbox/model"
	"proctorhub/internal/sandbox/profile"
)

// Limits bounds one execution.
type Limits struct {
	Timeout   time.Duration `yaml:"timeout"`
	MemoryMB  int           `yaml:"memoryMB"`
	CPUs      float64       `yaml:"cpus"`
	PidsLimit int           `yaml:"pidsLimit"`
}

// DefaultLimits returns the production execution bounds.
func DefaultLimits() Limits {
	return Limits{
		Timeout:   10 * time.Second,
		MemoryMB:  256,
		CPUs:      1.0,
		PidsLimit: 50,
	}
}

// Engine executes code under a language profile.
type Engine interface {
	// Run executes code with stdin under the given limits. Execution
	// failures surface in the result, not as an error; an error means the
	// engine itself failed.
	Run(ctx context.Context, lang profile.Language, code, stdin string, limits Limits) (model.RunResult, error)

	// Available probes whether the engine can run right now.
	Available(ctx context.Context) bool

	// Name identifies the backend in logs and metrics.
	Name() string
}
