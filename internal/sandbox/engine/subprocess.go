package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"proctorhub/internal/sandbox/model"
	"proctorhub/internal/sandbox/profile"
)

// SubprocessEngine is the unisolated fallback used when no container runtime
// is reachable. Code must pass the denylist scan before it runs.
type SubprocessEngine struct{}

// NewSubprocessEngine creates the fallback engine.
func NewSubprocessEngine() *SubprocessEngine {
	return &SubprocessEngine{}
}

func (e *SubprocessEngine) Name() string { return "subprocess" }

// Available always reports true; the interpreter binary missing surfaces as
// a run error instead.
func (e *SubprocessEngine) Available(context.Context) bool { return true }

// Run screens the code and executes it directly with a deadline. A denylist
// hit never executes anything and surfaces as a normal failed run, so during
// grading it fails the case instead of erroring the submission.
func (e *SubprocessEngine) Run(ctx context.Context, lang profile.Language, code, stdin string, limits Limits) (model.RunResult, error) {
	if scan := Scan(lang.Name, code); scan.Blocked {
		return model.RunResult{
			ExitCode: 1,
			Stderr:   fmt.Sprintf("blocked: %q is not allowed in restricted execution", scan.Pattern),
			Isolated: false,
		}, nil
	}

	argv, err := lang.FallbackArgv(code)
	if err != nil {
		return model.RunResult{}, err
	}
	if len(argv) == 0 {
		return model.RunResult{}, fmt.Errorf("empty argv for language %q", lang.Name)
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	result := model.RunResult{
		Stdout:     model.TruncateStdout(stdout.String()),
		Stderr:     model.TruncateStderr(stderr.String()),
		DurationMS: float64(elapsed.Microseconds()) / 1000,
		Isolated:   false,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		result.ExitCode = model.TimeoutExitCode
		return result, nil
	}
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return model.RunResult{}, fmt.Errorf("subprocess run failed: %w", runErr)
	}
	return result, nil
}
