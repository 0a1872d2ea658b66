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
	"proctorhub/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const probeTimeout = 5 * time.Second

// DockerEngine runs code inside one-shot containers with no network, a
// read-only rootfs and hard resource ceilings.
type DockerEngine struct {
	binary string
}

// NewDockerEngine creates the container-backed engine.
func NewDockerEngine() *DockerEngine {
	return &DockerEngine{binary: "docker"}
}

func (e *DockerEngine) Name() string { return "docker" }

// Available probes the container runtime with a short deadline. Probed per
// call so a daemon restart mid-service flips the strategy without redeploys.
func (e *DockerEngine) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, e.binary, "info").Run() == nil
}

// Run executes code in a fresh container. On timeout the container is killed
// by name so nothing leaks past the deadline.
func (e *DockerEngine) Run(ctx context.Context, lang profile.Language, code, stdin string, limits Limits) (model.RunResult, error) {
	argv, err := lang.ContainerArgv(code)
	if err != nil {
		return model.RunResult{}, err
	}

	name := "proctorhub-run-" + uuid.NewString()
	args := []string{
		"run", "--rm",
		"--name", name,
		"--network", "none",
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--cpus", fmt.Sprintf("%.1f", limits.CPUs),
		"--pids-limit", fmt.Sprintf("%d", limits.PidsLimit),
		"--read-only",
		"--tmpfs", "/tmp:size=10m",
		"--security-opt", "no-new-privileges",
		"-i",
		lang.Image,
	}
	args = append(args, argv...)

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.binary, args...)
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
		Isolated:   true,
	}

	if runCtx.Err() == context.DeadlineExceeded {
		// --rm handles the container once the process dies, but a hung
		// entrypoint needs an explicit kill.
		killCtx, killCancel := context.WithTimeout(context.Background(), probeTimeout)
		defer killCancel()
		if err := exec.CommandContext(killCtx, e.binary, "kill", name).Run(); err != nil {
			logger.Warn(context.Background(), "kill timed-out container failed",
				zap.String("container", name),
				zap.Error(err))
		}
		result.TimedOut = true
		result.ExitCode = model.TimeoutExitCode
		return result, nil
	}

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return model.RunResult{}, fmt.Errorf("container run failed: %w", runErr)
	}
	return result, nil
}
