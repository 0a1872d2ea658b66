// Package model defines the execution and grading result types.
package model

const (
	// MaxStdoutBytes caps captured standard output.
	MaxStdoutBytes = 5000
	// MaxStderrBytes caps captured standard error.
	MaxStderrBytes = 2000

	// TimeoutExitCode marks runs killed at the deadline.
	TimeoutExitCode = 124

	// MaxCodeBytes caps submitted source size.
	MaxCodeBytes = 64 * 1024
	// MaxStdinBytes caps custom input size.
	MaxStdinBytes = 16 * 1024
)

// RunResult is the outcome of one execution. Truncation of the output
// streams is silent.
type RunResult struct {
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
	ExitCode   int     `json:"exit_code"`
	DurationMS float64 `json:"duration_ms"`
	TimedOut   bool    `json:"timed_out"`
	// Isolated reports whether the run happened inside the container
	// backend. False means the restricted subprocess fallback was used.
	Isolated bool `json:"isolated"`
}

// TruncateStdout caps an output stream at the stdout limit.
func TruncateStdout(s string) string {
	if len(s) > MaxStdoutBytes {
		return s[:MaxStdoutBytes]
	}
	return s
}

// TruncateStderr caps an error stream at the stderr limit.
func TruncateStderr(s string) string {
	if len(s) > MaxStderrBytes {
		return s[:MaxStderrBytes]
	}
	return s
}

// TestCase is one input/expected-output pair.
type TestCase struct {
	Input          string `json:"input" yaml:"input"`
	ExpectedOutput string `json:"expected_output" yaml:"expectedOutput"`
}

// TestCaseResult is the graded outcome of one case.
type TestCaseResult struct {
	Index      int     `json:"index"`
	Passed     bool    `json:"passed"`
	TimedOut   bool    `json:"timed_out"`
	ExitCode   int     `json:"exit_code"`
	Stdout     string  `json:"stdout"`
	Expected   string  `json:"expected"`
	DurationMS float64 `json:"duration_ms"`
}

// GradeReport is the deterministic grading outcome for a submission.
type GradeReport struct {
	Score   float64          `json:"score"`
	Passed  int              `json:"passed"`
	Total   int              `json:"total"`
	Results []TestCaseResult `json:"results"`
	// Raw carries the plain run output when a question has no test cases.
	Raw *RunResult `json:"raw,omitempty"`
}

// Question is an exam coding question with its grading cases.
type Question struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	TestCases []TestCase `json:"test_cases" yaml:"testCases"`
}
