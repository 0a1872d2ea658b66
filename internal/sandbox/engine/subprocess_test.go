package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"proctorhub/internal/sandbox/profile"
)

func TestSubprocessBlockedCodeFailsWithoutRunning(t *testing.T) {
	eng := NewSubprocessEngine()

	// the command points at a binary that does not exist, so any attempt
	// to actually execute the code would surface as a run error
	lang := profile.Language{Name: "python", Command: "no-such-interpreter {code}"}

	res, err := eng.Run(context.Background(), lang, "import os\nos.system('ls')", "", Limits{Timeout: time.Second})
	if err != nil {
		t.Fatalf("blocked code must not error the run: %v", err)
	}
	if res.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", res.ExitCode)
	}
	if !strings.Contains(res.Stderr, "blocked") {
		t.Fatalf("stderr = %q, want a blocked notice", res.Stderr)
	}
	if res.Isolated {
		t.Fatal("subprocess result must not claim isolation")
	}
}

func TestSubprocessUnknownLanguageFails(t *testing.T) {
	eng := NewSubprocessEngine()
	lang := profile.Language{Name: "cobol", Command: "no-such-interpreter {code}"}

	res, err := eng.Run(context.Background(), lang, "DISPLAY 'HI'", "", Limits{Timeout: time.Second})
	if err != nil {
		t.Fatalf("unknown language must not error the run: %v", err)
	}
	if res.ExitCode != 1 || !strings.Contains(res.Stderr, "blocked") {
		t.Fatalf("result = %+v, want blocked failure", res)
	}
}
