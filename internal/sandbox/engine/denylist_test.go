package engine

import "testing"

func TestScanCleanPythonCode(t *testing.T) {
	res := Scan("python", "print(sum(int(x) for x in input().split()))")
	if res.Blocked {
		t.Fatalf("clean code blocked by pattern %q", res.Pattern)
	}
}

func TestScanBlocksOSAccess(t *testing.T) {
	cases := []struct {
		language string
		code     string
	}{
		{"python", "import os\nos.system('ls')"},
		{"python", "import subprocess"},
		{"python", "x = eval(input())"},
		{"python", "f = open('/etc/passwd')"},
		{"javascript", "const cp = require('child_process')"},
		{"javascript", "process.exit(1)"},
		{"javascript", "eval('1+1')"},
		{"javascript", "fetch('http://example.com')"},
	}
	for _, tc := range cases {
		if res := Scan(tc.language, tc.code); !res.Blocked {
			t.Fatalf("expected block for %s code %q", tc.language, tc.code)
		}
	}
}

func TestScanUnknownLanguageBlocked(t *testing.T) {
	if res := Scan("cobol", "DISPLAY 'HELLO'"); !res.Blocked {
		t.Fatalf("unknown language must be blocked from fallback")
	}
}
