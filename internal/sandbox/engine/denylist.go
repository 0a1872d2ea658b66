package engine

import "strings"

// denylist holds the per-language source patterns that disqualify code from
// the subprocess fallback. A textual hit rejects the run outright; this is a
// coarse screen for the unisolated path, not a security boundary for the
// container path.
var denylist = map[string][]string{
	"python": {
		"import os",
		"from os",
		"import sys",
		"from sys",
		"import subprocess",
		"from subprocess",
		"import socket",
		"from socket",
		"import shutil",
		"import ctypes",
		"import importlib",
		"__import__",
		"eval(",
		"exec(",
		"compile(",
		"open(",
		"globals(",
		"locals(",
	},
	"javascript": {
		"require(",
		"import(",
		"process.",
		"child_process",
		"fs.",
		"net.",
		"http.",
		"https.",
		"eval(",
		"Function(",
		"globalThis",
		"fetch(",
	},
}

// ScanResult names the first denylisted pattern found, empty when clean.
type ScanResult struct {
	Blocked bool
	Pattern string
}

// Scan screens code against the fallback denylist for a language. Languages
// without a denylist are always blocked from the fallback path.
func Scan(language, code string) ScanResult {
	patterns, ok := denylist[language]
	if !ok {
		return ScanResult{Blocked: true, Pattern: "no fallback policy for language"}
	}
	for _, p := range patterns {
		if strings.Contains(code, p) {
			return ScanResult{Blocked: true, Pattern: p}
		}
	}
	return ScanResult{}
}
