// Package profile defines the per-language execution profiles.
package profile

import (
	"fmt"

	"github.com/google/shlex"
)

// Language is a supported execution language.
type Language struct {
	// Name is the canonical identifier clients send.
	Name string `yaml:"name"`
	// Image is the container image for isolated runs.
	Image string `yaml:"image"`
	// Command is the shell-quoted argv template; the literal {code} token is
	// replaced with the submitted source.
	Command string `yaml:"command"`
	// FallbackCommand is the argv template for the restricted subprocess
	// path. Empty means same as Command.
	FallbackCommand string `yaml:"fallbackCommand"`
}

// Registry resolves language names to profiles.
type Registry struct {
	languages map[string]Language
}

// Defaults returns the built-in language set.
func Defaults() []Language {
	return []Language{
		{
			Name:    "python",
			Image:   "python:3.11-alpine",
			Command: `python3 -c {code}`,
		},
		{
			Name:    "javascript",
			Image:   "node:20-alpine",
			Command: `node -e {code}`,
		},
	}
}

// NewRegistry builds a registry from the given profiles, falling back to the
// defaults with an empty list.
func NewRegistry(languages []Language) (*Registry, error) {
	if len(languages) == 0 {
		languages = Defaults()
	}
	reg := &Registry{languages: make(map[string]Language, len(languages))}
	for _, lang := range languages {
		if lang.Name == "" {
			return nil, fmt.Errorf("language profile without a name")
		}
		if lang.Command == "" {
			return nil, fmt.Errorf("language %q has no command", lang.Name)
		}
		// Validate the templates parse up front so a config typo fails at
		// startup instead of on the first run.
		if _, err := shlex.Split(lang.Command); err != nil {
			return nil, fmt.Errorf("language %q command: %w", lang.Name, err)
		}
		if lang.FallbackCommand != "" {
			if _, err := shlex.Split(lang.FallbackCommand); err != nil {
				return nil, fmt.Errorf("language %q fallback command: %w", lang.Name, err)
			}
		}
		reg.languages[lang.Name] = lang
	}
	return reg, nil
}

// Lookup resolves a language by name.
func (r *Registry) Lookup(name string) (Language, bool) {
	lang, ok := r.languages[name]
	return lang, ok
}

// Names lists the registered language names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.languages))
	for name := range r.languages {
		names = append(names, name)
	}
	return names
}

// Argv expands a command template into an argv slice, substituting the
// submitted code for the {code} token.
func Argv(template, code string) ([]string, error) {
	parts, err := shlex.Split(template)
	if err != nil {
		return nil, fmt.Errorf("parse command template: %w", err)
	}
	argv := make([]string, len(parts))
	for i, part := range parts {
		if part == "{code}" {
			argv[i] = code
		} else {
			argv[i] = part
		}
	}
	return argv, nil
}

// FallbackArgv expands the subprocess argv for a language.
func (l Language) FallbackArgv(code string) ([]string, error) {
	template := l.FallbackCommand
	if template == "" {
		template = l.Command
	}
	return Argv(template, code)
}

// ContainerArgv expands the in-container argv for a language.
func (l Language) ContainerArgv(code string) ([]string, error) {
	return Argv(l.Command, code)
}
