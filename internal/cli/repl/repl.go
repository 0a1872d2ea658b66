// Package repl implements the interactive operator console.
package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"proctorhub/internal/cli/command"
	"proctorhub/internal/cli/httpclient"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	token      string
	prettyJSON bool
}

func New(client *httpclient.Client, commands map[string]command.Command, token string, prettyJSON bool) *Session {
	return &Session{
		client:     client,
		commands:   commands,
		token:      token,
		prettyJSON: prettyJSON,
	}
}

// Token returns the current bearer token; the HTTP client reads it through
// this so "set token" takes effect immediately.
func (s *Session) Token() string {
	return s.token
}

// Run reads lines until EOF or an exit command.
func (s *Session) Run(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "proctorhub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    s.completer(),
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer func() { _ = rl.Close() }()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch {
		case line == "exit" || line == "quit":
			fmt.Println("bye")
			return nil
		case line == "help":
			s.printHelp()
			continue
		case strings.HasPrefix(line, "set "):
			s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
			continue
		}

		if err := s.handleCommand(ctx, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// handleCommand parses "service action key=value ..." and executes it.
func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse input failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("expected: <service> <action> [key=value ...]")
	}

	key := tokens[0] + " " + tokens[1]
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", key)
	}

	params := make(command.Params)
	for _, tok := range tokens[2:] {
		name, value, found := strings.Cut(tok, "=")
		if !found {
			return fmt.Errorf("argument %q is not key=value", tok)
		}
		params.Set(name, value)
	}

	spec, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}

	info, err := s.client.Do(ctx, spec.Method, spec.Path, spec.Body)
	if err != nil {
		return err
	}
	s.printResponse(info)
	return nil
}

func (s *Session) handleSet(arg string) {
	name, value, found := strings.Cut(arg, " ")
	if !found {
		fmt.Println("usage: set <token|base|timeout> <value>")
		return
	}
	value = strings.TrimSpace(value)
	switch name {
	case "token":
		s.token = value
		fmt.Println("token updated")
	case "base":
		s.client.SetBaseURL(value)
		fmt.Println("base URL updated")
	case "timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			fmt.Printf("invalid duration: %v\n", err)
			return
		}
		s.client.SetTimeout(d)
		fmt.Println("timeout updated")
	default:
		fmt.Printf("unknown setting %q\n", name)
	}
}

func (s *Session) printResponse(info httpclient.ResponseInfo) {
	fmt.Printf("HTTP %d (%s)\n", info.StatusCode, info.Duration.Round(time.Millisecond))
	if len(info.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var buf map[string]interface{}
		if err := json.Unmarshal(info.Body, &buf); err == nil {
			if pretty, err := json.MarshalIndent(buf, "", "  "); err == nil {
				fmt.Println(string(pretty))
				return
			}
		}
	}
	fmt.Println(string(info.Body))
}

func (s *Session) printHelp() {
	keys := make([]string, 0, len(s.commands))
	for key := range s.commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Println("commands:")
	for _, key := range keys {
		cmd := s.commands[key]
		fields := make([]string, 0, len(cmd.Fields))
		for _, f := range cmd.Fields {
			name := f.Name
			if f.Required {
				name += "*"
			}
			fields = append(fields, name)
		}
		fmt.Printf("  %-20s %s\n", key, strings.Join(fields, " "))
	}
	fmt.Println("  set token|base|timeout <value>")
	fmt.Println("  help, exit")
}

func (s *Session) completer() readline.AutoCompleter {
	services := make(map[string][]readline.PrefixCompleterInterface)
	for _, cmd := range s.commands {
		services[cmd.Service] = append(services[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := make([]readline.PrefixCompleterInterface, 0, len(services)+3)
	for service, actions := range services {
		items = append(items, readline.PcItem(service, actions...))
	}
	items = append(items,
		readline.PcItem("set",
			readline.PcItem("token"),
			readline.PcItem("base"),
			readline.PcItem("timeout")),
		readline.PcItem("help"),
		readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}
