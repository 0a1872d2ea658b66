package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"proctorhub/internal/cli/command"
	"proctorhub/internal/cli/config"
	"proctorhub/internal/cli/httpclient"
	"proctorhub/internal/cli/repl"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Override access token")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}

	// The token provider reads through the session so "set token" applies
	// to requests issued after it.
	var session *repl.Session
	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string {
		return session.Token()
	})

	commands := command.Registry()
	session = repl.New(client, commands, cfg.Token, cfg.PrettyJSON != nil && *cfg.PrettyJSON)
	if err := session.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "repl failed: %v\n", err)
	}
}
