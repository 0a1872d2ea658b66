package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "monitor",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/monitor/status/{attempt_id}",
			Fields: []Field{
				{Name: "attempt_id", Aliases: []string{"attempt"}, Prompt: "attempt_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "monitor",
			Action:       "live",
			Method:       "GET",
			PathTemplate: "/api/v1/monitor/live-sessions/{exam_id}",
			Fields: []Field{
				{Name: "exam_id", Aliases: []string{"exam"}, Prompt: "exam_id", Type: FieldString, Required: true},
			},
		},
		{
			Service:      "monitor",
			Action:       "override",
			Method:       "POST",
			PathTemplate: "/api/v1/monitor/override",
			Fields: []Field{
				{Name: "attempt_id", Aliases: []string{"attempt"}, Prompt: "attempt_id", Type: FieldString, Required: true},
				{Name: "dimension", Prompt: "dimension", Type: FieldString, Required: true},
				{Name: "amount", Prompt: "amount", Type: FieldFloat, Required: true},
				{Name: "reason", Prompt: "reason", Type: FieldString},
			},
		},
		{
			Service:      "monitor",
			Action:       "intervene",
			Method:       "POST",
			PathTemplate: "/api/v1/monitor/intervene",
			Fields: []Field{
				{Name: "attempt_id", Aliases: []string{"attempt"}, Prompt: "attempt_id", Type: FieldString, Required: true},
				{Name: "action", Prompt: "action (pause|resume|terminate|complete)", Type: FieldString, Required: true},
				{Name: "reason", Prompt: "reason", Type: FieldString},
			},
		},
		{
			Service:      "monitor",
			Action:       "audit",
			Method:       "GET",
			PathTemplate: "/api/v1/monitor/audit/{attempt_id}",
			Fields: []Field{
				{Name: "attempt_id", Aliases: []string{"attempt"}, Prompt: "attempt_id", Type: FieldString, Required: true},
				{Name: "archive", Prompt: "archive (true|false)", Type: FieldBool},
			},
		},
		{
			Service:      "exec",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/exec/run",
			Fields: []Field{
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code_file", Aliases: []string{"file"}, Prompt: "code_file", Type: FieldFile, Required: true},
				{Name: "stdin", Prompt: "stdin", Type: FieldString},
			},
		},
		{
			Service:      "exec",
			Action:       "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/exec/submit/{attempt_id}/{question_id}",
			Fields: []Field{
				{Name: "attempt_id", Aliases: []string{"attempt"}, Prompt: "attempt_id", Type: FieldString, Required: true},
				{Name: "question_id", Aliases: []string{"question"}, Prompt: "question_id", Type: FieldString, Required: true},
				{Name: "language", Aliases: []string{"lang"}, Prompt: "language", Type: FieldString, Required: true},
				{Name: "code_file", Aliases: []string{"file"}, Prompt: "code_file", Type: FieldFile, Required: true},
			},
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		registry[cmd.Key()] = cmd
	}
	return registry
}

// BuildRequest validates params against the command and builds the request.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	for _, field := range cmd.Fields {
		if field.Required && !params.Has(field.Name) {
			return RequestSpec{}, fmt.Errorf("missing required field %q", field.Name)
		}
	}

	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	spec := RequestSpec{Method: cmd.Method, Path: path}
	if cmd.Method == "GET" {
		if cmd.Service == "monitor" && cmd.Action == "audit" && params.Get("archive") == "true" {
			spec.Path += "?archive=true"
		}
		return spec, nil
	}

	payload, err := buildPayload(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return RequestSpec{}, fmt.Errorf("marshal payload failed: %w", err)
	}
	spec.Body = body
	return spec, nil
}

// buildPath substitutes {name} segments from params. Path params never go
// into the JSON payload.
func buildPath(template string, params Params) (string, error) {
	path := template
	for {
		start := strings.Index(path, "{")
		if start < 0 {
			return path, nil
		}
		end := strings.Index(path[start:], "}")
		if end < 0 {
			return "", fmt.Errorf("unbalanced path template %q", template)
		}
		name := path[start+1 : start+end]
		value := params.Get(name)
		if value == "" {
			return "", fmt.Errorf("missing path param %q", name)
		}
		path = path[:start] + value + path[start+end+1:]
	}
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	payload := make(map[string]interface{})
	pathParams := pathParamNames(cmd.PathTemplate)
	for _, field := range cmd.Fields {
		if _, inPath := pathParams[field.Name]; inPath {
			continue
		}
		raw := params.Get(field.Name)
		if raw == "" {
			continue
		}
		switch field.Type {
		case FieldFloat:
			v, err := ParseFloat(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			payload[field.Name] = v
		case FieldBool:
			v, err := ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			payload[field.Name] = v
		case FieldFile:
			content, err := ReadFile(raw)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", field.Name, err)
			}
			payload["code"] = content
		default:
			payload[field.Name] = raw
		}
	}
	return payload, nil
}

func pathParamNames(template string) map[string]struct{} {
	names := make(map[string]struct{})
	rest := template
	for {
		start := strings.Index(rest, "{")
		if start < 0 {
			return names
		}
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			return names
		}
		names[rest[start+1:start+end]] = struct{}{}
		rest = rest[start+end+1:]
	}
}
