// Package command declares the CLI command bindings and request building.
package command

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldFloat
	FieldBool
	FieldFile
)

// Field defines a CLI input field.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
}

// Command defines a CLI command binding.
type Command struct {
	Service      string
	Action       string
	Method       string
	PathTemplate string
	Fields       []Field
}

// Key returns the registry key "service action".
func (c Command) Key() string {
	return c.Service + " " + c.Action
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method string
	Path   string
	Body   []byte
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// Canonicalize folds field aliases onto their canonical names.
func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

func ParseFloat(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

func ParseBool(value string) (bool, error) {
	return strconv.ParseBool(strings.TrimSpace(value))
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}
