package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Request schema names.
const (
	SchemaCreateWorld = "create_world"
	SchemaSelectWorld = "select_world"
	SchemaTimeScale   = "time_scale"
	SchemaCharacter   = "character"
	SchemaEvent       = "event"
	SchemaSummarize   = "summarize"
	SchemaHello       = "hello"
	SchemaLocation    = "location"
)

const schemaBase = "https://worldsim.ai/schemas/"

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		entries, err := schemaFS.ReadDir("schemas")
		if err != nil {
			schemasErr = err
			return
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		var names []string
		for _, e := range entries {
			b, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(schemaBase+e.Name(), bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("schema %s: %w", e.Name(), err)
				return
			}
			names = append(names, e.Name())
		}
		out := make(map[string]*jsonschema.Schema, len(names))
		for _, n := range names {
			s, err := c.Compile(schemaBase + n)
			if err != nil {
				schemasErr = fmt.Errorf("compile %s: %w", n, err)
				return
			}
			out[strings.TrimSuffix(n, ".schema.json")] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks a raw JSON body against a named request schema. Any
// mismatch, including malformed JSON, is an E_INVALID_ARGUMENT error.
func Validate(name string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return Errorf(ErrInternal, "schemas: %v", err)
	}
	s := all[name]
	if s == nil {
		return Errorf(ErrInternal, "unknown schema %q", name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Errorf(ErrInvalidArgument, "malformed json: %v", err)
	}
	if err := s.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Errorf(ErrInvalidArgument, "%s", leafMessage(ve))
		}
		return Errorf(ErrInvalidArgument, "%v", err)
	}
	return nil
}

// leafMessage reports the deepest cause, which names the offending field.
func leafMessage(ve *jsonschema.ValidationError) string {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return loc + ": " + ve.Message
}
