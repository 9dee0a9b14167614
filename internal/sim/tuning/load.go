package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes parameter overrides read from the environment,
// e.g. STARTUPSIM_TAU=0.25.
const EnvPrefix = "STARTUPSIM_"

const schemaURL = "https://startupsim.ai/schemas/params.schema.json"

//go:embed params.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Load reads a flat YAML or JSON parameter file on top of the defaults.
func Load(path string) (Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, err
	}
	p, err := Parse(raw)
	if err != nil {
		return Params{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a flat key/value document. JSON is accepted as YAML.
func Parse(raw []byte) (Params, error) {
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Params{}, fmt.Errorf("params: %w", err)
	}
	norm := make(map[string]any, len(m))
	for k, v := range m {
		norm[NormalizeKey(k)] = v
	}

	p, err := FromMap(norm)
	if err != nil {
		return Params{}, err
	}

	doc, err := jsonDocument(norm)
	if err != nil {
		return Params{}, err
	}
	sch, err := compiledSchema()
	if err != nil {
		return Params{}, fmt.Errorf("params schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return Params{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// jsonDocument converts yaml-decoded values into the shape the schema
// validator expects (json.Number for every number).
func jsonDocument(m map[string]any) (any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	return doc, nil
}

// ApplyEnv overlays STARTUPSIM_<KEY> variables found through lookup.
func (p Params) ApplyEnv(lookup func(string) (string, bool)) (Params, error) {
	for _, f := range fields {
		raw, ok := lookup(EnvPrefix + f.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return p, fmt.Errorf("%s%s: %w: %q", EnvPrefix, f.key, ErrNotNumeric, raw)
		}
		next, err := p.With(f.key, v)
		if err != nil {
			return p, err
		}
		p = next
	}
	return p, nil
}

// Resolve builds the effective parameter set: defaults, then the optional
// file at path, then environment overrides.
func Resolve(path string) (Params, error) {
	p := Default()
	if strings.TrimSpace(path) != "" {
		loaded, err := Load(path)
		if err != nil {
			return Params{}, err
		}
		p = loaded
	}
	p, err := p.ApplyEnv(os.LookupEnv)
	if err != nil {
		return Params{}, err
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Encode renders p as a flat YAML document readable by Parse.
func Encode(p Params) ([]byte, error) {
	return yaml.Marshal(p)
}
