package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/ttsd/internal/config/schema"
)

// Validation errors that the schema cannot express.
var (
	ErrUnknownModel      = errors.New("service references unknown model")
	ErrWrongBackend      = errors.New("model backend does not match service")
	ErrNoDefaultTTSModel = errors.New("services.tts.models is empty")
)

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.CompileString(schema.URL, schema.V1)
})

// LoadAndValidate loads and validates the configuration.
func LoadAndValidate(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse validates YAML config bytes against the embedded schema and decodes them.
func Parse(data []byte) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	// The validator only understands JSON-decoded values.
	doc, err := toJSONValue(raw)
	if err != nil {
		return nil, fmt.Errorf("manager: failed to convert config: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, fmt.Errorf("manager: failed to compile schema: %w", err)
	}

	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("manager: config validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("manager: failed to unmarshal into Config struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("manager: config validation failed: %w", err)
	}

	return &config, nil
}

// Validate checks cross references between services and models.
func (c *Config) Validate() error {
	if len(c.Services.TTS.Models) == 0 {
		return ErrNoDefaultTTSModel
	}

	check := func(service string, ids []string, backends ...string) error {
		for _, id := range ids {
			m, ok := c.Models[id]
			if !ok {
				return fmt.Errorf("%w: services.%s -> %q", ErrUnknownModel, service, id)
			}
			if !slices.Contains(backends, m.Backend) {
				return fmt.Errorf("%w: services.%s -> %q uses %q", ErrWrongBackend, service, id, m.Backend)
			}
		}
		return nil
	}

	return errors.Join(
		check("tts", c.Services.TTS.Models, "piper", "bark"),
		check("bark", c.Services.Bark.Models, "bark"),
	)
}

func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
