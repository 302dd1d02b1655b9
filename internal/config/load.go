package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// Shape tags which on-disk layout the client mapping used.
type Shape string

const (
	// ShapeNested is the current layout: clients under a "clients" key,
	// app settings alongside it.
	ShapeNested Shape = "nested"
	// ShapeFlat is the legacy layout: the whole document is an
	// id -> client mapping with no app settings.
	ShapeFlat Shape = "flat"
)

// Load reads and normalizes the configuration file.
//
// A missing or unparsable file is not fatal: Load returns a usable Config
// with an empty client set together with the error, so the caller can log
// the failure and keep the process alive (it will simply schedule nothing).
func Load(path string) (*Config, Shape, error) {
	cfg := defaultConfig()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, ShapeNested, fmt.Errorf("read config: %w", err)
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return cfg, ShapeNested, err
	}

	shape, err := decodeShaped(jb, cfg)
	if err != nil {
		return defaultConfig(), shape, err
	}

	for id, c := range cfg.Clients {
		c.applyDefaults(id)
		cfg.Clients[id] = c
	}
	return cfg, shape, nil
}

func defaultConfig() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{PollInterval: "60s"},
		Scrape: ScrapeConfig{
			TargetDelay:    "5s",
			RequestTimeout: "30s",
			DefaultTargets: []string{"https://www.olx.pl/praca/produkcja/"},
		},
		Clients: map[string]ClientConfig{},
	}
}

// decodeShaped resolves the two accepted layouts into cfg.
//
// Nested is tried first with strict decoding; if the document has no
// "clients" key and instead looks like a bare client mapping, it is decoded
// as the legacy flat shape. This is the single place legacy translation
// happens.
func decodeShaped(jb []byte, cfg *Config) (Shape, error) {
	// Peek at the top-level keys to classify the shape.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(jb, &probe); err != nil {
		return ShapeNested, fmt.Errorf("parse config: %w", err)
	}
	if _, ok := probe["clients"]; ok || hasAppKeys(probe) {
		if err := strictDecode(jb, cfg); err != nil {
			return ShapeNested, fmt.Errorf("parse config: %w", err)
		}
		if cfg.Clients == nil {
			cfg.Clients = map[string]ClientConfig{}
		}
		return ShapeNested, nil
	}

	clients := map[string]ClientConfig{}
	if err := strictDecode(jb, &clients); err != nil {
		return ShapeFlat, fmt.Errorf("parse config (flat shape): %w", err)
	}
	cfg.Clients = clients
	return ShapeFlat, nil
}

func hasAppKeys(probe map[string]json.RawMessage) bool {
	for _, k := range []string{"logging", "scheduler", "scrape", "crm", "storage"} {
		if _, ok := probe[k]; ok {
			return true
		}
	}
	return false
}

// strictDecode rejects unknown fields and trailing tokens so typos in config
// keys are caught at load time instead of being silently ignored.
func strictDecode(jb []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return fmt.Errorf("trailing data")
		}
		return err
	}
	return nil
}

// coerceToJSONBytes converts YAML config to JSON bytes so the strict JSON
// decoder (DisallowUnknownFields) serves both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}

	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}

	v = normalizeYAML(v)

	j, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json marshal: %w", err)
	}
	return j, nil
}

// normalizeYAML ensures all map keys are strings so the result can be JSON-marshaled.
func normalizeYAML(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = normalizeYAML(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = normalizeYAML(v)
		}
		return m
	case []any:
		for i := range x {
			x[i] = normalizeYAML(x[i])
		}
		return x
	default:
		return in
	}
}
