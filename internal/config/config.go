// Package config loads tabwrite configuration from YAML.
//
// A file is decoded with yaml.v3 and then unified with an embedded CUE
// schema, so unknown keys, bad enum values and malformed durations are
// rejected with a path to the offending field before any value is used.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Config is the full tabwrite configuration.
type Config struct {
	Database      string        `yaml:"database"`
	Log           LogConfig     `yaml:"log"`
	DefectPolicy  string        `yaml:"defect_policy"`
	AwaitTimeout  Duration      `yaml:"await_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	Tables        []TableConfig `yaml:"tables"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TableConfig declares a table and whether the process owns it.
type TableConfig struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Hold    bool     `yaml:"hold"`
}

// Duration is a time.Duration written as a Go duration string.
type Duration time.Duration

// UnmarshalYAML parses strings like "250ms" or "2s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ValidationError reports a config that does not satisfy the schema.
type ValidationError struct {
	Path string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %v", e.Path, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Issue is one schema violation.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
}

// Issues splits a Load or Parse error into one Issue per violated field.
func Issues(err error) []Issue {
	if err == nil {
		return nil
	}
	var out []Issue
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		msg := fmt.Sprintf(format, args...)
		if msg == "" {
			msg = e.Error()
		}
		out = append(out, Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: msg,
		})
	}
	return out
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database:      "tabwrite.db",
		Log:           LogConfig{Level: "info", Format: "text"},
		DefectPolicy:  "fallback",
		AwaitTimeout:  Duration(5 * time.Second),
		RetryAttempts: 3,
	}
}

// Load reads and validates the file at path. Keys missing from the file
// keep their Default values.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, &ValidationError{Path: path, Err: err}
	}
	return cfg, nil
}

// Parse validates YAML config data and decodes it over Default.
func Parse(data []byte) (Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	if raw == nil {
		return Default(), nil
	}
	if err := validate(raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func validate(raw any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.Encode(raw)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

// Table returns the table config named name.
func (c Config) Table(name string) (TableConfig, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return TableConfig{}, false
}

// Held returns the names of tables marked hold.
func (c Config) Held() []string {
	var out []string
	for _, t := range c.Tables {
		if t.Hold {
			out = append(out, t.Name)
		}
	}
	return out
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// ErrUnknownFormat is returned by Handler for a format other than text or json.
var ErrUnknownFormat = errors.New("unknown log format")

// Handler builds the slog handler this config asks for. verbose forces
// debug level.
func (l LogConfig) Handler(w io.Writer, verbose bool) (slog.Handler, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownFormat, l.Format)
	}
}
