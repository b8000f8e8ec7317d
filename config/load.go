package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/FeiyouG/skill-lab-sub000/contract"
)

// EnvPrefix prefixes environment overrides, e.g. SLAB_SCAN_MAX_SCAN_DEPTH.
const EnvPrefix = "SLAB"

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

//go:embed schema.json
var schemaJSON string

var schema = gojsonschema.NewStringLoader(schemaJSON)

// scalar keys that may be set from the environment alone.
var envKeys = []string{
	"scan.max_file_size",
	"scan.max_file_count",
	"scan.max_scan_depth",
	"scoring.default_permission",
	"scoring.wildcard_penalty",
	"scoring.many_critical",
}

// ValidationResult holds errors and warnings from config validation.
type ValidationResult struct {
	Errors   []string
	Warnings []string
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidationError reports a configuration that failed validation.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidConfig }

// Load resolves the configuration: built-in defaults, then the file at
// path when path is non-empty, then SLAB_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("binding %s: %w", k, err)
		}
	}

	source := "environment"
	if path != "" {
		source = path
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	// Environment values arrive as strings; coerce before schema checks.
	for _, k := range envKeys {
		if v.IsSet(k) {
			v.Set(k, v.GetInt64(k))
		}
	}

	settings := v.AllSettings()
	if problems := validateSchema(settings); len(problems) > 0 {
		return Config{}, &ValidationError{Source: source, Problems: problems}
	}

	var o Overrides
	if err := v.Unmarshal(&o); err != nil {
		return Config{}, fmt.Errorf("decoding config %s: %w", source, err)
	}

	cfg := Merge(Default(), o)
	if r := Validate(cfg); !r.IsValid() {
		return Config{}, &ValidationError{Source: source, Problems: r.Errors}
	}
	return cfg, nil
}

func validateSchema(settings map[string]any) []string {
	res, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(settings))
	if err != nil {
		return []string{err.Error()}
	}
	if res.Valid() {
		return nil
	}
	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return problems
}

// Validate checks the semantic constraints the schema cannot express.
func Validate(c Config) *ValidationResult {
	r := &ValidationResult{}

	prev, prevLevel := -1, contract.RiskLevel("")
	for _, l := range contract.RiskLevels {
		t, ok := c.Scoring.Thresholds[string(l)]
		if !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("scoring.thresholds.%s is required", l))
			continue
		}
		if t < prev {
			r.Errors = append(r.Errors, fmt.Sprintf("scoring.thresholds.%s (%d) is below %s (%d)", l, t, prevLevel, prev))
		}
		prev, prevLevel = t, l
	}

	for _, s := range []contract.Severity{contract.SeverityInfo, contract.SeverityWarning, contract.SeverityCritical} {
		if _, ok := c.Scoring.Severity[string(s)]; !ok {
			r.Errors = append(r.Errors, fmt.Sprintf("scoring.severity.%s is required", s))
		}
	}

	if c.Scan.MaxFileCount <= 0 {
		r.Warnings = append(r.Warnings, "scan.max_file_count is not positive; file count is unbounded")
	}
	if c.Scan.MaxFileSize <= 0 {
		r.Warnings = append(r.Warnings, "scan.max_file_size is not positive; file size is unbounded")
	}

	for _, host := range c.Policy.Network.Allow {
		for _, denied := range c.Policy.Network.Deny {
			if strings.EqualFold(host, denied) {
				r.Warnings = append(r.Warnings, fmt.Sprintf("domain %q is both allowed and denied; deny wins", host))
			}
		}
	}
	return r
}
