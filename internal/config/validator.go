package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar"
	"github.com/rohankatakam/codegraph/internal/errors"
)

// EntityKinds are the keys accepted in parser.select
var EntityKinds = []string{"class", "function", "variable", "import"}

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Err converts a failed result into a fatal config error
func (vr *ValidationResult) Err() error {
	if !vr.HasErrors() {
		return nil
	}
	return errors.ConfigErrorf("%s", strings.TrimSpace(vr.Error()))
}

// Validate checks value ranges and enumerations. Backend names are checked
// later against the parser registry, which owns the set of known names.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	if c.Workers < 1 {
		result.AddError("workers must be >= 1 (got %d)", c.Workers)
	}

	c.validateDiscovery(result)
	c.validateParser(result)
	c.validateLimits(result)
	c.validateCache(result)
	c.validateEmit(result)

	switch c.Resolve.Calls {
	case "off", "strict", "heuristic":
	default:
		result.AddError("resolve.calls must be off, strict or heuristic (got %q)", c.Resolve.Calls)
	}

	return result
}

func (c *Config) validateDiscovery(result *ValidationResult) {
	if len(c.Discovery.Include) == 0 {
		result.AddError("discovery.include must list at least one pattern")
	}
	for _, patterns := range [][]string{c.Discovery.Include, c.Discovery.Exclude} {
		for _, p := range patterns {
			if _, err := doublestar.Match(p, "probe"); err != nil {
				result.AddError("invalid glob %q: %v", p, err)
			}
		}
	}
	if c.Discovery.MaxFileBytes <= 0 {
		result.AddWarning("discovery.max_file_bytes <= 0 disables the size limit")
	}
}

func (c *Config) validateParser(result *ValidationResult) {
	if c.Parser.Baseline == "" {
		result.AddError("parser.baseline is required")
	}
	for kind := range c.Parser.Select {
		known := false
		for _, k := range EntityKinds {
			if k == kind {
				known = true
				break
			}
		}
		if !known {
			result.AddError("parser.select: unknown entity kind %q (want one of %s)", kind, strings.Join(EntityKinds, ", "))
		}
	}
}

func (c *Config) validateLimits(result *ValidationResult) {
	if c.Limits.MaxDepth < 1 {
		result.AddError("limits.max_depth must be >= 1 (got %d)", c.Limits.MaxDepth)
	}
	if c.Limits.FileTimeout <= 0 {
		result.AddError("limits.file_timeout must be positive (got %s)", c.Limits.FileTimeout)
	}
}

func (c *Config) validateCache(result *ValidationResult) {
	switch c.Cache.Backend {
	case "bolt", "sqlite":
		if c.Cache.Path == "" {
			result.AddError("cache.path is required for the %s backend", c.Cache.Backend)
		}
	case "memory":
		result.AddWarning("memory cache does not persist between runs")
	default:
		result.AddError("cache.backend must be bolt, sqlite or memory (got %q)", c.Cache.Backend)
	}
	if c.Cache.LRUSize < 1 {
		result.AddError("cache.lru_size must be >= 1 (got %d)", c.Cache.LRUSize)
	}
}

func (c *Config) validateEmit(result *ValidationResult) {
	switch c.Emit.Format {
	case "json", "yaml":
	default:
		result.AddError("emit.format must be json or yaml (got %q)", c.Emit.Format)
	}

	sizes := map[string]int{
		"module_batch_size":       c.Emit.ModuleBatchSize,
		"class_batch_size":        c.Emit.ClassBatchSize,
		"function_batch_size":     c.Emit.FunctionBatchSize,
		"variable_batch_size":     c.Emit.VariableBatchSize,
		"stub_batch_size":         c.Emit.StubBatchSize,
		"relationship_batch_size": c.Emit.RelationshipBatchSize,
	}
	for name, size := range sizes {
		if size < 1 {
			result.AddError("emit.%s must be >= 1 (got %d)", name, size)
		}
	}
	if c.Emit.IncludeTimestamps {
		result.AddWarning("emit.include_timestamps makes output differ between runs on unchanged input")
	}
}
