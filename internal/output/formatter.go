package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"
)

// Artifact formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Encoder writes one document in a fixed format
type Encoder interface {
	Encode(v any, w io.Writer) error
	Ext() string
}

// NewEncoder returns the encoder for format
func NewEncoder(format string) (Encoder, error) {
	switch format {
	case "", FormatJSON:
		return jsonEncoder{}, nil
	case FormatYAML, "yml":
		return yamlEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

type jsonEncoder struct{}

func (jsonEncoder) Encode(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (jsonEncoder) Ext() string { return ".json" }

type yamlEncoder struct{}

func (yamlEncoder) Encode(v any, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func (yamlEncoder) Ext() string { return ".yaml" }

// Summary is what a finished run reports on the terminal
type Summary struct {
	Manifest *Manifest
	Envelope *Envelope // nil when the run did not complete
	OutDir   string
	Elapsed  time.Duration
}

// Formatter renders a run summary for humans
type Formatter interface {
	Format(s *Summary, w io.Writer) error
}

// NewFormatter creates appropriate formatter based on level
func NewFormatter(level VerbosityLevel) Formatter {
	switch level {
	case VerbosityQuiet:
		return &QuietFormatter{}
	default:
		return &StandardFormatter{}
	}
}
