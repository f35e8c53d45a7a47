package output

import (
	"os"
)

// GetDefaultVerbosity returns appropriate default based on environment
func GetDefaultVerbosity() VerbosityLevel {
	if os.Getenv("CGRAPH_QUIET") == "1" {
		return VerbosityQuiet
	}

	// CI/CD context
	if os.Getenv("CI") == "true" {
		return VerbosityQuiet
	}

	return VerbosityStandard
}

// VerbosityLevel determines output detail
type VerbosityLevel int

const (
	VerbosityQuiet    VerbosityLevel = iota // One-line summary
	VerbosityStandard                       // Counts + failed files
)
