package graph

import "github.com/rohankatakam/codegraph/internal/config"

// BatchConfig bounds the number of rows per batch for each node label and
// for relationships
//
// Rows with few properties tolerate larger batches:
// - Modules and classes carry docstrings: 500-1000
// - Functions and variables: 1000-2000
// - Relationships: 1000-5000
type BatchConfig struct {
	ModuleBatchSize       int
	ClassBatchSize        int
	FunctionBatchSize     int
	VariableBatchSize     int
	StubBatchSize         int
	RelationshipBatchSize int
}

// DefaultBatchConfig returns batch sizes for medium repos (~5K files)
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		ModuleBatchSize:       500,
		ClassBatchSize:        1000,
		FunctionBatchSize:     2000,
		VariableBatchSize:     2000,
		StubBatchSize:         1000,
		RelationshipBatchSize: 5000,
	}
}

// BatchConfigFromEmit takes sizes from configuration. Unset sizes keep
// their defaults.
func BatchConfigFromEmit(cfg config.EmitConfig) BatchConfig {
	bc := DefaultBatchConfig()
	pick := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}
	pick(&bc.ModuleBatchSize, cfg.ModuleBatchSize)
	pick(&bc.ClassBatchSize, cfg.ClassBatchSize)
	pick(&bc.FunctionBatchSize, cfg.FunctionBatchSize)
	pick(&bc.VariableBatchSize, cfg.VariableBatchSize)
	pick(&bc.StubBatchSize, cfg.StubBatchSize)
	pick(&bc.RelationshipBatchSize, cfg.RelationshipBatchSize)
	return bc
}

// SizeForLabel returns the batch size for a given node label
func (bc BatchConfig) SizeForLabel(label string) int {
	var n int
	switch label {
	case LabelModule:
		n = bc.ModuleBatchSize
	case LabelClass:
		n = bc.ClassBatchSize
	case LabelFunction:
		n = bc.FunctionBatchSize
	case LabelVariable:
		n = bc.VariableBatchSize
	case LabelImportTarget:
		n = bc.StubBatchSize
	}
	if n <= 0 {
		return 500 // Default for unknown types
	}
	return n
}

// SizeForRelationship returns the batch size for a relationship type
func (bc BatchConfig) SizeForRelationship(string) int {
	if bc.RelationshipBatchSize <= 0 {
		return 5000
	}
	return bc.RelationshipBatchSize
}
