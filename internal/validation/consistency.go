package validation

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/codegraph/internal/graph"
	"github.com/rohankatakam/codegraph/internal/models"
)

// ValidationResult compares the entities extracted for one label with the
// node tuples produced for it
type ValidationResult struct {
	EntityType      string
	ExtractedCount  int64
	TupleCount      int64
	VariancePercent float64
	PassedThreshold bool
}

// ConsistencyValidator checks that the transform neither dropped nor
// duplicated entities
type ConsistencyValidator struct {
	logger *logrus.Logger
}

// NewConsistencyValidator creates a new consistency validator
func NewConsistencyValidator(logger *logrus.Logger) *ConsistencyValidator {
	return &ConsistencyValidator{logger: logger}
}

// Validate counts entities per label in the IR and in the tuples. Every
// label must match exactly.
func (v *ConsistencyValidator) Validate(results []*models.FileResult, tuples *graph.TupleSet) []ValidationResult {
	extracted := map[string]int64{}
	for _, r := range results {
		if r == nil {
			continue
		}
		extracted[graph.LabelModule]++
		extracted[graph.LabelClass] += int64(len(r.Classes))
		extracted[graph.LabelFunction] += int64(len(r.Functions))
		extracted[graph.LabelVariable] += int64(len(r.Variables))
	}
	produced := tuples.CountByLabel()

	var out []ValidationResult
	for _, label := range []string{graph.LabelModule, graph.LabelClass, graph.LabelFunction, graph.LabelVariable} {
		want := extracted[label]
		got := int64(produced[label])
		variance := 100.0
		if want > 0 {
			variance = float64(got) / float64(want) * 100.0
		} else if got > 0 {
			variance = 0
		}
		out = append(out, ValidationResult{
			EntityType:      label,
			ExtractedCount:  want,
			TupleCount:      got,
			VariancePercent: variance,
			PassedThreshold: want == got,
		})
	}
	return out
}

// Passed reports whether every result matched
func Passed(results []ValidationResult) bool {
	for _, r := range results {
		if !r.PassedThreshold {
			return false
		}
	}
	return true
}

// LogResults logs validation results in a formatted way
func (v *ConsistencyValidator) LogResults(results []ValidationResult) {
	for _, r := range results {
		v.logger.WithFields(logrus.Fields{
			"extracted": r.ExtractedCount,
			"tuples":    r.TupleCount,
		}).Debug(fmt.Sprintf("%-9s sync=%.1f%%", r.EntityType+":", r.VariancePercent))
	}

	if Passed(results) {
		v.logger.Debug("all entity counts match")
	} else {
		v.logger.Warn("entity counts differ between extraction and tuples")
	}
}
