package output

import (
	"time"

	"github.com/rohankatakam/codegraph/internal/models"
)

// Manifest records what happened to every cataloged file in a run. A run
// that was cancelled writes a manifest with Complete=false and no batches.
type Manifest struct {
	JobID          string               `json:"job_id" yaml:"job_id"`
	Complete       bool                 `json:"complete" yaml:"complete"`
	SourceRoot     string               `json:"source_root" yaml:"source_root"`
	FilesTotal     int                  `json:"files_total" yaml:"files_total"`
	FilesOK        int                  `json:"files_ok" yaml:"files_ok"`
	FilesCached    int                  `json:"files_cached" yaml:"files_cached"`
	FilesFailed    int                  `json:"files_failed" yaml:"files_failed"`
	FilesSkipped   int                  `json:"files_skipped" yaml:"files_skipped"`
	FilesCancelled int                  `json:"files_cancelled" yaml:"files_cancelled"`
	Changes        *ChangeSummary       `json:"changes,omitempty" yaml:"changes,omitempty"`
	Files          []models.FileOutcome `json:"files" yaml:"files"`
}

// ChangeSummary counts files against the previous run's manifest
type ChangeSummary struct {
	Added     int `json:"added" yaml:"added"`
	Modified  int `json:"modified" yaml:"modified"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
}

// Fingerprints returns path -> fingerprint for files that have one
func (m *Manifest) Fingerprints() map[string]string {
	out := make(map[string]string, len(m.Files))
	for _, f := range m.Files {
		if f.Fingerprint != "" {
			out[f.Path] = f.Fingerprint
		}
	}
	return out
}

// Envelope summarizes the emitted batches of a job
type Envelope struct {
	JobID               string         `json:"job_id" yaml:"job_id"`
	GeneratedAt         time.Time      `json:"generated_at" yaml:"generated_at"`
	SourceRoot          string         `json:"source_root" yaml:"source_root"`
	NodeCount           int            `json:"node_count" yaml:"node_count"`
	RelationshipCount   int            `json:"relationship_count" yaml:"relationship_count"`
	BatchCount          int            `json:"batch_count" yaml:"batch_count"`
	SchemaTemplate      string         `json:"schema_template" yaml:"schema_template"`
	NodesByLabel        map[string]int `json:"nodes_by_label" yaml:"nodes_by_label"`
	RelationshipsByType map[string]int `json:"relationships_by_type" yaml:"relationships_by_type"`
}
