package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rohankatakam/codegraph/internal/models"
)

// StandardFormatter outputs counts per status, per label and the failed
// files (default)
type StandardFormatter struct{}

func (f *StandardFormatter) Format(s *Summary, w io.Writer) error {
	m := s.Manifest
	fmt.Fprintf(w, "Job: %s\n", m.JobID)
	fmt.Fprintf(w, "Source: %s\n", m.SourceRoot)
	fmt.Fprintf(w, "Files: %d (ok %d, cached %d, failed %d, skipped %d, cancelled %d)\n",
		m.FilesTotal, m.FilesOK, m.FilesCached, m.FilesFailed, m.FilesSkipped, m.FilesCancelled)
	if m.Changes != nil {
		fmt.Fprintf(w, "Changes: %d added, %d modified, %d unchanged\n",
			m.Changes.Added, m.Changes.Modified, m.Changes.Unchanged)
	}

	if e := s.Envelope; e != nil {
		fmt.Fprintf(w, "\nNodes: %d\n", e.NodeCount)
		writeCounts(w, e.NodesByLabel)
		fmt.Fprintf(w, "Relationships: %d\n", e.RelationshipCount)
		writeCounts(w, e.RelationshipsByType)
		fmt.Fprintf(w, "Batches: %d\n", e.BatchCount)
	}

	var failed []models.FileOutcome
	for _, o := range m.Files {
		if o.Status == models.StatusFailed || o.Status == models.StatusSkipped {
			failed = append(failed, o)
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "\nNot analyzed:\n")
		for _, o := range failed {
			fmt.Fprintf(w, "- %s [%s] %s\n", o.Path, o.Status, o.Error)
		}
	}

	if !m.Complete {
		fmt.Fprintf(w, "\nRun cancelled: no batches were written\n")
	}
	if s.OutDir != "" {
		fmt.Fprintf(w, "\nArtifacts: %s (%s)\n", s.OutDir, s.Elapsed.Round(time.Millisecond))
	}
	return nil
}

func writeCounts(w io.Writer, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-14s %d\n", k, counts[k])
	}
}
