package output

import (
	"fmt"
	"io"
)

// QuietFormatter outputs a one-line summary (for scripts and CI)
type QuietFormatter struct{}

func (f *QuietFormatter) Format(s *Summary, w io.Writer) error {
	m := s.Manifest
	if !m.Complete {
		_, err := fmt.Fprintf(w, "cancelled: %d of %d files processed\n", m.FilesTotal-m.FilesCancelled, m.FilesTotal)
		return err
	}
	nodes, rels := 0, 0
	if s.Envelope != nil {
		nodes, rels = s.Envelope.NodeCount, s.Envelope.RelationshipCount
	}
	_, err := fmt.Fprintf(w, "%d files, %d nodes, %d relationships, %d failed\n", m.FilesTotal, nodes, rels, m.FilesFailed)
	return err
}
