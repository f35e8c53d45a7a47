package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/codegraph/internal/graph"
	"github.com/rohankatakam/codegraph/internal/models"
)

func sampleManifest() *Manifest {
	return &Manifest{
		JobID:       "job-1",
		Complete:    true,
		SourceRoot:  "/src",
		FilesTotal:  3,
		FilesOK:     1,
		FilesCached: 1,
		FilesFailed: 1,
		Files: []models.FileOutcome{
			{Path: "/src/a.py", Status: models.StatusOK, Fingerprint: "aa"},
			{Path: "/src/b.py", Status: models.StatusCached, Fingerprint: "bb"},
			{Path: "/src/c.py", Status: models.StatusFailed, Fingerprint: "cc", Error: "line 2: unexpected indent"},
		},
	}
}

func TestManifestRoundTripBothFormats(t *testing.T) {
	for _, format := range []string{FormatJSON, FormatYAML} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			w, err := NewWriter(dir, format)
			require.NoError(t, err)
			require.NoError(t, w.WriteManifest(sampleManifest()))

			got, err := ReadManifest(dir)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, sampleManifest(), got)
			assert.Equal(t, map[string]string{"/src/a.py": "aa", "/src/b.py": "bb", "/src/c.py": "cc"}, got.Fingerprints())
		})
	}
}

func TestReadManifestMissing(t *testing.T) {
	m, err := ReadManifest(t.TempDir())
	assert.NoError(t, err)
	assert.Nil(t, m)
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewWriter(t.TempDir(), "xml")
	assert.Error(t, err)
}

func TestBatchesAreJSONLines(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, FormatJSON)
	require.NoError(t, err)

	batches := []graph.Batch{
		{JobID: "j", BatchSeq: 1, Kind: graph.KindNode, Count: 1, Commands: []graph.Command{{
			TemplateID: "cgraph.node:Class",
			Parameters: map[string]any{"rows": []any{map[string]any{"unique_key": "class:/a.py:A"}}},
		}}},
		{JobID: "j", BatchSeq: 2, Kind: graph.KindNode, Count: 1, Commands: []graph.Command{{
			TemplateID: "cgraph.node:Module",
			Parameters: map[string]any{"rows": []any{map[string]any{"unique_key": "module:/a.py"}}},
		}}},
	}
	require.NoError(t, w.WriteBatches(batches))

	data, err := os.ReadFile(filepath.Join(dir, BatchesFile))
	require.NoError(t, err)
	assert.Equal(t, 2, bytes.Count(data, []byte("\n")))

	got, err := ReadBatches(dir)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[1].BatchSeq)
	assert.Equal(t, graph.KindNode, got[1].Kind)
	assert.Equal(t, "cgraph.node:Module", got[1].Commands[0].TemplateID)

	// same input, same bytes
	require.NoError(t, w.WriteBatches(batches))
	again, err := os.ReadFile(filepath.Join(dir, BatchesFile))
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, FormatYAML)
	require.NoError(t, err)
	require.NoError(t, w.WriteTemplates(graph.TemplateCatalog{"cgraph.schema": "CREATE CONSTRAINT"}))
	require.NoError(t, w.WriteEnvelope(&Envelope{JobID: "j", GeneratedAt: time.Unix(0, 0).UTC()}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"templates.yaml", "envelope.yaml"}, names)
}

func TestFormatters(t *testing.T) {
	s := &Summary{
		Manifest: sampleManifest(),
		Envelope: &Envelope{NodeCount: 12, RelationshipCount: 20, NodesByLabel: map[string]int{"Module": 3}},
	}

	var quiet bytes.Buffer
	require.NoError(t, NewFormatter(VerbosityQuiet).Format(s, &quiet))
	assert.Equal(t, "3 files, 12 nodes, 20 relationships, 1 failed\n", quiet.String())

	var std bytes.Buffer
	require.NoError(t, NewFormatter(VerbosityStandard).Format(s, &std))
	assert.Contains(t, std.String(), "Files: 3 (ok 1, cached 1, failed 1, skipped 0, cancelled 0)")
	assert.Contains(t, std.String(), "- /src/c.py [failed] line 2: unexpected indent")

	s.Manifest.Complete = false
	s.Manifest.FilesCancelled = 2
	quiet.Reset()
	require.NoError(t, NewFormatter(VerbosityQuiet).Format(s, &quiet))
	assert.Equal(t, "cancelled: 1 of 3 files processed\n", quiet.String())
}
