package output

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/graph"
)

// Artifact base names inside the output directory
const (
	ManifestName  = "manifest"
	EnvelopeName  = "envelope"
	TemplatesName = "templates"
	BatchesFile   = "batches.jsonl"
)

// Writer stores run artifacts in a directory. Every file is written to a
// temporary name and renamed, so readers never see a partial artifact.
type Writer struct {
	Dir     string
	encoder Encoder
}

// NewWriter creates dir if needed
func NewWriter(dir, format string) (*Writer, error) {
	enc, err := NewEncoder(format)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "output format")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.FileSystemError(err, dir)
	}
	return &Writer{Dir: dir, encoder: enc}, nil
}

// WriteManifest stores the run manifest
func (w *Writer) WriteManifest(m *Manifest) error {
	return w.writeDocument(ManifestName, m)
}

// WriteEnvelope stores the job summary
func (w *Writer) WriteEnvelope(e *Envelope) error {
	return w.writeDocument(EnvelopeName, e)
}

// WriteTemplates stores the template catalog
func (w *Writer) WriteTemplates(catalog graph.TemplateCatalog) error {
	return w.writeDocument(TemplatesName, catalog)
}

// WriteBatches stores one JSON batch per line in BatchSeq order
func (w *Writer) WriteBatches(batches []graph.Batch) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range batches {
		if err := enc.Encode(&batches[i]); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityCritical, "encode batch")
		}
	}
	return w.replace(BatchesFile, buf.Bytes())
}

func (w *Writer) writeDocument(name string, v any) error {
	var buf bytes.Buffer
	if err := w.encoder.Encode(v, &buf); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, errors.SeverityCritical, "encode "+name)
	}
	return w.replace(name+w.encoder.Ext(), buf.Bytes())
}

func (w *Writer) replace(name string, data []byte) error {
	target := filepath.Join(w.Dir, name)
	tmp, err := os.CreateTemp(w.Dir, "."+name+".*")
	if err != nil {
		return errors.FileSystemError(err, target)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.FileSystemError(err, target)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileSystemError(err, target)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return errors.FileSystemError(err, target)
	}
	return nil
}

// ReadManifest loads the manifest a previous run left in dir, in either
// format. A missing manifest returns (nil, nil).
func ReadManifest(dir string) (*Manifest, error) {
	for _, ext := range []string{".json", ".yaml"} {
		path := filepath.Join(dir, ManifestName+ext)
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.FileSystemError(err, path)
		}

		var m Manifest
		if ext == ".json" {
			err = json.Unmarshal(data, &m)
		} else {
			err = yaml.Unmarshal(data, &m)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "decode "+path)
		}
		return &m, nil
	}
	return nil, nil
}

// ReadBatches loads the batches written by WriteBatches
func ReadBatches(dir string) ([]graph.Batch, error) {
	path := filepath.Join(dir, BatchesFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileSystemError(err, path)
	}
	defer f.Close()

	var batches []graph.Batch
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<28)
	for scanner.Scan() {
		var b graph.Batch
		if err := json.Unmarshal(scanner.Bytes(), &b); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "decode "+path)
		}
		batches = append(batches, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.FileSystemError(err, path)
	}
	return batches, nil
}
