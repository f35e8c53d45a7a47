package ingestion

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/codegraph/internal/cache"
	"github.com/rohankatakam/codegraph/internal/config"
	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/extractor"
	"github.com/rohankatakam/codegraph/internal/graph"
	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/output"
	"github.com/rohankatakam/codegraph/internal/parser"
	"github.com/rohankatakam/codegraph/internal/resolution"
	"github.com/rohankatakam/codegraph/internal/storage"
	"github.com/rohankatakam/codegraph/internal/validation"
)

// EntityKinds are the kinds a parser plan must cover
var EntityKinds = []string{models.KindClass, models.KindFunction, models.KindImport, models.KindVariable}

// CacheSignature ties cache entries to the extractor version and the
// backend chosen for each kind
func CacheSignature(plan *parser.Plan) string {
	return "extractor=" + extractor.Version + ";" + plan.Signature()
}

// Orchestrator coordinates a full run: catalog, per-file processing,
// resolution, transform, validation, emission and artifact output.
// The cache stays open between runs.
type Orchestrator struct {
	config *config.Config
	plan   *parser.Plan
	store  storage.Store
	cache  *cache.Manager
	logger *logrus.Logger
}

// NewOrchestrator resolves the parser plan and opens the result cache
func NewOrchestrator(cfg *config.Config, registry *parser.Registry, logger *logrus.Logger) (*Orchestrator, error) {
	plan, err := registry.Resolve(cfg.Parser.Baseline, EntityKinds, cfg.Parser.Select)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "parser selection")
	}

	store, err := storage.Open(cfg.Cache.Backend, cfg.Cache.Path, logger)
	if err != nil {
		return nil, errors.StorageError(err, "open cache store")
	}
	mgr, err := cache.NewManager(store, CacheSignature(plan), cache.Options{
		LRUSize:     cfg.Cache.LRUSize,
		RetryFailed: cfg.Cache.RetryFailed,
	}, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &Orchestrator{
		config: cfg,
		plan:   plan,
		store:  store,
		cache:  mgr,
		logger: logger,
	}, nil
}

// Close releases the cache store
func (o *Orchestrator) Close() error {
	return o.store.Close()
}

// Cache exposes the result cache for maintenance commands
func (o *Orchestrator) Cache() *cache.Manager {
	return o.cache
}

// RunOptions identify one run
type RunOptions struct {
	Root   string
	OutDir string // artifacts are not written when empty
	JobID  string
}

// RunResult contains the results of a run
type RunResult struct {
	Manifest   *output.Manifest
	Envelope   *output.Envelope // nil for an incomplete run
	Tuples     *graph.TupleSet
	Batches    []graph.Batch
	Templates  graph.TemplateCatalog
	Process    *ProcessResult
	Changes    ChangeSet
	Resolution resolution.Stats
	Pruned     int
	Duration   time.Duration
}

// Run executes the pipeline over root. A cancelled run writes a manifest
// with Complete=false, emits nothing, and returns the partial result with
// the context error.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	if opts.JobID == "" {
		return nil, errors.ValidationErrorf("job id is required")
	}
	log := o.logger.WithFields(logrus.Fields{
		"job_id": opts.JobID,
		"root":   opts.Root,
	})
	log.Info("starting run")

	var writer *output.Writer
	var previous map[string]string
	if opts.OutDir != "" {
		var err error
		writer, err = output.NewWriter(opts.OutDir, o.config.Emit.Format)
		if err != nil {
			return nil, err
		}
		prev, err := output.ReadManifest(opts.OutDir)
		if err != nil {
			log.WithError(err).Warn("ignoring unreadable previous manifest")
		} else if prev != nil {
			previous = prev.Fingerprints()
		}
	}

	// Phase 1: catalog
	catalog, err := Catalog(ctx, opts.Root, o.config.Discovery)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"files":   len(catalog.Files),
		"skipped": len(catalog.Skipped),
	}).Info("catalog complete")

	// Phase 2: per-file processing
	processor := NewProcessor(&ProcessorConfig{
		Workers:           o.config.Workers,
		MaxDepth:          o.config.Limits.MaxDepth,
		Timeout:           o.config.Limits.FileTimeout,
		IncludeTimestamps: o.config.Emit.IncludeTimestamps,
	}, o.plan, o.cache, o.logger)
	proc := processor.Process(ctx, catalog.Files)

	result := &RunResult{
		Process:  proc,
		Manifest: manifest(opts.JobID, catalog, proc),
	}
	if previous != nil {
		result.Changes = DetectChanges(catalog.Files, proc.Fingerprints, previous)
		result.Manifest.Changes = &output.ChangeSummary{
			Added:     len(result.Changes.Added),
			Modified:  len(result.Changes.Modified),
			Unchanged: len(result.Changes.Unchanged),
		}
	}

	if !proc.Complete() || ctx.Err() != nil {
		result.Manifest.Complete = false
		if writer != nil {
			if err := writer.WriteManifest(result.Manifest); err != nil {
				return result, err
			}
		}
		result.Duration = time.Since(start)
		log.WithField("cancelled", proc.FilesCancelled).Warn("run cancelled, partial manifest written")
		if err := ctx.Err(); err != nil {
			return result, err
		}
		return result, context.Canceled
	}

	// Phase 3: resolution, after every file is merged
	resolved, err := resolution.NewResolver(resolution.NewIndex(proc.Results), o.config.Resolve.Calls, o.logger).Resolve(ctx)
	if err != nil {
		return result, err
	}
	result.Resolution = resolved.Stats

	// Phase 4: transform and validate
	tuples, err := graph.Transform(proc.Results, resolved, graph.TransformOptions{
		IncludeTimestamps: o.config.Emit.IncludeTimestamps,
	})
	if err != nil {
		return result, err
	}
	if err := validation.CheckUniqueKeys(tuples); err != nil {
		return result, err
	}
	if err := validation.CheckEdges(tuples); err != nil {
		return result, err
	}
	consistency := validation.NewConsistencyValidator(o.logger)
	consistency.LogResults(consistency.Validate(proc.Results, tuples))
	result.Tuples = tuples

	// Phase 5: emit
	emitter := graph.NewEmitter(graph.BatchConfigFromEmit(o.config.Emit), o.logger)
	batches, templates, err := emitter.Emit(opts.JobID, tuples)
	if err != nil {
		return result, err
	}
	result.Batches = batches
	result.Templates = templates
	result.Envelope = &output.Envelope{
		JobID:               opts.JobID,
		GeneratedAt:         time.Now().UTC(),
		SourceRoot:          catalog.Root,
		NodeCount:           len(tuples.Nodes),
		RelationshipCount:   len(tuples.Relationships),
		BatchCount:          len(batches),
		SchemaTemplate:      graph.SchemaTemplateID,
		NodesByLabel:        tuples.CountByLabel(),
		RelationshipsByType: tuples.CountByType(),
	}

	if writer != nil {
		if err := o.write(writer, result); err != nil {
			return result, err
		}
	}

	// Phase 6: drop cache entries no current file uses
	if o.config.Cache.Prune {
		keep := make(map[string]bool, len(proc.Fingerprints))
		for _, fp := range proc.Fingerprints {
			keep[fp] = true
		}
		n, err := o.cache.Prune(ctx, keep)
		if err != nil {
			log.WithError(err).Warn("cache prune failed")
		}
		result.Pruned = n
	}

	result.Duration = time.Since(start)
	log.WithFields(logrus.Fields{
		"nodes":         result.Envelope.NodeCount,
		"relationships": result.Envelope.RelationshipCount,
		"batches":       result.Envelope.BatchCount,
		"duration":      result.Duration.String(),
	}).Info("run complete")
	return result, nil
}

// write stores batches and templates before the manifest, so a complete
// manifest always describes batches that exist
func (o *Orchestrator) write(w *output.Writer, r *RunResult) error {
	if err := w.WriteBatches(r.Batches); err != nil {
		return err
	}
	if err := w.WriteTemplates(r.Templates); err != nil {
		return err
	}
	if err := w.WriteEnvelope(r.Envelope); err != nil {
		return err
	}
	return w.WriteManifest(r.Manifest)
}

func manifest(jobID string, catalog *CatalogResult, proc *ProcessResult) *output.Manifest {
	m := &output.Manifest{
		JobID:          jobID,
		Complete:       true,
		SourceRoot:     catalog.Root,
		FilesOK:        proc.FilesOK,
		FilesCached:    proc.FilesCached,
		FilesFailed:    proc.FilesFailed,
		FilesSkipped:   proc.FilesSkipped + len(catalog.Skipped),
		FilesCancelled: proc.FilesCancelled,
	}
	m.Files = append(m.Files, proc.Outcomes...)
	for _, s := range catalog.Skipped {
		m.Files = append(m.Files, models.FileOutcome{Path: s.Path, Status: models.StatusSkipped, Error: s.Reason})
	}
	sort.SliceStable(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	m.FilesTotal = len(m.Files)
	return m
}

// DefaultOutDir is where artifacts go when no directory is given
func DefaultOutDir(root string) string {
	return filepath.Join(root, ".cgraph", "out")
}
