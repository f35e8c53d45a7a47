package ingestion

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/codegraph/internal/cache"
	"github.com/rohankatakam/codegraph/internal/errors"
	"github.com/rohankatakam/codegraph/internal/extractor"
	"github.com/rohankatakam/codegraph/internal/models"
	"github.com/rohankatakam/codegraph/internal/parser"
)

// ProcessorConfig holds configuration for per-file processing
type ProcessorConfig struct {
	Workers           int           // Number of files processed concurrently (default: 8)
	MaxDepth          int           // Nesting bound for extraction
	Timeout           time.Duration // Per-file wall-clock budget (default: 30s)
	IncludeTimestamps bool          // Record file mtime on modules
}

// DefaultProcessorConfig returns default configuration
func DefaultProcessorConfig() *ProcessorConfig {
	return &ProcessorConfig{
		Workers:  8,
		MaxDepth: 500,
		Timeout:  30 * time.Second,
	}
}

// Processor runs cache check, parse and extraction for each cataloged file.
// Files are independent; work within one file is strictly sequential.
type Processor struct {
	config *ProcessorConfig
	plan   *parser.Plan
	cache  *cache.Manager
	logger *logrus.Logger

	parses atomic.Int64
}

// NewProcessor creates a processor. cacheMgr may be nil to disable caching.
func NewProcessor(config *ProcessorConfig, plan *parser.Plan, cacheMgr *cache.Manager, logger *logrus.Logger) *Processor {
	if config == nil {
		config = DefaultProcessorConfig()
	}
	return &Processor{
		config: config,
		plan:   plan,
		cache:  cacheMgr,
		logger: logger,
	}
}

// ProcessResult holds results from processing a catalog
type ProcessResult struct {
	// Outcomes and Results follow the order of the input files.
	// Results has an entry for every ok, cached and failed file.
	Outcomes     []models.FileOutcome
	Results      []*models.FileResult
	Fingerprints map[string]string

	FilesOK        int
	FilesCached    int
	FilesFailed    int
	FilesSkipped   int
	FilesCancelled int

	Entities          int
	ParserInvocations int64
	Duration          time.Duration
}

// Complete reports whether every file was attempted
func (r *ProcessResult) Complete() bool {
	return r.FilesCancelled == 0
}

type fileOutput struct {
	outcome models.FileOutcome
	result  *models.FileResult
}

// ParserInvocations returns how many backend parses this processor has run
func (p *Processor) ParserInvocations() int64 {
	return p.parses.Load()
}

// Process handles files on a bounded pool. Cancellation is observed between
// files: anything not yet started is reported cancelled.
func (p *Processor) Process(ctx context.Context, files []FileEntry) *ProcessResult {
	start := time.Now()
	before := p.parses.Load()

	workers := p.config.Workers
	if workers <= 0 {
		workers = 1
	}

	p.logger.WithFields(logrus.Fields{
		"files":   len(files),
		"workers": workers,
	}).Info("processing files")

	slots := make([]fileOutput, len(files))
	var g errgroup.Group
	g.SetLimit(workers)

	for i := range files {
		if ctx.Err() != nil {
			slots[i] = cancelled(files[i])
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				slots[i] = cancelled(files[i])
				return nil
			}
			slots[i] = p.processFile(ctx, files[i])
			return nil
		})
	}
	_ = g.Wait()

	result := &ProcessResult{
		Outcomes:     make([]models.FileOutcome, 0, len(files)),
		Fingerprints: make(map[string]string, len(files)),
	}
	for _, s := range slots {
		result.Outcomes = append(result.Outcomes, s.outcome)
		if s.outcome.Fingerprint != "" {
			result.Fingerprints[s.outcome.Path] = s.outcome.Fingerprint
		}
		if s.result != nil {
			result.Results = append(result.Results, s.result)
			result.Entities += s.result.EntityCount()
		}
		switch s.outcome.Status {
		case models.StatusOK:
			result.FilesOK++
		case models.StatusCached:
			result.FilesCached++
		case models.StatusFailed:
			result.FilesFailed++
		case models.StatusSkipped:
			result.FilesSkipped++
		case models.StatusCancelled:
			result.FilesCancelled++
		}
	}
	result.ParserInvocations = p.parses.Load() - before
	result.Duration = time.Since(start)

	p.logger.WithFields(logrus.Fields{
		"ok":        result.FilesOK,
		"cached":    result.FilesCached,
		"failed":    result.FilesFailed,
		"skipped":   result.FilesSkipped,
		"cancelled": result.FilesCancelled,
		"entities":  result.Entities,
		"parses":    result.ParserInvocations,
		"duration":  result.Duration.String(),
	}).Info("processing complete")

	return result
}

func cancelled(f FileEntry) fileOutput {
	return fileOutput{outcome: models.FileOutcome{Path: f.Path, Status: models.StatusCancelled}}
}

// processFile never returns an error: every problem becomes the file's outcome
func (p *Processor) processFile(ctx context.Context, f FileEntry) fileOutput {
	log := p.logger.WithField("path", f.Path)

	src, err := os.ReadFile(f.Path)
	if err != nil {
		log.WithError(errors.FileSystemError(err, f.Path)).Warn("skipping unreadable file")
		return fileOutput{outcome: models.FileOutcome{
			Path:   f.Path,
			Status: models.StatusSkipped,
			Error:  fmt.Sprintf("unreadable: %v", err),
		}}
	}

	fp := Fingerprint(src)
	info := extractor.ModuleInfo{
		Path:        f.Path,
		Name:        f.Module,
		IsPackage:   f.IsPackage,
		Fingerprint: fp,
	}
	if p.config.IncludeTimestamps && !f.ModTime.IsZero() {
		info.ModTime = f.ModTime.Unix()
	}
	outcome := models.FileOutcome{Path: f.Path, Fingerprint: fp}

	if p.cache != nil {
		if entry, ok := p.cache.Get(ctx, fp); ok {
			res := entry.Result
			res.Rebase(f.Path, f.Module, f.IsPackage)
			res.Module.Fingerprint = fp
			res.Module.ModTime = info.ModTime
			outcome.Status = models.StatusCached
			if entry.Status == models.StatusFailed {
				outcome.Status = models.StatusFailed
				outcome.Error = entry.Error
			}
			log.WithField("status", outcome.Status).Debug("cache hit")
			return fileOutput{outcome: outcome, result: res}
		}
	}

	res, err := p.extract(ctx, f.Path, src, info)
	if err != nil {
		if ctx.Err() != nil {
			outcome.Status = models.StatusCancelled
			return fileOutput{outcome: outcome}
		}
		msg := describe(err)
		res = extractor.Failed(info, src, stderrors.New(msg))
		outcome.Status = models.StatusFailed
		outcome.Error = msg
		log.WithFields(logrus.Fields{
			"error":      msg,
			"error_type": errors.GetType(err).String(),
			"severity":   errors.GetSeverity(err).String(),
		}).Warn("file failed")

		if p.cache != nil && cacheable(err) {
			if perr := p.cache.Put(ctx, fp, res, stderrors.New(msg)); perr != nil {
				log.WithError(perr).Warn("cache write failed")
			}
		}
		return fileOutput{outcome: outcome, result: res}
	}

	if p.cache != nil {
		if perr := p.cache.Put(ctx, fp, res, nil); perr != nil {
			log.WithError(perr).Warn("cache write failed")
		}
	}
	outcome.Status = models.StatusOK
	return fileOutput{outcome: outcome, result: res}
}

// extract parses once per backend group in the plan and merges the parts.
// A panicking backend fails only this file.
func (p *Processor) extract(ctx context.Context, path string, src []byte, info extractor.ModuleInfo) (res *models.FileResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = nil, errors.InternalErrorf("backend panic: %v", rec).WithContext("path", path)
		}
	}()

	// run cancellation is observed between files; inside a file only the
	// per-file budget can stop work
	fileCtx := context.WithoutCancel(ctx)
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		fileCtx, cancel = context.WithTimeout(fileCtx, p.config.Timeout)
		defer cancel()
	}
	limits := extractor.Limits{MaxDepth: p.config.MaxDepth, Timeout: p.config.Timeout}

	parts := make([]*models.FileResult, 0, len(p.plan.Groups))
	for _, group := range p.plan.Groups {
		p.parses.Add(1)
		tree, err := group.Backend.Parse(fileCtx, path, src)
		if err != nil {
			if stderrors.Is(fileCtx.Err(), context.DeadlineExceeded) {
				return nil, extractor.ErrDeadline
			}
			return nil, errors.ParseError(err, path)
		}
		part, err := extractor.Extract(fileCtx, tree, info, extractor.NewKindSet(group.Kinds...), limits)
		if err != nil {
			return nil, deadline(fileCtx, err)
		}
		parts = append(parts, part)
	}
	return extractor.Merge(parts...), nil
}

// deadline maps an expired per-file context onto ErrDeadline so it is not
// mistaken for run cancellation
func deadline(fileCtx context.Context, err error) error {
	if stderrors.Is(fileCtx.Err(), context.DeadlineExceeded) {
		return extractor.ErrDeadline
	}
	return err
}

// cacheable reports whether a failure depends on file content alone.
// Timeouts and backend panics are retried on the next run.
func cacheable(err error) bool {
	var cerr *errors.Error
	if stderrors.As(err, &cerr) && cerr.Type == errors.ErrorTypeInternal {
		return false
	}
	return !stderrors.Is(err, extractor.ErrDeadline) &&
		!stderrors.Is(err, context.Canceled) &&
		!stderrors.Is(err, context.DeadlineExceeded)
}

// describe renders a failure without the file path, so cached failures
// read the same wherever the content lives
func describe(err error) string {
	var perr *parser.ParseError
	if stderrors.As(err, &perr) {
		if perr.Line > 0 {
			return fmt.Sprintf("%s: syntax error at line %d, column %d: %s", perr.Backend, perr.Line, perr.Column, perr.Message)
		}
		return fmt.Sprintf("%s: %s", perr.Backend, perr.Message)
	}
	var cerr *errors.Error
	if stderrors.As(err, &cerr) && cerr.Type == errors.ErrorTypeParse && cerr.Cause != nil {
		return cerr.Cause.Error()
	}
	return err.Error()
}
