// Package batch runs every domain's pipeline over a directory of input files
// and writes the cleaned tables, results and rendered artifacts to disk.
//
// The input directory holds one subdirectory per domain. Each file's stem is
// its key, except in catalog/, which must hold a single file loaded under the
// default key:
//
//	in/catalog/top250.csv
//	in/region/us.csv
//	in/item/tt0111161.txt
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"cinepulse/internal/exporter"
	"cinepulse/internal/infrastructure"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/render"
	"cinepulse/internal/services"
	"cinepulse/internal/validation"
)

// DefaultConcurrency bounds the jobs run at once
const DefaultConcurrency = 4

// Job is one input file bound to a (domain, key)
type Job struct {
	Domain pipeline.Domain
	Key    string
	Path   string
}

// Outcome is the result of running one job
type Outcome struct {
	Job      Job
	Version  uint64
	Outputs  []string
	Duration time.Duration
	Err      error
}

// Report collects the outcomes of a run in job order
type Report struct {
	Outcomes []Outcome
}

// Failed returns the number of failed jobs
func (r Report) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Discover lists the jobs under root. Missing domain directories are skipped.
func Discover(root string) ([]Job, error) {
	var jobs []Job
	for _, d := range pipeline.Domains {
		dir := filepath.Join(root, string(d))
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", dir, err)
		}

		var found []Job
		for _, e := range entries {
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			key := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
			found = append(found, Job{Domain: d, Key: key, Path: filepath.Join(dir, e.Name())})
		}
		if d == pipeline.DomainCatalog && len(found) > 1 {
			return nil, fmt.Errorf("catalog holds a single key but %s contains %d files", dir, len(found))
		}
		for i := range found {
			if d == pipeline.DomainCatalog {
				found[i].Key = pipeline.DefaultCatalogKey
			}
			key, err := pipeline.NormalizeKey(d, found[i].Key)
			if err != nil {
				return nil, fmt.Errorf("invalid key for %s: %w", found[i].Path, err)
			}
			found[i].Key = key
		}
		sort.Slice(found, func(i, j int) bool { return found[i].Key < found[j].Key })
		jobs = append(jobs, found...)
	}
	return jobs, nil
}

// Options tune a Runner
type Options struct {
	Concurrency int
	Artifacts   bool
	Analyze     services.AnalyzeRequest
	Forecast    services.ForecastRequest
}

// Runner drives jobs through the pipeline service
type Runner struct {
	service *services.PipelineService
	writer  *exporter.Writer
	files   *validation.FileValidator
	opts    Options
	logger  *slog.Logger
}

// NewRunner creates a runner writing through writer
func NewRunner(service *services.PipelineService, writer *exporter.Writer, opts Options, logger *slog.Logger) *Runner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Runner{
		service: service,
		writer:  writer,
		files:   validation.NewFileValidator(logger),
		opts:    opts,
		logger:  infrastructure.WithComponent(logger, "batch"),
	}
}

// Run executes jobs concurrently. A failing job never stops the others;
// cancelling ctx fails the jobs that have not finished.
func (r *Runner) Run(ctx context.Context, jobs []Job) Report {
	report := Report{Outcomes: make([]Outcome, len(jobs))}

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	var mu sync.Mutex
	for i, job := range jobs {
		g.Go(func() error {
			out := r.runJob(ctx, job)
			mu.Lock()
			report.Outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	r.logger.InfoContext(ctx, "batch finished",
		slog.Int("jobs", len(jobs)),
		slog.Int("failed", report.Failed()))
	return report
}

func (r *Runner) runJob(ctx context.Context, job Job) Outcome {
	ctx = infrastructure.EnsureTraceID(ctx)
	start := time.Now()
	out := Outcome{Job: job}
	if err := ctx.Err(); err != nil {
		out.Err = err
		return out
	}

	rec, outputs, err := r.process(ctx, job)
	out.Version = rec.Version
	out.Outputs = outputs
	out.Duration = time.Since(start)
	out.Err = err

	if err != nil {
		r.logger.ErrorContext(ctx, "batch job failed",
			slog.String("domain", string(job.Domain)),
			slog.String("key", job.Key),
			slog.String("path", job.Path),
			slog.String("kind", string(pipeline.KindOf(err))),
			slog.String("error", err.Error()))
		return out
	}
	r.logger.InfoContext(ctx, "batch job completed",
		slog.String("domain", string(job.Domain)),
		slog.String("key", job.Key),
		slog.Int("outputs", len(outputs)),
		slog.Duration("duration", out.Duration))
	return out
}

func (r *Runner) process(ctx context.Context, job Job) (pipeline.Record, []string, error) {
	if err := r.files.ValidateFile(job.Path); err != nil {
		return pipeline.Record{}, nil, err
	}
	f, err := os.Open(job.Path)
	if err != nil {
		return pipeline.Record{}, nil, fmt.Errorf("failed to open input: %w", err)
	}
	rec, err := r.service.Upload(ctx, job.Domain, job.Key, filepath.Base(job.Path), f)
	f.Close()
	if err != nil {
		return pipeline.Record{}, nil, err
	}

	if rec, err = r.service.Clean(ctx, job.Domain, job.Key); err != nil {
		return rec, nil, err
	}
	switch job.Domain {
	case pipeline.DomainCatalog:
		rec, err = r.service.Analyze(ctx, job.Key, r.opts.Analyze)
	case pipeline.DomainRegion:
		rec, err = r.service.Forecast(ctx, job.Key, r.opts.Forecast)
	case pipeline.DomainItem:
		rec, err = r.service.Tokenize(ctx, job.Key)
	}
	if err != nil {
		return rec, nil, err
	}

	var outputs []string
	for _, stage := range []pipeline.Stage{pipeline.StageCleaned, pipeline.StageResult} {
		frame, err := r.service.Export(job.Domain, job.Key, stage)
		if err != nil {
			return rec, outputs, err
		}
		path, err := r.writer.WriteFrame(outputName(job, string(stage), ".csv"), frame)
		if err != nil {
			return rec, outputs, err
		}
		outputs = append(outputs, path)
	}

	if !r.opts.Artifacts {
		return rec, outputs, nil
	}
	for _, typ := range r.service.ArtifactTypes(job.Domain) {
		art, err := r.service.Render(ctx, job.Domain, job.Key, typ)
		if err != nil {
			return rec, outputs, err
		}
		path, err := r.writer.WriteArtifact(outputName(job, typ, extension(art.ContentType)), art.Data)
		if err != nil {
			return rec, outputs, err
		}
		outputs = append(outputs, path)
	}
	return rec, outputs, nil
}

func outputName(job Job, suffix, ext string) string {
	key := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, job.Key)
	return filepath.Join(string(job.Domain), key+"_"+suffix+ext)
}

func extension(contentType string) string {
	if contentType == render.ContentTypeCSV {
		return ".csv"
	}
	return ".xlsx"
}
