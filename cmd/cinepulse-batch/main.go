package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"cinepulse/internal/app"
	"cinepulse/internal/batch"
	"cinepulse/internal/config"
	"cinepulse/internal/exporter"
	"cinepulse/internal/infrastructure"
	"cinepulse/internal/pipeline"
	"cinepulse/internal/services"
	"cinepulse/internal/validation"
	"cinepulse/pkg/contracts"
)

type options struct {
	inDir       string
	outDir      string
	concurrency int
	artifacts   bool
	k           int
	horizon     int
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("cinepulse-batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.inDir, "in", "input", "input directory with catalog/, region/ and item/ subdirectories")
	fs.StringVar(&opts.outDir, "out", "output", "output directory for CSV and XLSX files")
	fs.IntVar(&opts.concurrency, "concurrency", batch.DefaultConcurrency, "maximum jobs run at once")
	fs.BoolVar(&opts.artifacts, "artifacts", true, "render every artifact type of each domain")
	fs.IntVar(&opts.k, "k", 0, "cluster count (0 uses the configured default)")
	fs.IntVar(&opts.horizon, "horizon", 0, "forecast horizon (0 uses the configured default)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.k < 0 || opts.horizon < 0 {
		return opts, fmt.Errorf("k and horizon must not be negative")
	}
	return opts, nil
}

func (o options) runnerOptions() batch.Options {
	ro := batch.Options{Concurrency: o.concurrency, Artifacts: o.artifacts}
	if o.k > 0 {
		ro.Analyze.K = &o.k
	}
	if o.horizon > 0 {
		ro.Forecast.Horizon = &o.horizon
	}
	return ro
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}
	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Starting batch run",
		slog.String("version", contracts.GetVersionString()),
		slog.String("input_dir", opts.inDir),
		slog.String("output_dir", opts.outDir),
		slog.Int("concurrency", opts.concurrency))

	validator := validation.NewFileValidator(logger)
	domains := make([]string, len(pipeline.Domains))
	for i, d := range pipeline.Domains {
		domains[i] = string(d)
	}
	if err := validator.ValidateInputDirectory(opts.inDir, domains...); err != nil {
		logger.ErrorContext(ctx, "Invalid input directory", slog.String("error", err.Error()))
		return 1
	}
	if err := validator.ValidateOutputDirectory(opts.outDir); err != nil {
		logger.ErrorContext(ctx, "Invalid output directory", slog.String("error", err.Error()))
		return 1
	}

	jobs, err := batch.Discover(opts.inDir)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to discover inputs", slog.String("error", err.Error()))
		return 1
	}
	if len(jobs) == 0 {
		logger.WarnContext(ctx, "No input files found", slog.String("input_dir", opts.inDir))
		return 0
	}

	controller := app.NewController(cfg.Pipeline, logger)
	defer controller.Store().Close()
	service := services.NewPipelineService(controller, nil, logger)
	runner := batch.NewRunner(service, exporter.NewWriter(opts.outDir, logger), opts.runnerOptions(), logger)

	report := runner.Run(ctx, jobs)
	for _, o := range report.Outcomes {
		status := "ok"
		if o.Err != nil {
			status = "FAILED: " + o.Err.Error()
		}
		fmt.Printf("%-8s %-24s %s\n", o.Job.Domain, o.Job.Key, status)
	}
	if report.Failed() > 0 {
		return 1
	}
	return 0
}
