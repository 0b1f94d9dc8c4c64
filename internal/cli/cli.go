package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pfrederiksen/course-catalog/internal/config"
	"github.com/pfrederiksen/course-catalog/internal/course"
	"github.com/pfrederiksen/course-catalog/internal/filter"
	"github.com/pfrederiksen/course-catalog/internal/logger"
	"github.com/pfrederiksen/course-catalog/internal/metrics"
	"github.com/pfrederiksen/course-catalog/internal/offering"
	"github.com/pfrederiksen/course-catalog/internal/pipeline"
	"github.com/pfrederiksen/course-catalog/internal/scraper"
	"github.com/pfrederiksen/course-catalog/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
	ExitSkipped = 2
)

// StatusError carries a process exit code. Err may be nil when the run
// succeeded but the code still signals something, e.g. skipped courses.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by the root command to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *StatusError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitError
}

type options struct {
	configPath  string
	programs    string
	output      string
	dataDir     string
	departments []string
	concurrency int
	skipInvalid bool
	interval    time.Duration
	noRobots    bool
	baseURL     string
	metricsFile string
	format      string
	sortOrder   string
	logLevel    string
	verbose     bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "catalog-extract",
		Short: "Extract allow-listed courses from the ExploreCourses catalog",
		Long: `A CLI tool that queries the ExploreCourses catalog department by department,
keeps the courses named by a program allow-list, and writes them as one JSON
array of normalized course records.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, opts)
		},
	}

	// Shared with subcommands
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.baseURL, "base-url", scraper.DefaultBaseURL, "Catalog base URL")
	pf.DurationVar(&opts.interval, "interval", scraper.DefaultInterval, "Minimum delay between catalog requests")
	pf.BoolVar(&opts.noRobots, "no-robots", false, "Do not consult robots.txt")
	pf.StringVar(&opts.format, "format", "text", "Output format: text or json")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.BoolVar(&opts.verbose, "verbose", false, "Enable verbose logging and output")

	f := cmd.Flags()
	f.StringVar(&opts.programs, "programs", "allprograms.json", "Program allow-list JSON file")
	f.StringVar(&opts.output, "output", "allcourses.json", "Output file, relative to --data-dir")
	f.StringVar(&opts.dataDir, "data-dir", ".", "Directory for the output file")
	f.StringSliceVar(&opts.departments, "departments", nil, "Comma-separated department codes (default: built-in list)")
	f.IntVar(&opts.concurrency, "concurrency", 1, "Departments fetched in parallel")
	f.BoolVar(&opts.skipInvalid, "skip-invalid", false, "Skip courses that cannot be processed instead of failing")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	f.StringVar(&opts.sortOrder, "sort", string(SortFeed), "Record order: feed, id, or name")

	cmd.AddCommand(newDepartmentsCmd(opts))

	return cmd
}

// resolveConfig layers flags that were set explicitly over file and
// environment settings.
func resolveConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg, err := config.NewLoader(opts.configPath).Load()
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("programs") {
		cfg.Programs = opts.programs
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = opts.dataDir
	}
	if flags.Changed("departments") {
		cfg.Departments = config.NormalizeDepartments(opts.departments)
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = opts.concurrency
	}
	if flags.Changed("skip-invalid") {
		cfg.SkipInvalid = opts.skipInvalid
	}
	if flags.Changed("interval") {
		cfg.Interval = opts.interval
	}
	if flags.Changed("no-robots") {
		cfg.Robots = !opts.noRobots
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = opts.baseURL
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	} else if opts.verbose {
		cfg.LogLevel = string(logger.LevelDebug)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parseFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(s))
	if format != FormatText && format != FormatJSON {
		return "", fmt.Errorf("invalid format: %s (must be 'text' or 'json')", s)
	}
	return format, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config, runID string) (*logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.New(level, cmd.ErrOrStderr()).With(logger.Fields{"run_id": runID}), nil
}

func newScraper(cfg config.Config) *scraper.Scraper {
	return scraper.New(
		scraper.WithBaseURL(cfg.BaseURL),
		scraper.WithInterval(cfg.Interval),
		scraper.WithRobots(cfg.Robots),
	)
}

// runExtract is the main command logic
func runExtract(cmd *cobra.Command, opts *options) error {
	format, err := parseFormat(opts.format)
	if err != nil {
		return err
	}
	order, err := parseSortOrder(opts.sortOrder)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log, err := newLogger(cmd, cfg, runID)
	if err != nil {
		return err
	}

	allow, err := filter.LoadProgramsFile(cfg.Programs)
	if err != nil {
		return err
	}
	log.Debug("Loaded allow-list", logger.Fields{"programs": cfg.Programs, "courses": allow.Len()})

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	previous, err := store.ReadCourses(cfg.Output)
	if err != nil {
		log.Warn("Ignoring unreadable previous output", logger.Fields{"output": store.Path(cfg.Output), "error": err.Error()})
		previous = nil
	}

	expander := offering.NewExpander()
	expander.Logger = log
	m := metrics.New()

	driver := &pipeline.Driver{
		Departments: cfg.Departments,
		AllowList:   allow,
		Normalizer:  &course.Normalizer{Expander: expander},
		Fetcher:     newScraper(cfg),
		Concurrency: cfg.Concurrency,
		SkipInvalid: cfg.SkipInvalid,
		Logger:      log,
		Metrics:     m,
	}

	checkedAt := time.Now().UTC()
	records, summary, err := driver.Collect(cmd.Context())
	if err != nil {
		return err
	}

	sortRecords(records, order)

	if err := store.WriteCourses(cfg.Output, records); err != nil {
		return err
	}
	log.Info("Wrote courses", logger.Fields{"output": store.Path(cfg.Output), "courses": len(records)})

	if cfg.MetricsFile != "" {
		if err := m.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}

	diff := storage.Diff(previous, records)
	result := &OutputResult{
		RunID:       runID,
		CheckedAt:   checkedAt,
		Duration:    time.Since(checkedAt).Round(time.Millisecond).String(),
		Departments: cfg.Departments,
		Output:      store.Path(cfg.Output),
		CourseCount: len(records),
		Summary:     summary,
		Added:       diff.Added,
		Removed:     diff.Removed,
	}
	if err := WriteOutput(cmd.OutOrStdout(), result, format, opts.verbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if summary.Skipped > 0 {
		return &StatusError{Code: ExitSkipped}
	}
	return nil
}

func newDepartmentsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "departments",
		Short: "List the department codes the catalog links to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(opts.format)
			if err != nil {
				return err
			}
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			log, err := newLogger(cmd, cfg, uuid.NewString())
			if err != nil {
				return err
			}

			log.Debug("Listing departments", logger.Fields{"base_url": cfg.BaseURL})
			departments, err := newScraper(cfg).ListDepartments(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing departments: %w", err)
			}

			return WriteDepartments(cmd.OutOrStdout(), departments, format)
		},
	}
}

// Execute runs the CLI
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := NewRootCmd().ExecuteContext(ctx)
	stop()

	var exitErr *StatusError
	if err != nil && !(errors.As(err, &exitErr) && exitErr.Err == nil) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(ExitCode(err))
}
