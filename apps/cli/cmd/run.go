package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/testforge/packages/core/config"
	"github.com/abdul-hamid-achik/testforge/packages/core/env"
	"github.com/abdul-hamid-achik/testforge/packages/core/execution"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/abdul-hamid-achik/testforge/packages/core/runner"
	"github.com/abdul-hamid-achik/testforge/packages/export/metrics"
	"github.com/abdul-hamid-achik/testforge/packages/logging"
	"github.com/abdul-hamid-achik/testforge/packages/output"
	"github.com/abdul-hamid-achik/testforge/packages/store"
	"github.com/abdul-hamid-achik/testforge/packages/suitefile"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run <suite-file>",
	Short: "Run a suite file and record the execution",
	Long: `Run the steps of a YAML or JSON suite file against its baseUrl.

Examples:
  testforge run login.suite.yaml
  testforge run login.suite.yaml --env-file .env --var username=ada
  testforge run login.suite.yaml --db sqlite://testforge.db -o junit --output-file report.xml
  testforge run login.suite.yaml --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFileFlag    string
	varFlags       []string
	headerFlags    []string
	configFlag     string
	dbFlag         string
	timeoutFlag    string
	rateFlag       float64
	workersFlag    int
	proxyFlag      string
	insecureFlag   bool
	noRedactFlag   bool
	logLevelFlag   string
	outputFlag     string
	outputFileFlag string
	verboseFlag    bool
	noColorFlag    bool
	progressFlag   bool
	watchFlag      bool
	notifyOnFlag   string
	slackFlag      string
	webhookFlag    string
	metricsFlag    string
)

func init() {
	// Variable flags
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("TESTFORGE_ENV_FILE", ""), "Path to .env file merged into the suite variables (env: TESTFORGE_ENV_FILE)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a variable as key=value (repeatable, wins over the env file)")
	runCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Default request header as 'Name: value' (repeatable)")

	// Storage and config flags
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("TESTFORGE_CONFIG", ""), "Path to config file (env: TESTFORGE_CONFIG)")
	runCmd.Flags().StringVar(&dbFlag, "db", getEnvString("TESTFORGE_DB", ""), "Database for executions, e.g. sqlite://testforge.db (default: in-memory) (env: TESTFORGE_DB)")
	runCmd.Flags().StringVar(&logLevelFlag, "log-level", getEnvString("TESTFORGE_LOG_LEVEL", ""), "Log level: debug, info, warn, error (env: TESTFORGE_LOG_LEVEL)")

	// Execution flags
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("TESTFORGE_TIMEOUT", ""), "Request timeout (e.g., 30s, 1m) (env: TESTFORGE_TIMEOUT)")
	runCmd.Flags().Float64Var(&rateFlag, "rate", getEnvFloat("TESTFORGE_RATE", 0), "Maximum requests per second, 0 for unlimited (env: TESTFORGE_RATE)")
	runCmd.Flags().IntVar(&workersFlag, "workers", getEnvInt("TESTFORGE_WORKERS", 0), "Concurrent executions (env: TESTFORGE_WORKERS)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the suite and env files and re-run on change")

	// Network flags
	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("TESTFORGE_PROXY", ""), "Proxy URL for HTTP requests (env: TESTFORGE_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("TESTFORGE_INSECURE", false), "Disable SSL certificate validation (env: TESTFORGE_INSECURE)")
	runCmd.Flags().BoolVar(&noRedactFlag, "no-redact", getEnvBool("TESTFORGE_NO_REDACT", false), "Record credential headers verbatim (env: TESTFORGE_NO_REDACT)")

	// Output flags
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("TESTFORGE_OUTPUT", "console"), "Output format: console, json, junit (env: TESTFORGE_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("TESTFORGE_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: TESTFORGE_OUTPUT_FILE)")
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("TESTFORGE_VERBOSE", false), "Show requests, passed assertions and extracted variables (env: TESTFORGE_VERBOSE)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("TESTFORGE_NO_COLOR", false), "Disable colored output (env: TESTFORGE_NO_COLOR)")
	// Notification flags
	runCmd.Flags().StringVar(&notifyOnFlag, "notify-on", getEnvString("TESTFORGE_NOTIFY_ON", ""), "When to notify: always, failure, success, recovery (env: TESTFORGE_NOTIFY_ON)")
	runCmd.Flags().StringVar(&slackFlag, "notify-slack", getEnvString("TESTFORGE_SLACK_WEBHOOK", ""), "Slack incoming webhook URL (env: TESTFORGE_SLACK_WEBHOOK)")
	runCmd.Flags().StringVar(&webhookFlag, "notify-webhook", getEnvString("TESTFORGE_NOTIFY_WEBHOOK", ""), "URL receiving a JSON summary per execution (env: TESTFORGE_NOTIFY_WEBHOOK)")

	runCmd.Flags().StringVar(&metricsFlag, "metrics-file", getEnvString("TESTFORGE_METRICS_FILE", ""), "Write step metrics after each run (.json, otherwise Prometheus text) (env: TESTFORGE_METRICS_FILE)")
	runCmd.Flags().BoolVar(&progressFlag, "progress", getEnvBool("TESTFORGE_PROGRESS", false), "Print step progress to stderr while running (env: TESTFORGE_PROGRESS)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// runOptions is everything a run needs, detached from the flag globals.
type runOptions struct {
	SuiteFile  string
	EnvFile    string
	Vars       []string
	Headers    []string
	ConfigPath string
	Database   string
	Timeout    string
	Rate       float64
	Workers    int
	Proxy      string
	Insecure   bool
	NoRedact   bool
	LogLevel   string
	Output     string
	OutputFile string
	Verbose    bool
	NoColor    bool
	Progress   bool
	Watch      bool
	NotifyOn   string
	Slack      string
	Webhook    string
	Metrics    string
}

func runCommand(cmd *cobra.Command, args []string) error {
	opts := runOptions{
		SuiteFile:  args[0],
		EnvFile:    envFileFlag,
		Vars:       varFlags,
		Headers:    headerFlags,
		ConfigPath: configFlag,
		Database:   dbFlag,
		Timeout:    timeoutFlag,
		Rate:       rateFlag,
		Workers:    workersFlag,
		Proxy:      proxyFlag,
		Insecure:   insecureFlag,
		NoRedact:   noRedactFlag,
		LogLevel:   logLevelFlag,
		Output:     outputFlag,
		OutputFile: outputFileFlag,
		Verbose:    verboseFlag,
		NoColor:    noColorFlag,
		Progress:   progressFlag,
		Watch:      watchFlag,
		NotifyOn:   notifyOnFlag,
		Slack:      slackFlag,
		Webhook:    webhookFlag,
		Metrics:    metricsFlag,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return executeRun(ctx, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// buildConfig loads the config file and applies the flag overrides.
func buildConfig(opts runOptions) (*config.Config, error) {
	fileConfig, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	override := &config.Config{
		Proxy:     opts.Proxy,
		Workers:   opts.Workers,
		RateLimit: opts.Rate,
		LogLevel:  opts.LogLevel,
		Database:  opts.Database,

		NotifyOn:      opts.NotifyOn,
		SlackWebhook:  opts.Slack,
		NotifyWebhook: opts.Webhook,
		MetricsFile:   opts.Metrics,
	}
	if opts.Timeout != "" {
		timeout, err := time.ParseDuration(opts.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout value %q: %w (use format like 30s, 1m, 500ms)", opts.Timeout, err)
		}
		override.Timeout = int(timeout.Milliseconds())
	}
	if opts.Insecure {
		override.ValidateSSL = config.BoolPtr(false)
	}
	if opts.NoRedact {
		override.RedactCredentials = config.BoolPtr(false)
	}
	if len(opts.Headers) > 0 {
		override.Headers = make(map[string]string, len(opts.Headers))
		for _, h := range opts.Headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return nil, fmt.Errorf("invalid header %q (want 'Name: value')", h)
			}
			override.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	cfg := fileConfig.Merge(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseVars turns repeated key=value flags into variables.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid variable %q (want key=value)", pair)
		}
		vars[key] = value
	}
	return vars, nil
}

// collectVariables merges the suite variables, the env file and --var flags,
// later sources winning.
func collectVariables(fileVars map[string]any, envFile string, pairs []string) (map[string]any, error) {
	var dotenv map[string]any
	if envFile != "" {
		var err error
		dotenv, err = env.LoadDotEnv(envFile)
		if err != nil {
			return nil, err
		}
	}
	flagVars, err := parseVars(pairs)
	if err != nil {
		return nil, err
	}
	return env.MergeVariables(fileVars, dotenv, flagVars), nil
}

// engine is the store plus the dispatcher running executions against it.
type engine struct {
	store      *store.Store
	dispatcher *execution.Dispatcher
	metrics    *metrics.Collector
	logger     *zap.Logger
}

func newEngine(cfg *config.Config, st *store.Store, logger *zap.Logger, observer execution.Observer) *engine {
	policy := cfg.RedactPolicy()
	stepRunner := runner.NewRunner(&runner.Config{
		ClientOptions: cfg.ClientOptions(),
		Redact:        &policy,
		Logger:        logger,
	})

	orchOpts := []execution.OrchestratorOption{
		execution.WithStepRunner(stepRunner),
		execution.WithCredentialResolver(st),
		execution.WithTokenSource(oauth2.NewProvider()),
		execution.WithLogger(logger),
	}
	if observer != nil {
		orchOpts = append(orchOpts, execution.WithObserver(observer))
	}

	return &engine{
		store:  st,
		logger: logger,
		dispatcher: execution.NewDispatcher(execution.DispatcherConfig{
			Workers:      cfg.Workers,
			QueueSize:    cfg.QueueSize,
			Suites:       st,
			Environments: st,
			Credentials:  st,
			Executions:   st,
			Runner:       execution.NewOrchestrator(st, st, st, orchOpts...),
			Logger:       logger,
		}),
	}
}

func statusError(status model.ExecutionStatus) error {
	switch status {
	case model.ExecutionPassed:
		return nil
	case model.ExecutionFailed:
		return &ExitError{Code: ExitTestFailure}
	default:
		return &ExitError{Code: ExitExecutionError}
	}
}

func executeRun(ctx context.Context, opts runOptions, stdout, stderr io.Writer) error {
	cfg, err := buildConfig(opts)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	logger, err := logging.New(cfg.LogLevel, false)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	defer func() { _ = logger.Sync() }()

	outWriter := stdout
	if opts.OutputFile != "" {
		file, err := os.Create(opts.OutputFile)
		if err != nil {
			return &ExitError{Code: ExitConfigError, Err: fmt.Errorf("cannot create output file: %w", err)}
		}
		defer file.Close()
		outWriter = file
	}
	formatter, err := output.New(strings.ToLower(opts.Output), outWriter, opts.Verbose, opts.NoColor)
	if err != nil {
		return &ExitError{Code: ExitUsageError, Err: err}
	}

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		formatter.FormatError(err)
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	defer st.Close()

	var observers execution.Observers
	if opts.Progress {
		observers = append(observers, output.NewProgress(stderr))
	}
	if notifier := cfg.Notifier(logger); notifier != nil {
		observers = append(observers, notifier)
		defer func() {
			if err := notifier.Wait(); err != nil {
				logger.Warn("some notifications were not delivered", zap.Error(err))
			}
		}()
	}
	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		collector = metrics.NewCollector(metrics.FileExporter(cfg.MetricsFile))
		observers = append(observers, collector)
	}
	var observer execution.Observer
	if len(observers) > 0 {
		observer = observers
	}
	eng := newEngine(cfg, st, logger, observer)
	eng.metrics = collector
	if _, err := eng.dispatcher.RecoverStale(ctx); err != nil {
		logger.Warn("failed to recover stale executions", zap.Error(err))
	}
	eng.dispatcher.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := eng.dispatcher.Shutdown(shutdownCtx); err != nil {
			logger.Warn("dispatcher shutdown", zap.Error(err))
		}
	}()

	status, err := runOnce(ctx, eng, opts, formatter)
	if !opts.Watch {
		if err != nil {
			return err
		}
		return statusError(status)
	}
	return watchSuite(ctx, eng, opts, formatter, stdout)
}

// runOnce loads the suite file, seeds it, runs it through the dispatcher and
// renders the result.
func runOnce(ctx context.Context, eng *engine, opts runOptions, formatter output.Formatter) (model.ExecutionStatus, error) {
	f, err := suitefile.Load(opts.SuiteFile)
	if err != nil {
		formatter.FormatError(err)
		return "", &ExitError{Code: ExitParseError, Err: err}
	}

	vars, err := collectVariables(f.Variables, opts.EnvFile, opts.Vars)
	if err != nil {
		formatter.FormatError(err)
		return "", &ExitError{Code: ExitConfigError, Err: err}
	}
	f.Variables = vars

	seeded, err := suitefile.Seed(ctx, eng.store, f)
	if err != nil {
		formatter.FormatError(err)
		return "", &ExitError{Code: ExitConfigError, Err: err}
	}

	id, err := eng.dispatcher.Trigger(ctx, execution.TriggerRequest{
		SuiteID:       seeded.SuiteID,
		EnvironmentID: seeded.EnvironmentID,
		CredentialID:  seeded.CredentialID,
		Variables:     vars,
	})
	if err != nil {
		formatter.FormatError(err)
		return "", &ExitError{Code: ExitExecutionError, Err: err}
	}

	exec, err := eng.dispatcher.Wait(ctx, id)
	if err != nil {
		formatter.FormatError(err)
		return "", &ExitError{Code: ExitExecutionError, Err: err}
	}
	if eng.metrics != nil {
		if err := eng.metrics.Flush(); err != nil {
			eng.logger.Warn("failed to write metrics", zap.Error(err))
		}
	}
	steps, err := eng.store.ListStepResults(ctx, id)
	if err != nil {
		formatter.FormatError(err)
		return "", &ExitError{Code: ExitConfigError, Err: err}
	}

	if err := formatter.Format(&output.Report{SuiteName: f.Name, Execution: exec, Steps: steps}); err != nil {
		return exec.Status, fmt.Errorf("error writing output: %w", err)
	}
	return exec.Status, nil
}

// watchSuite re-runs the suite whenever the suite file or env file changes,
// until ctx is cancelled.
func watchSuite(ctx context.Context, eng *engine, opts runOptions, formatter output.Formatter, stdout io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := map[string]bool{}
	watchedDirs := map[string]bool{}
	for _, file := range []string{opts.SuiteFile, opts.EnvFile} {
		if file == "" {
			continue
		}
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if !watchedDirs[dir] {
			// Editors replace files on save, so the directory is watched
			// rather than the file itself.
			if err := watcher.Add(dir); err != nil {
				formatter.FormatError(fmt.Errorf("failed to watch %s: %w", dir, err))
			}
			watchedDirs[dir] = true
		}
	}

	fmt.Fprintf(stdout, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()
	var changed string

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				changed = event.Name
				debounce.Reset(WatchDebounceDelay)
			}

		case <-debounce.C:
			fmt.Fprintf(stdout, "\n\nFile changed: %s\nRe-running suite...\n\n", changed)
			if _, err := runOnce(ctx, eng, opts, formatter); err != nil && !errors.Is(err, context.Canceled) {
				var exitErr *ExitError
				if !errors.As(err, &exitErr) {
					formatter.FormatError(err)
				}
			}
			fmt.Fprintf(stdout, "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			formatter.FormatError(fmt.Errorf("watcher error: %w", err))
		}
	}
}
