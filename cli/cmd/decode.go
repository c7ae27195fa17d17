package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/canmill/adapter"
	"github.com/pithecene-io/canmill/adapter/redis"
	"github.com/pithecene-io/canmill/adapter/webhook"
	"github.com/pithecene-io/canmill/canlog"
	"github.com/pithecene-io/canmill/cli/config"
	"github.com/pithecene-io/canmill/dbc"
	"github.com/pithecene-io/canmill/export"
	"github.com/pithecene-io/canmill/log"
	"github.com/pithecene-io/canmill/policy"
	"github.com/pithecene-io/canmill/runtime"
)

// Exit codes for flag and configuration failures, aligned with the
// session outcome codes so scripts see a single classification.
const (
	exitSessionError = runtime.ExitCodeError
	exitInvalidInput = runtime.ExitCodeInvalidInput
)

// Policy names accepted by --policy.
const (
	policyStrict    = "strict"
	policyBuffered  = "buffered"
	policyStreaming = "streaming"
	policyDiscard   = "discard"
)

// Store backends accepted by --store.
const (
	storeFS = "fs"
	storeS3 = "s3"
)

// Adapter kinds.
const (
	adapterRedis   = "redis"
	adapterWebhook = "webhook"
)

// DecodeCommand returns the decode command.
//
// Flags resolve against an optional config file (--config): an explicit
// flag wins, then the config value, then the flag default. --log and
// --dbc are required but may be satisfied by the config file's source
// and schema keys.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "decode",
		Usage: "Decode a candump log against a DBC schema",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log",
				Aliases: []string{"l"},
				Usage:   "Candump log file (.log, or .log.gz for gzip)",
			},
			&cli.StringFlag{
				Name:    "dbc",
				Aliases: []string{"d"},
				Usage:   "DBC schema file",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Output directory for the fs store",
				Value: "./out",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: csv, parquet, jsonl, msgpack",
				Value:   export.FormatCSV,
			},
			&cli.StringFlag{
				Name:  "policy",
				Usage: "Persistence policy: strict, buffered, streaming, discard",
				Value: policyStrict,
			},
			&cli.IntFlag{
				Name:  "buffer-rows",
				Usage: "Row buffer capacity (buffered policy) or flush threshold (streaming)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Decode worker count",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Store backend: fs or s3",
				Value: storeFS,
			},
			&cli.StringFlag{
				Name:  "s3-path",
				Usage: "S3 location: bucket-name or bucket-name/prefix",
			},
			&cli.StringFlag{
				Name:  "dataset",
				Usage: "Dataset partition name",
				Value: export.DefaultDataset,
			},
			&cli.StringFlag{
				Name:    "report",
				Aliases: []string{"r"},
				Usage:   "Write the session report JSON to this path ('-' for stderr)",
			},
			&cli.StringFlag{
				Name:  "redis-url",
				Usage: "Publish the completion event to this Redis URL",
			},
			&cli.StringFlag{
				Name:  "webhook-url",
				Usage: "POST the completion event to this URL",
			},
			&cli.BoolFlag{
				Name:  "strict-publish",
				Usage: "Treat completion event publish failure as a session error",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file (canmill.yaml)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the console summary",
			},
		},
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	var cfg *config.Config
	if c.IsSet("config") {
		loaded, err := config.Load(c.String("config"))
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		cfg = loaded
	}

	logPath := resolveString(c, "log", configVal(cfg, func(f *config.Config) string { return f.Source }))
	if logPath == "" {
		return cli.Exit("--log is required (or set source in the config file)", exitInvalidInput)
	}
	dbcPath := resolveString(c, "dbc", configVal(cfg, func(f *config.Config) string { return f.Schema }))
	if dbcPath == "" {
		return cli.Exit("--dbc is required (or set schema in the config file)", exitInvalidInput)
	}

	format := resolveString(c, "format", configVal(cfg, func(f *config.Config) string { return f.Export.Format }))
	switch format {
	case export.FormatCSV, export.FormatParquet, export.FormatJSONL, export.FormatMsgpack:
	default:
		return cli.Exit(fmt.Sprintf("invalid --format %q\nValid options: csv, parquet, jsonl, msgpack", format), exitInvalidInput)
	}

	policyName := resolveString(c, "policy", configVal(cfg, func(f *config.Config) string { return f.Policy.Name }))
	switch policyName {
	case policyStrict, policyBuffered, policyStreaming, policyDiscard:
	default:
		return cli.Exit(fmt.Sprintf("invalid --policy %q\nValid options: strict, buffered, streaming, discard", policyName), exitInvalidInput)
	}

	adapters, err := resolveAdapters(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	schema, err := dbc.Load(dbcPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("cannot load DBC %s: %v", dbcPath, err), exitInvalidInput)
	}

	runID := uuid.New().String()
	logger, err := buildLogger(c, cfg, runID)
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}
	if len(schema.Multiplexed) > 0 {
		logger.Warn("multiplexed messages skipped, frames decode as unknown", map[string]any{
			"messages": schema.Multiplexed,
		})
	}

	// The partition day is derived once, before the session starts, so
	// the storage path and the completion event always agree.
	part := export.Partition{
		Dataset: resolveString(c, "dataset", configVal(cfg, func(f *config.Config) string { return f.Export.Dataset })),
		Source:  filepath.Base(logPath),
		Day:     deriveDay(logPath, time.Now),
		RunID:   runID,
	}

	// The discard policy decodes without persisting, so no store or sink
	// is built for it.
	var (
		pol         policy.Policy
		storagePath string
	)
	if policyName == policyDiscard {
		pol = policy.NewDiscardPolicy()
	} else {
		choice, err := resolveStore(c, cfg)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		store, err := openStore(c.Context, choice)
		if err != nil {
			return cli.Exit(fmt.Sprintf("cannot open %s store: %v", choice.backend, err), exitSessionError)
		}
		defer store.Close()

		sink, err := export.NewSink(format, store, part, schema.Layout)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		pol, err = buildPolicy(c, cfg, policyName, sink, logger)
		if err != nil {
			return cli.Exit(err.Error(), exitInvalidInput)
		}
		storagePath = buildStoragePath(choice, part)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	session, err := runtime.NewSession(&runtime.SessionConfig{
		Input:     logPath,
		Schema:    dbcPath,
		Layout:    schema.Layout,
		Policy:    pol,
		RunID:     runID,
		Workers:   resolveInt(c, "workers", configVal(cfg, func(f *config.Config) int { return f.Workers })),
		BatchSize: configVal(cfg, func(f *config.Config) int { return f.BatchSize }),
		Logger:    logger,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitInvalidInput)
	}

	result := session.Execute(ctx)

	// Close flushes remaining rows and writes the finished objects. A
	// failed close means rows did not persist.
	if err := pol.Close(); err != nil {
		logger.Error("export close failed", map[string]any{"error": err.Error()})
		if result.Outcome.Status == runtime.OutcomeCompleted {
			result.Outcome = runtime.Outcome{
				Status:  runtime.OutcomeError,
				Message: fmt.Sprintf("export failed: %v", err),
			}
		}
	}

	if !c.Bool("quiet") {
		runtime.PrintSessionSummary(result, policyName)
		if storagePath != "" {
			fmt.Printf("\nOutput: %s\n", storagePath)
		}
	}

	if c.IsSet("report") {
		report := runtime.BuildSessionReport(result, policyName)
		if err := runtime.WriteSessionReport(report, c.String("report")); err != nil {
			return cli.Exit(fmt.Sprintf("cannot write report: %v", err), exitSessionError)
		}
	}

	event := buildSessionCompletedEvent(result, part, storagePath)
	if err := publishCompletion(ctx, adapters, event, logger); err != nil {
		if c.Bool("strict-publish") {
			return cli.Exit(fmt.Sprintf("completion publish failed: %v", err), exitSessionError)
		}
		logger.Warn("completion publish failed (best effort)", map[string]any{
			"error": err.Error(),
		})
	}

	return cli.Exit("", result.Outcome.ExitCode())
}

// resolveString resolves a string setting: an explicit flag wins, then
// the config file value, then the flag default.
func resolveString(c *cli.Context, name, configValue string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if configValue != "" {
		return configValue
	}
	return c.String(name)
}

// resolveInt resolves an int setting with the same precedence as
// resolveString. A zero config value means unset.
func resolveInt(c *cli.Context, name string, configValue int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Int(name)
}

// configVal reads a value from an optional config, returning the zero
// value when no config file was loaded.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// buildLogger creates the session logger. The global --verbose flag
// forces debug level; otherwise the config file's log block applies,
// defaulting to info.
func buildLogger(c *cli.Context, cfg *config.Config, runID string) (*log.Logger, error) {
	logCfg := configVal(cfg, func(f *config.Config) config.LogConfig { return f.Log })
	if c.Bool("verbose") {
		logCfg.Level = "debug"
	} else if logCfg.Level == "" {
		logCfg.Level = "info"
	}
	return log.New(runID, log.Options{Level: logCfg.Level, Format: logCfg.Format})
}

// storeChoice is the resolved store backend selection.
type storeChoice struct {
	backend string

	// out is the fs output root.
	out string

	// bucket and prefix locate the s3 store.
	bucket    string
	prefix    string
	region    string
	endpoint  string
	pathStyle bool
}

// resolveStore validates the store flags and config into a concrete
// backend selection. The fs output root is created if missing.
func resolveStore(c *cli.Context, cfg *config.Config) (storeChoice, error) {
	exportCfg := configVal(cfg, func(f *config.Config) config.ExportConfig { return f.Export })

	backend := resolveString(c, "store", exportCfg.Backend)
	switch backend {
	case storeFS:
		out := resolveString(c, "out", exportCfg.Path)
		if info, err := os.Stat(out); err == nil && !info.IsDir() {
			return storeChoice{}, fmt.Errorf("output path %q is not a directory", out)
		}
		if err := os.MkdirAll(out, 0o755); err != nil {
			return storeChoice{}, fmt.Errorf("cannot create output directory %q: %v", out, err)
		}
		return storeChoice{backend: storeFS, out: out}, nil

	case storeS3:
		s3Path := resolveString(c, "s3-path", exportCfg.Path)
		if s3Path == "" {
			return storeChoice{}, errors.New("--s3-path is required when --store=s3\nFormat: bucket-name or bucket-name/prefix")
		}
		bucket, prefix := export.ParseS3Path(s3Path)
		return storeChoice{
			backend:   storeS3,
			bucket:    bucket,
			prefix:    prefix,
			region:    exportCfg.Region,
			endpoint:  exportCfg.Endpoint,
			pathStyle: exportCfg.S3PathStyle,
		}, nil

	default:
		return storeChoice{}, fmt.Errorf("invalid --store %q\nValid options: fs, s3", backend)
	}
}

// openStore opens the store for the choice. S3 credentials come from
// the default AWS chain.
func openStore(ctx context.Context, choice storeChoice) (export.Store, error) {
	switch choice.backend {
	case storeS3:
		return export.NewS3Store(ctx, export.S3Config{
			Bucket:       choice.bucket,
			Prefix:       choice.prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.pathStyle,
		})
	default:
		return export.NewFSStore(choice.out), nil
	}
}

// buildPolicy constructs the named policy over the sink. The discard
// policy is handled by the caller; it takes no sink.
func buildPolicy(c *cli.Context, cfg *config.Config, name string, sink policy.Sink, logger *log.Logger) (policy.Policy, error) {
	policyCfg := configVal(cfg, func(f *config.Config) config.PolicyConfig { return f.Policy })

	switch name {
	case policyStrict:
		if c.IsSet("buffer-rows") {
			fmt.Fprintln(os.Stderr, "warning: --buffer-rows is ignored with --policy=strict")
		}
		return policy.NewStrictPolicy(sink), nil

	case policyBuffered:
		bufCfg := policy.DefaultBufferedConfig()
		bufCfg.Logger = logger
		if c.IsSet("buffer-rows") || policyCfg.BufferRows != 0 {
			bufCfg.MaxBufferRows = resolveInt(c, "buffer-rows", policyCfg.BufferRows)
		}
		if policyCfg.BufferBytes != 0 {
			bufCfg.MaxBufferBytes = policyCfg.BufferBytes
		}
		return policy.NewBufferedPolicy(sink, bufCfg)

	case policyStreaming:
		return policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:    resolveInt(c, "buffer-rows", policyCfg.FlushCount),
			FlushInterval: policyCfg.FlushInterval.Duration,
			Logger:        logger,
		})

	default:
		return nil, fmt.Errorf("unknown policy %q", name)
	}
}

// deriveDay computes the day partition key from the first frame's
// timestamp. An empty or unreadable log falls back to the current day;
// open failures are reported later by the session itself.
func deriveDay(logPath string, now func() time.Time) string {
	sc, err := canlog.Open(logPath)
	if err == nil {
		defer sc.Close()
		if frame, err := sc.Next(); err == nil {
			return export.DeriveDay(frame.Timestamp)
		}
	}
	return now().UTC().Format("2006-01-02")
}

// buildStoragePath renders the partition destination as a URL for the
// console summary and the completion event.
func buildStoragePath(choice storeChoice, part export.Partition) string {
	dir := part.Key("")
	switch choice.backend {
	case storeS3:
		base := "s3://" + choice.bucket
		if choice.prefix != "" {
			base += "/" + strings.Trim(choice.prefix, "/")
		}
		return base + "/" + dir
	case storeFS:
		abs, err := filepath.Abs(choice.out)
		if err != nil {
			abs = choice.out
		}
		return "file://" + filepath.ToSlash(abs) + "/" + dir
	default:
		return dir
	}
}

// adapterChoice is one resolved completion event target.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	// retries distinguishes unset (nil, adapter default) from an
	// explicit zero (single attempt).
	retries *int
}

// resolveAdapters merges the adapter URL flags over the config file
// adapter block. Both a Redis and a webhook target may be active at
// once; the config block contributes its channel, headers, timeout,
// and retry settings to the target of its declared type.
func resolveAdapters(c *cli.Context, cfg *config.Config) ([]adapterChoice, error) {
	adapterCfg := configVal(cfg, func(f *config.Config) config.AdapterConfig { return f.Adapter })

	switch adapterCfg.Type {
	case "", adapterRedis, adapterWebhook:
	default:
		return nil, fmt.Errorf("unknown adapter type %q in config\nValid options: redis, webhook", adapterCfg.Type)
	}

	var choices []adapterChoice

	redisURL := c.String("redis-url")
	if redisURL == "" && adapterCfg.Type == adapterRedis {
		redisURL = adapterCfg.URL
	}
	if redisURL != "" {
		choice := adapterChoice{kind: adapterRedis, url: redisURL}
		if adapterCfg.Type == adapterRedis {
			choice.channel = adapterCfg.Channel
			choice.timeout = adapterCfg.Timeout.Duration
			choice.retries = adapterCfg.Retries
		}
		choices = append(choices, choice)
	}

	webhookURL := c.String("webhook-url")
	if webhookURL == "" && adapterCfg.Type == adapterWebhook {
		webhookURL = adapterCfg.URL
	}
	if webhookURL != "" {
		choice := adapterChoice{kind: adapterWebhook, url: webhookURL}
		if adapterCfg.Type == adapterWebhook {
			choice.headers = adapterCfg.Headers
			choice.timeout = adapterCfg.Timeout.Duration
			choice.retries = adapterCfg.Retries
		}
		choices = append(choices, choice)
	}

	return choices, nil
}

// buildAdapter constructs the adapter for a choice.
func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.kind {
	case adapterRedis:
		retries := redis.DefaultRetries
		if choice.retries != nil {
			retries = *choice.retries
		}
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: retries,
		})
	case adapterWebhook:
		retries := webhook.DefaultRetries
		if choice.retries != nil {
			retries = *choice.retries
		}
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", choice.kind)
	}
}

// buildSessionCompletedEvent composes the completion event from the
// session result and the partition it wrote to.
func buildSessionCompletedEvent(result *runtime.SessionResult, part export.Partition, storagePath string) *adapter.SessionCompletedEvent {
	return &adapter.SessionCompletedEvent{
		ContractVersion: adapter.ContractVersion,
		EventType:       "session_completed",
		RunID:           result.RunID,
		Input:           result.Input,
		Schema:          result.Schema,
		Source:          part.Source,
		Day:             part.Day,
		Outcome:         string(result.Outcome.Status),
		StoragePath:     storagePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		FramesRead:      result.FramesRead,
		FramesDecoded:   result.Stats.DecodedFrames,
		RowsPersisted:   result.PolicyStats.RowsPersisted,
		DurationMs:      result.Duration.Milliseconds(),
	}
}

// publishCompletion sends the event to every resolved target,
// collecting failures. Cancellation of the session context does not
// cancel the publish; each adapter bounds its own attempts.
func publishCompletion(ctx context.Context, choices []adapterChoice, event *adapter.SessionCompletedEvent, logger *log.Logger) error {
	if len(choices) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)

	var errs []error
	for _, choice := range choices {
		a, err := buildAdapter(choice)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", choice.kind, err))
		} else {
			logger.Info("completion event published", map[string]any{
				"adapter": choice.kind,
			})
		}
		_ = a.Close()
	}
	return errors.Join(errs...)
}
