// Command catalogsync pushes canonical catalog entities from the content store to the
// configured sales channels and keeps the identifier map between them.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/domain/integration"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/config"
	"github.com/Zenn-Dev99/StrapiAlmonte-sub001/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1 // an entity failed or the run was cancelled
	exitConfig = 2
)

// options are the command line flags shared by all subcommands
type options struct {
	configFile    string
	channels      []string
	dryRun        bool
	concurrency   int
	kinds         string
	entityIDs     []string
	limit         int
	merge         bool
	pruneMappings bool
	metricsFile   string
	jsonOutput    bool
	records       bool
	logLevel      string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitConfig
	}
	command := args[0]
	switch command {
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	case "sync", "dry-run", "reconcile-duplicates", "serve", "channels":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		printUsage(stderr)
		return exitConfig
	}

	opts, err := parseFlags(command, args[1:], stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		return exitConfig
	}

	cfg, err := config.LoadFile(opts.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "catalogsync: %v\n", err)
		return exitConfig
	}
	opts.apply(cfg)

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		fmt.Fprintf(stderr, "catalogsync: failed to initialize logger: %v\n", err)
		return exitConfig
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "channels":
		err = listChannels(cfg, stdout)
	case "sync":
		err = runSync(ctx, cfg, log, opts, stdout)
	case "dry-run":
		opts.dryRun = true
		err = runSync(ctx, cfg, log, opts, stdout)
	case "reconcile-duplicates":
		err = runReconcile(ctx, cfg, log, opts, stdout)
	case "serve":
		err = runServe(ctx, cfg, log, opts)
	}
	return exitCode(err, log)
}

// exitCode maps a command result to the process exit status
func exitCode(err error, log *zap.Logger) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errRunFailed):
		return exitFailed
	case integration.KindOf(err) == integration.ErrorKindConfiguration:
		log.Error("configuration error", zap.Error(err))
		return exitConfig
	default:
		log.Error("run failed", zap.Error(err))
		return exitFailed
	}
}

// errRunFailed reports a completed run with failed entities or a cancellation
var errRunFailed = errors.New("run finished with failures")

func parseFlags(command string, args []string, stderr io.Writer) (options, error) {
	var (
		opts     options
		channels string
		ids      string
	)
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "Path to the TOML config file (default: ./catalogsync.toml)")
	fs.StringVar(&channels, "channel", "", "Comma separated channel keys (default: all configured)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Resolve and report payloads without writing")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "Worker pool size (default from config)")
	fs.StringVar(&opts.kinds, "kinds", "", "Comma separated entity kinds (default: all)")
	fs.StringVar(&ids, "ids", "", "Comma separated entity IDs, to re-run a failed subset")
	fs.IntVar(&opts.limit, "limit", 0, "Maximum entities per kind, 0 for no limit")
	fs.BoolVar(&opts.merge, "merge", false, "Merge duplicate taxonomy terms")
	fs.BoolVar(&opts.pruneMappings, "prune-mappings", false, "Delete all but the latest mapping of duplicate mapping groups")
	fs.StringVar(&opts.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	fs.BoolVar(&opts.jsonOutput, "json", false, "Print reports as JSON")
	fs.BoolVar(&opts.records, "records", false, "Include per-entity records in JSON reports")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		fmt.Fprintln(stderr, err)
		return opts, err
	}
	opts.channels = splitList(channels)
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			opts.entityIDs = append(opts.entityIDs, id)
		}
	}
	return opts, nil
}

// apply overrides configuration with explicit flags
func (o options) apply(cfg *config.Config) {
	if o.concurrency > 0 {
		cfg.Sync.Concurrency = o.concurrency
	}
	if o.kinds != "" {
		cfg.Sync.Kinds = splitList(o.kinds)
	}
	if o.limit > 0 {
		cfg.Sync.Limit = o.limit
	}
	if o.metricsFile != "" {
		cfg.Sync.MetricsFile = o.metricsFile
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Catalog sync

Usage:
  catalogsync <command> [flags]

Commands:
  sync                  Sync canonical entities to the channels
  dry-run               Resolve and report payloads without writing (same as sync --dry-run)
  reconcile-duplicates  Report duplicate taxonomy terms and identifier mappings
  serve                 Run scheduled syncs and serve /health, /metrics, /reports/latest
  channels              List configured channels

Flags:
  --config string        Path to the TOML config file (default: ./catalogsync.toml)
  --channel string       Comma separated channel keys (default: all configured)
  --dry-run              Resolve and report payloads without writing
  --concurrency int      Worker pool size
  --kinds string         Comma separated entity kinds: publisher, imprint, collection, author, book
  --ids string           Comma separated entity IDs (sync, dry-run)
  --limit int            Maximum entities per kind
  --merge                Merge duplicate taxonomy terms (reconcile-duplicates)
  --prune-mappings       Delete stale duplicate mappings (reconcile-duplicates)
  --metrics-file string  Write run metrics in Prometheus text format
  --json                 Print reports as JSON
  --records              Include per-entity records in JSON reports
  --log-level string     Log level: debug, info, warn, error

Exit status:
  0  every entity synced
  1  an entity failed or the run was cancelled
  2  configuration error

Environment Variables:
  CATALOGSYNC_CONTENT_STORE_BASE_URL, CATALOGSYNC_CONTENT_STORE_TOKEN
  CATALOGSYNC_CHANNEL_KEYS
  CATALOGSYNC_CHANNELS_<KEY>_BASE_URL, _AUTH, _KEY, _SECRET, _TOKEN

Examples:
  # Preview what a sync of one channel would write
  catalogsync dry-run --channel=tienda --kinds=book --limit=20

  # Merge duplicate categories left by earlier runs
  catalogsync reconcile-duplicates --channel=tienda --merge
`)
}
