// Package main is the clipsim CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/clipsim/internal/cli"
	"github.com/hyperjump/clipsim/internal/config"
	"github.com/hyperjump/clipsim/internal/embedding"
	"github.com/hyperjump/clipsim/internal/fetch"
	"github.com/hyperjump/clipsim/internal/models"
	"github.com/hyperjump/clipsim/internal/pipeline"
	"github.com/hyperjump/clipsim/internal/render"
	"github.com/hyperjump/clipsim/internal/server"
	"github.com/hyperjump/clipsim/internal/service"
	"github.com/hyperjump/clipsim/internal/storage"
	"github.com/hyperjump/clipsim/internal/watcher"
	"github.com/hyperjump/clipsim/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/clipsim/config.yaml"

// sampleItems is the demo list used when run is given no items.
var sampleItems = []string{
	"a dog",
	"a cat",
	"a car",
	"https://upload.wikimedia.org/wikipedia/commons/thumb/d/d9/Collage_of_Nine_Dogs.jpg/640px-Collage_of_Nine_Dogs.jpg",
	"https://upload.wikimedia.org/wikipedia/commons/thumb/0/0b/Cat_poster_1.jpg/640px-Cat_poster_1.jpg",
	"https://upload.wikimedia.org/wikipedia/commons/thumb/9/9d/Tesla_Model_S_Indoors.jpg/640px-Tesla_Model_S_Indoors.jpg",
	"animal",
	"vehicle",
	"pet",
}

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence (for development). When neither file exists, built-in defaults
// plus environment overrides are used so that the CLI works without any config.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			if err := config.LoadDotEnv(".env"); err != nil {
				return nil, "", err
			}
			cfg := config.Default()
			config.ApplyEnv(cfg, os.LookupEnv)
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	var err error
	command := os.Args[1]
	switch command {
	case "run":
		err = runCompute(os.Args[2:], os.Stdout, os.Stderr)
	case "server":
		err = runServer(os.Args[2:], os.Stderr)
	case "watch":
		err = runWatch(os.Args[2:], os.Stdout, os.Stderr)
	case "version", "--version", "-v":
		fmt.Printf("clipsim version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// components holds the wired dependencies shared by the subcommands.
type components struct {
	Backend embedding.Backend
	Fetcher *fetch.Fetcher
	Storage *storage.SQLiteStorage
	Service *service.Service
}

// Close releases the backend and the report store.
func (c *components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Backend != nil {
		_ = c.Backend.Close()
	}
}

// initializeComponents wires backend, fetcher, pipeline and service. A *embedding.BackendInitError
// is returned unchanged so callers can report it before any item is processed.
func initializeComponents(cfg *config.Config, logger *zap.Logger, withStorage bool, progress pipeline.ProgressFunc) (*components, error) {
	backend, err := embedding.NewBackend(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	logger.Info("embedding backend initialized",
		zap.String("backend", cfg.Embedding.Backend),
		zap.String("model", backend.Model()),
		zap.Int("dimensions", backend.Dimensions()),
	)

	fetcher, err := fetch.NewFetcher(cfg.Fetch, fetch.WithLogger(logger))
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to initialize image fetcher: %w", err)
	}

	c := &components{Backend: backend, Fetcher: fetcher}
	var store storage.Storage
	if withStorage {
		s, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		c.Storage = s
		store = s
	}

	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if progress != nil {
		opts = append(opts, pipeline.WithProgress(progress))
	}
	p := pipeline.New(backend, fetcher, opts...)
	c.Service = service.New(p, store,
		service.WithLogger(logger),
		service.WithDefaultTitle(cfg.Render.Title),
	)
	return c, nil
}

// setup loads config and builds the logger; flagDebug forces debug logging.
func setup(configPath string, flagDebug bool) (*config.Config, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debug := cfg.Debug || flagDebug
	logger, err := utils.NewLogger(debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if resolved == "" {
		resolved = "(built-in defaults)"
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debug))
	return cfg, logger, nil
}

// parseInterleaved parses flags that may appear between positional items and returns the
// items in their original order. The flag package alone stops at the first non-flag argument.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return positional, nil
		}
		positional = append(positional, rest[0])
		args = rest[1:]
	}
}

// collectItems returns items from itemsFile followed by positional args, or the sample list
// when both are empty.
func collectItems(itemsFile string, args []string) ([]string, error) {
	var items []string
	if itemsFile != "" {
		fromFile, err := cli.ReadItemsFile(itemsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read items: %w", err)
		}
		items = append(items, fromFile...)
	}
	items = append(items, args...)
	if len(items) == 0 {
		return append([]string(nil), sampleItems...), nil
	}
	return items, nil
}

// writeOutputFile renders r into path, choosing the format from the file extension.
func writeOutputFile(path string, r *models.Report, rc config.RenderConfig) error {
	format, err := render.FormatForPath(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	opts := render.Options{Title: rc.Title, Precision: rc.Precision, CellSize: rc.CellSize}
	if err := render.Write(f, r, format, opts); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func runCompute(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	itemsFile := fs.String("items", "", "file with one item per line ('#' starts a comment)")
	output := fs.String("format", "text", "stdout format: text or json")
	out := fs.String("out", "", "also write the report to this file (.png, .xlsx, .json or .txt)")
	title := fs.String("title", "", "report title (default from config)")
	save := fs.Bool("save", false, "store the report in the report database")
	top := fs.Int("top", -1, "top matches listed per item in text output (default from config)")
	quiet := fs.Bool("quiet", false, "do not print per-item progress")
	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}

	format := cli.OutputFormat(*output)
	if format != cli.OutputText && format != cli.OutputJSON {
		return fmt.Errorf("invalid -format %q (want text or json)", *output)
	}
	if *out != "" {
		if _, err := render.FormatForPath(*out); err != nil {
			return err
		}
	}
	items, err := collectItems(*itemsFile, positional)
	if err != nil {
		return err
	}

	cfg, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var progress pipeline.ProgressFunc
	if !*quiet {
		progress = cli.ProgressPrinter(stderr)
	}
	c, err := initializeComponents(cfg, logger, *save, progress)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := c.Service.Compute(ctx, items, *title)
	if err != nil {
		return err
	}
	if *save {
		if err := c.Service.Save(ctx, report); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Saved report %s\n", report.ID)
	}

	topK := cfg.Render.TopK
	if *top >= 0 {
		topK = *top
	}
	if err := cli.WriteReport(stdout, report, format, cfg.Render.Precision, topK); err != nil {
		return err
	}
	if *out != "" {
		if err := writeOutputFile(*out, report, cfg.Render); err != nil {
			return err
		}
		fmt.Fprintf(stderr, "Wrote %s\n", *out)
	}
	return nil
}

func runServer(args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, true, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := server.NewServer(c.Service, c.Fetcher, &cfg.Server, cfg.Render, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigChan:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func runWatch(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	itemsFile := fs.String("items", "", "file with one item per line (required)")
	out := fs.String("out", "", "rewrite this file (.png, .xlsx, .json or .txt) on every change")
	output := fs.String("format", "text", "stdout format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *itemsFile == "" {
		return fmt.Errorf("watch requires -items")
	}
	format := cli.OutputFormat(*output)
	if format != cli.OutputText && format != cli.OutputJSON {
		return fmt.Errorf("invalid -format %q (want text or json)", *output)
	}
	if *out != "" {
		if _, err := render.FormatForPath(*out); err != nil {
			return err
		}
	}

	cfg, logger, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, logger, false, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recompute := serialize(func(path string) {
		items, err := cli.ReadItemsFile(path)
		if err != nil {
			logger.Warn("failed to read items", zap.String("path", path), zap.Error(err))
			return
		}
		report, err := c.Service.Compute(ctx, items, "")
		if err != nil {
			logger.Warn("recompute failed", zap.String("path", path), zap.Error(err))
			return
		}
		if err := cli.WriteReport(stdout, report, format, cfg.Render.Precision, cfg.Render.TopK); err != nil {
			logger.Warn("failed to print report", zap.Error(err))
		}
		if *out != "" {
			if err := writeOutputFile(*out, report, cfg.Render); err != nil {
				logger.Warn("failed to write output", zap.String("path", *out), zap.Error(err))
			}
		}
	})

	w, err := watcher.NewWatcher([]string{*itemsFile}, recompute, watcher.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	recompute(w.Files()[0])
	logger.Info("watching items file", zap.String("path", w.Files()[0]))
	<-ctx.Done()
	return nil
}

// serialize wraps fn so that concurrent calls run one at a time.
func serialize(fn func(string)) func(string) {
	var mu sync.Mutex
	return func(path string) {
		mu.Lock()
		defer mu.Unlock()
		fn(path)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `clipsim - Cross-modal similarity matrices for text and images

Usage:
  clipsim run [flags] [items...]   Compute the similarity matrix of the given items
  clipsim server [flags]           Start the HTTP server
  clipsim watch [flags]            Recompute whenever an items file changes
  clipsim version                  Show version
  clipsim help                     Show this help

Items are free text or image URLs (anything starting with "http").
With no items and no -items file, run uses a built-in sample list.

Run Flags:
  --config string    Config file path (default: /usr/local/etc/clipsim/config.yaml)
  --items string     File with one item per line ('#' starts a comment)
  --format string    Stdout format: text or json (default: text)
  --out string       Also write the report to a .png, .xlsx, .json or .txt file
  --title string     Report title
  --save             Store the report in the report database
  --top int          Top matches per item in text output
  --quiet            Do not print per-item progress
  --debug            Enable debug logging

Server Flags:
  --config string    Config file path
  --debug            Enable debug logging

Watch Flags:
  --items string     Items file to watch (required)
  --out string       Output file rewritten on every change
  --format string    Stdout format: text or json

Examples:
  clipsim run
  clipsim run "a dog" "a cat" https://example.com/dog.jpg
  clipsim run -items items.txt -out heatmap.png
  clipsim run -format json -items items.txt > report.json
  clipsim watch -items items.txt -out heatmap.xlsx
  clipsim server`)
}
