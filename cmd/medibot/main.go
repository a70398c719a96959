// Package main is the medibot CLI entry point.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/medibot/internal/bundle"
	"github.com/hyperjump/medibot/internal/cli"
	"github.com/hyperjump/medibot/internal/config"
	"github.com/hyperjump/medibot/internal/embedding"
	"github.com/hyperjump/medibot/internal/extract"
	"github.com/hyperjump/medibot/internal/generation"
	"github.com/hyperjump/medibot/internal/indexer"
	"github.com/hyperjump/medibot/internal/models"
	"github.com/hyperjump/medibot/internal/pipeline"
	"github.com/hyperjump/medibot/internal/prompt"
	"github.com/hyperjump/medibot/internal/search"
	"github.com/hyperjump/medibot/internal/server"
	"github.com/hyperjump/medibot/internal/vector"
	"github.com/hyperjump/medibot/internal/watcher"
	"github.com/hyperjump/medibot/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/medibot/config.yaml"

// app carries the streams a command reads and writes, so commands can run in tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	_ = config.LoadEnv(".env")
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	os.Exit(a.run(os.Args[1:]))
}

func (a *app) run(args []string) int {
	if len(args) < 1 {
		a.printUsage()
		return 1
	}
	command, rest := args[0], args[1:]
	switch command {
	case "build-index":
		return a.runBuildIndex(rest)
	case "ask":
		return a.runAsk(rest)
	case "chat":
		return a.runChat(rest)
	case "server":
		return a.runServer(rest)
	case "status":
		return a.runStatus(rest)
	case "version", "--version", "-v":
		fmt.Fprintf(a.stdout, "medibot version %s\n", version)
		return 0
	case "help", "--help", "-h":
		a.printUsage()
		return 0
	default:
		fmt.Fprintf(a.stderr, "Unknown command: %s\n", command)
		a.printUsage()
		return 1
	}
}

// loadConfig loads config from path. With the default path it prefers ./config.yaml when present,
// and falls back to built-in defaults when no file exists at all.
// Returns the config and the path that was loaded, empty for defaults.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := config.Default()
			return cfg, "", cfg.Validate()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// setup loads the config and creates the logger every command starts with.
func (a *app) setup(configPath string, debug bool) (*config.Config, *zap.Logger, bool) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to load config: %v\n", err)
		return nil, nil, false
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to create logger: %v\n", err)
		return nil, nil, false
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, true
}

// argsReorder moves flags that follow positional arguments to the front, since the flag
// package stops at the first non-flag argument ("medibot ask ./index what is it -sources").
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuestion joins positional args so questions work with or without shell quoting.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	e, err := embedding.New(cfg.EmbeddingOptions(), logger)
	if err == nil {
		return e, nil
	}
	if cfg.Embedding.Provider != embedding.ProviderONNX {
		return nil, fmt.Errorf("initialize embedder: %w", err)
	}
	// The ONNX runtime is optional; indexes built with the fallback only open with the same fallback.
	logger.Warn("onnx embedder unavailable, falling back to hash embedder", zap.Error(err))
	return embedding.NewHashEmbedder(cfg.Embedding.Dimensions)
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (generation.Generator, error) {
	opts := cfg.GenerationOptions()
	if opts.Provider == generation.ProviderOpenAI && opts.APIKey == "" {
		logger.Warn("no API key for the generation endpoint, answering extractively",
			zap.String("api_key_env", cfg.Generation.APIKeyEnv))
		return generation.NewExtractiveGenerator(), nil
	}
	g, err := generation.New(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize generator: %w", err)
	}
	return g, nil
}

// components holds the services behind ask, chat, and server.
type components struct {
	embedder embedding.Embedder
	handle   *bundle.Handle
	pipeline *pipeline.Pipeline
}

func (c *components) Close() {
	if c.handle != nil {
		_ = c.handle.Close()
	}
	if c.embedder != nil {
		_ = c.embedder.Close()
	}
}

// initializeComponents wires the query path over the bundle at location.
// Unless requireIndex is set, a missing bundle leaves the handle empty until a reload.
func initializeComponents(cfg *config.Config, location string, requireIndex bool, logger *zap.Logger) (*components, error) {
	e, err := newEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	c := &components{embedder: e}

	b, err := bundle.Open(location, cfg.Expect(e.Model()))
	if err != nil {
		if requireIndex || !errors.Is(err, models.ErrIndexNotFound) {
			c.Close()
			return nil, fmt.Errorf("open index: %w", err)
		}
		logger.Warn("no index yet, queries fail until one is built", zap.String("location", location))
	}
	c.handle = bundle.NewHandle(b, bundle.WithLogger(logger))

	retriever, err := search.NewRetriever(e, c.handle, cfg.RetrieverOptions(), search.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, err
	}
	composer, err := prompt.NewComposer(cfg.ComposerOptions())
	if err != nil {
		c.Close()
		return nil, err
	}
	g, err := newGenerator(cfg, logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.pipeline, err = pipeline.New(retriever, composer, g, cfg.PipelineOptions(), pipeline.WithLogger(logger))
	if err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (a *app) runBuildIndex(args []string) int {
	fs := flag.NewFlagSet("build-index", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return 1
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(a.stderr, "Usage: medibot build-index [flags] <document-source> <index-location>")
		return 1
	}
	source, location := fs.Arg(0), fs.Arg(1)
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	cfg, logger, ok := a.setup(*configPath, *debug)
	if !ok {
		return 1
	}
	defer logger.Sync()

	e, err := newEmbedder(cfg, logger)
	if err != nil {
		fmt.Fprintf(a.stderr, "Build failed: %v\n", err)
		return 1
	}
	defer e.Close()
	idx, err := indexer.NewIndexer(e, cfg.IndexerOptions(), indexer.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(a.stderr, "Build failed: %v\n", err)
		return 1
	}

	ctx, cancel := signalContext()
	defer cancel()
	inputs, err := indexer.LoadDirectory(ctx, source, cfg.Watch.Extensions, extract.NewExtractor())
	if err != nil {
		fmt.Fprintf(a.stderr, "Loading documents failed: %v\n", err)
		return 1
	}
	stats, err := idx.Build(ctx, inputs, location)
	if err != nil {
		fmt.Fprintf(a.stderr, "Build failed: %v\n", err)
		return 1
	}
	if err := cli.WriteBuildStats(a.stdout, stats, format); err != nil {
		fmt.Fprintf(a.stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) runAsk(args []string) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	sessionID := fs.String("session", "", "session id (default: a new session)")
	sources := fs.Bool("sources", false, "list the retrieved passages after the answer")
	stream := fs.Bool("stream", false, "print the answer as it is generated (text output only)")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return 1
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(a.stderr, "Usage: medibot ask [flags] <index-location> <question...>")
		return 1
	}
	location := fs.Arg(0)
	question := buildQuestion(fs.Args()[1:])
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	cfg, logger, ok := a.setup(*configPath, *debug)
	if !ok {
		return 1
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, location, true, logger)
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer c.Close()

	ctx, cancel := signalContext()
	defer cancel()
	var answer *models.Answer
	if *stream && format == cli.OutputText {
		answer = a.streamAnswer(ctx, c.pipeline, question, *sessionID, *sources)
	} else {
		answer = c.pipeline.Answer(ctx, question, *sessionID)
		if err := cli.WriteAnswer(a.stdout, answer, format, *sources); err != nil {
			fmt.Fprintf(a.stderr, "Output failed: %v\n", err)
			return 1
		}
	}
	return cli.ExitCode(answer)
}

// streamAnswer prints fragments as they arrive, then whatever the fragments did not cover.
func (a *app) streamAnswer(ctx context.Context, p *pipeline.Pipeline, question, sessionID string, sources bool) *models.Answer {
	streamed := false
	answer := p.AnswerStream(ctx, question, sessionID, func(fragment string) {
		streamed = true
		fmt.Fprint(a.stdout, fragment)
	})
	if streamed {
		fmt.Fprintln(a.stdout)
	}
	switch {
	case answer.Status == models.StatusFailed:
		if streamed {
			fmt.Fprintln(a.stdout)
		}
		_ = cli.WriteAnswer(a.stdout, answer, cli.OutputText, false)
	case !streamed:
		_ = cli.WriteAnswer(a.stdout, answer, cli.OutputText, sources)
	case sources:
		cli.WriteSources(a.stdout, answer.Context)
	}
	return answer
}

func (a *app) runChat(args []string) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	sources := fs.Bool("sources", false, "list the retrieved passages after each answer")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(a.stderr, "Usage: medibot chat [flags] <index-location>")
		return 1
	}
	cfg, logger, ok := a.setup(*configPath, *debug)
	if !ok {
		return 1
	}
	defer logger.Sync()

	c, err := initializeComponents(cfg, fs.Arg(0), true, logger)
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to initialize: %v\n", err)
		return 1
	}
	defer c.Close()

	ctx, cancel := signalContext()
	defer cancel()
	sessionID := uuid.NewString()
	fmt.Fprintf(a.stdout, "medibot chat (model %s). Type /reset to start over, /exit to quit.\n", c.pipeline.Model())

	scanner := bufio.NewScanner(a.stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(a.stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(a.stdout)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return 0
		case "/reset":
			c.pipeline.Reset(sessionID)
			fmt.Fprintln(a.stdout, "Conversation cleared.")
			continue
		}
		a.streamAnswer(ctx, c.pipeline, line, sessionID, *sources)
		if ctx.Err() != nil {
			return 1
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(a.stderr, "Reading input failed: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) runServer(args []string) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (requests, stages, rebuilds)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, logger, ok := a.setup(*configPath, *debug)
	if !ok {
		return 1
	}
	defer logger.Sync()

	location := cfg.Storage.IndexPath
	c, err := initializeComponents(cfg, location, false, logger)
	if err != nil {
		logger.Error("failed to initialize components", zap.Error(err))
		return 1
	}
	defer c.Close()

	idx, err := indexer.NewIndexer(c.embedder, cfg.IndexerOptions(), indexer.WithLogger(logger))
	if err != nil {
		logger.Error("failed to initialize indexer", zap.Error(err))
		return 1
	}
	refresher := watcher.NewRefresher(idx, c.handle, watcher.RefresherConfig{
		Source:     cfg.Storage.DocumentsPath,
		Location:   location,
		Extensions: cfg.Watch.Extensions,
		Expect:     cfg.Expect(c.embedder.Model()),
	}, watcher.WithRefresherLogger(logger))

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Watch.Enabled {
		w := watcher.NewWatcher(
			cfg.Storage.DocumentsPath,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			refresher.OnChange(ctx),
			watcher.WithLogger(logger),
			watcher.WithDebounce(cfg.Watch.Debounce),
			watcher.WithIgnore(location),
		)
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start watcher", zap.Error(err))
			return 1
		}
		defer w.Stop()
		if !c.handle.Loaded() {
			go func() {
				if _, err := refresher.Rebuild(ctx); err != nil {
					logger.Warn("initial index build failed", zap.Error(err))
				}
			}()
		}
	}

	srv := server.NewServer(c.pipeline, c.handle, refresher, &cfg.Server, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	logger.Info("medibot server started",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("index", location),
		zap.String("model", c.pipeline.Model()),
		zap.Bool("index_loaded", c.handle.Loaded()))

	select {
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return 1
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	return 0
}

func (a *app) runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(argsReorder(args)); err != nil {
		return 1
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return 1
	}
	var location string
	switch fs.NArg() {
	case 0:
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(a.stderr, "Failed to load config: %v\n", err)
			return 1
		}
		location = cfg.Storage.IndexPath
	case 1:
		location = fs.Arg(0)
	default:
		fmt.Fprintln(a.stderr, "Usage: medibot status [flags] [index-location]")
		return 1
	}

	// Status reports whatever was built; compatibility is checked when querying.
	b, err := bundle.Open(location, vector.Expect{})
	if err != nil {
		fmt.Fprintf(a.stderr, "Failed to open index: %v\n", err)
		return 1
	}
	defer b.Close()
	status, err := b.Status(context.Background())
	if err != nil {
		fmt.Fprintf(a.stderr, "Status failed: %v\n", err)
		return 1
	}
	if err := cli.WriteStatus(a.stdout, status, format); err != nil {
		fmt.Fprintf(a.stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) printUsage() {
	fmt.Fprintln(a.stdout, `medibot - Answers questions from your medical reference documents

Usage:
  medibot build-index [flags] <document-source> <index-location>   Build an index from documents
  medibot ask [flags] <index-location> <question...>                Answer one question
  medibot chat [flags] <index-location>                             Start an interactive session
  medibot server [flags]                                            Start the HTTP server
  medibot status [flags] [index-location]                           Show index status
  medibot version                                                   Show version
  medibot help                                                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/medibot/config.yaml, or ./config.yaml when present)
  --debug            Enable debug logging

Build Flags:
  --output string    Output format: text or json (default: text)

Ask Flags:
  --output string    Output format: text or json (default: text)
  --session string   Continue a session by id
  --sources          List the retrieved passages after the answer
  --stream           Print the answer as it is generated

Chat Flags:
  --sources          List the retrieved passages after each answer

Status Flags:
  --output string    Output format: text or json (default: text)

Exit status:
  ask exits 1 when the question could not be answered (invalid input, model or index unavailable).
  "Not in the documents" answers exit 0.

Examples:
  medibot build-index ./docs ./index
  medibot ask ./index what reduces fever
  medibot ask --sources --output json ./index "What is the dose of aspirin?"
  medibot chat ./index
  medibot status ./index`)
}
