// Command taskrelay is the interactive task agent: it connects a model
// channel to the task backend's tools and relays tool calls between them.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/taskrelay/taskrelay/internal/config"
	"github.com/taskrelay/taskrelay/internal/dispatch"
	"github.com/taskrelay/taskrelay/internal/mcphost"
	"github.com/taskrelay/taskrelay/internal/observe"
	"github.com/taskrelay/taskrelay/internal/orchestrator"
	"github.com/taskrelay/taskrelay/internal/registry"
	"github.com/taskrelay/taskrelay/pkg/provider/llm"
	anyllmchan "github.com/taskrelay/taskrelay/pkg/provider/llm/anyllm"
	ollamachan "github.com/taskrelay/taskrelay/pkg/provider/llm/ollama"
	openaichan "github.com/taskrelay/taskrelay/pkg/provider/llm/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "taskrelay: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "taskrelay: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("taskrelay starting",
		"version", version,
		"config", *configPath,
		"model", cfg.Model.Name,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "taskrelay",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Model channel ─────────────────────────────────────────────────────────
	channels := config.NewRegistry()
	registerBuiltinChannels(channels)

	channel, err := channels.CreateChannel(cfg.Model)
	if err != nil {
		slog.Error("failed to create model channel", "name", cfg.Model.Name, "err", err)
		return 1
	}
	slog.Info("model channel created", "name", cfg.Model.Name, "model", cfg.Model.Model)

	// ── Tool registry ─────────────────────────────────────────────────────────
	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		slog.Error("failed to build tool registry", "err", err)
		return 1
	}

	// ── MCP servers ───────────────────────────────────────────────────────────
	host := mcphost.New()
	defer func() {
		if err := host.Close(); err != nil {
			slog.Warn("mcp host close error", "err", err)
		}
	}()

	for _, sc := range cfg.MCP.Servers {
		tools, err := host.RegisterServer(ctx, sc)
		if err != nil {
			slog.Error("failed to register MCP server", "server", sc.Name, "err", err)
			return 1
		}
		for _, t := range tools {
			if err := reg.Register(t); err != nil {
				slog.Error("failed to register MCP tool", "server", sc.Name, "tool", t.Name, "err", err)
				return 1
			}
		}
		slog.Info("mcp server connected", "server", sc.Name, "tools", len(tools))
	}

	if reg.Len() == 0 {
		slog.Warn("no tools loaded, the agent will answer without tool access")
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	dispatcher := dispatch.New(reg, dispatch.WithMCP(host))
	orch := orchestrator.New(channel, reg, dispatcher)
	sess := orchestrator.NewSession(cfg.Agent.SystemPrompt)

	warmUp(ctx, reg)
	printStartupSummary(cfg, reg)

	return repl(ctx, orch, sess)
}

// repl reads user turns from stdin until EOF, an exit command, or signal.
func repl(ctx context.Context, orch *orchestrator.Orchestrator, sess *orchestrator.Session) int {
	fmt.Println("Type a request, or 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			break
		}

		reply, err := orch.Turn(ctx, sess, input)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("turn failed", "err", err)
			fmt.Println("Agent: sorry, that request failed. Try again.")
			continue
		}
		fmt.Println("Agent:", reply)
	}

	if err := scanner.Err(); err != nil {
		slog.Error("stdin read error", "err", err)
		return 1
	}
	fmt.Println("Goodbye.")
	return 0
}

// buildRegistry loads the tool manifest, when one is configured, and builds
// the registry from it. Without a manifest the registry starts empty and is
// populated from MCP servers only.
func buildRegistry(_ context.Context, cfg *config.Config) (*registry.Registry, error) {
	if cfg.Agent.ManifestPath == "" {
		return registry.Build(&registry.Manifest{})
	}

	m, err := registry.LoadManifest(cfg.Agent.ManifestPath)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Build(m)
	if err != nil {
		return nil, err
	}
	slog.Info("tool manifest loaded", "path", cfg.Agent.ManifestPath, "tools", reg.Len())
	return reg, nil
}

// warmUp probes the tool backend's health endpoints before the first turn so
// a dead backend shows up in the startup log rather than mid-conversation.
// Failures are warnings only; the backend may come up later.
func warmUp(ctx context.Context, reg *registry.Registry) {
	if reg.BaseURL() == "" || reg.Len() == 0 {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{}
	g, probeCtx := errgroup.WithContext(probeCtx)

	for _, path := range []string{"/health", "/readyz"} {
		url := reg.BaseURL() + path
		g.Go(func() error {
			req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("%s: %w", url, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("%s: status %d", url, resp.StatusCode)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("task backend probe failed", "err", err)
		return
	}
	slog.Info("task backend reachable", "base_url", reg.BaseURL())
}

// ── Channel wiring ────────────────────────────────────────────────────────────

// registerBuiltinChannels wires every built-in model channel factory into
// reg. "ollama" and "openai" use the native channel implementations; the
// remaining providers go through any-llm.
func registerBuiltinChannels(reg *config.Registry) {
	reg.RegisterChannel("ollama", func(entry config.ProviderEntry) (llm.Channel, error) {
		return ollamachan.New(entry.BaseURL, entry.Model)
	})

	reg.RegisterChannel("openai", func(entry config.ProviderEntry) (llm.Channel, error) {
		var opts []openaichan.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaichan.WithBaseURL(entry.BaseURL))
		}
		return openaichan.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral",
		"groq", "llamacpp", "llamafile",
	} {
		reg.RegisterChannel(providerName, func(entry config.ProviderEntry) (llm.Channel, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllmchan.New(providerName, entry.Model, opts...)
		})
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, reg *registry.Registry) {
	fmt.Println("Loaded tools:", strings.Join(reg.Names(), ", "))
	if reg.BaseURL() != "" {
		fmt.Println("Using task backend at:", reg.BaseURL())
	}
	fmt.Println("Model:", cfg.Model.Name+"/"+cfg.Model.Model)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
