package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jason-c-dev/opencode-flow/internal/adapter/memory"
	"github.com/jason-c-dev/opencode-flow/internal/adapter/opencode"
	"github.com/jason-c-dev/opencode-flow/internal/adapter/tokenizer"
	"github.com/jason-c-dev/opencode-flow/internal/domain"
	"github.com/jason-c-dev/opencode-flow/internal/infra/config"
	"github.com/jason-c-dev/opencode-flow/internal/infra/logger"
	"github.com/jason-c-dev/opencode-flow/internal/infra/tracer"
	"github.com/jason-c-dev/opencode-flow/internal/usecase/engine"
	"github.com/jason-c-dev/opencode-flow/internal/usecase/eventbus"
	"github.com/jason-c-dev/opencode-flow/internal/usecase/registry"
	"github.com/jason-c-dev/opencode-flow/internal/usecase/schedule"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	cmd := "run"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "run":
		err = runDaemon(args)
	case "exec":
		err = runExec(args)
	case "agents":
		err = runAgents(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'flow --help' for usage.\n", cmd)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`flow - multi-agent orchestration over an OpenCode server

USAGE:
    flow [COMMAND] [FLAGS]

COMMANDS:
    run       Spawn configured agents and run schedules until interrupted (default)
    exec      Spawn configured agents, run one task, print results, exit
    agents    List the configured agents

FLAGS:
    -h, --help       Show this help message
    --config PATH    Config file path (default: ./config.yaml)

EXEC FLAGS:
    --task TEXT      Task description (required)
    --agents LIST    Comma-separated agent names (default: all configured)
    --mode MODE      parallel, sequential, or hierarchical (default: parallel)
    --timeout DUR    Per-execution timeout, e.g. 2m

EXAMPLES:
    flow run --config ./config.yaml
    flow exec --task "summarize the repo" --agents researcher,writer --mode sequential`)
}

// app holds everything a command needs after wiring.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *registry.Registry
	engine   *engine.Engine
	bus      *eventbus.Bus
	stream   *opencode.EventStream
	cleanup  []func()
}

func (a *app) close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("config.yaml"); err == nil {
		return config.Load("config.yaml")
	}
	return config.Default(), nil
}

func buildApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}
	a.cleanup = append(a.cleanup, func() { closeLog() })

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.close()
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { shutdownTracer(context.Background()) })

	client := opencode.NewClient(cfg.Server, cfg.Retry, log)
	var gateway domain.Gateway = client
	if cfg.Breaker.Enabled {
		gateway = opencode.NewBreakerGateway(client, cfg.Breaker, log)
	}

	var store domain.MemoryStore
	switch cfg.Memory.Backend {
	case "sqlite":
		store, err = memory.NewSQLiteStore(cfg.Memory.Path)
	default:
		store, err = memory.NewFileStore(cfg.Memory.Dir, log)
	}
	if err != nil {
		a.close()
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	a.cleanup = append(a.cleanup, func() { store.Close() })

	a.bus = eventbus.New(log)
	a.cleanup = append(a.cleanup, a.bus.Close)
	store = memory.NewEventedStore(store, a.bus)

	a.registry = registry.New(gateway, a.bus, registry.Config{
		ProbeInterval:    cfg.Registry.ProbeInterval,
		FailureTolerance: cfg.Registry.FailureTolerance,
	}, log)
	a.cleanup = append(a.cleanup, func() { a.registry.TerminateAll(context.Background()) })

	var capper engine.TokenCapper
	if counter, err := tokenizer.New(cfg.Engine.TokenModel); err != nil {
		log.Warn("tokenizer unavailable, context capping disabled", "model", cfg.Engine.TokenModel, "error", err)
	} else {
		capper = counter
	}

	a.engine = engine.New(a.registry, gateway, store, a.bus, capper, engine.Config{
		DefaultTimeout: cfg.Engine.DefaultTimeout,
		ContextBudget:  cfg.Engine.ContextBudget,
	}, log)

	a.stream = opencode.NewEventStream(client, cfg.Server.ReconnectDelay, log)
	return a, nil
}

// spawnConfigured spawns every agent from the config.
func (a *app) spawnConfigured(ctx context.Context) error {
	for _, agentCfg := range a.cfg.Agents {
		if _, err := a.registry.Spawn(ctx, agentCfg); err != nil {
			return fmt.Errorf("spawn %q: %w", agentCfg.Name, err)
		}
	}
	return nil
}

// forwardRemoteEvents republishes the server's live feed on the local bus.
func (a *app) forwardRemoteEvents(ctx context.Context) {
	events, unsubscribe := a.stream.Subscribe()
	go a.stream.Run(ctx)
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				a.bus.Publish(ctx, domain.Event{
					Type:      domain.EventRemote,
					Timestamp: time.Now(),
					Payload:   payload,
				})
			}
		}
	}()
}

func runDaemon(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.spawnConfigured(ctx); err != nil {
		return err
	}
	a.forwardRemoteEvents(ctx)

	sched := schedule.New(a.engine, a.bus, a.logger)
	for _, sc := range a.cfg.Schedules {
		if err := sched.Add(schedule.Entry{Name: sc.Name, Schedule: sc.Schedule, Task: sc.Task}); err != nil {
			return err
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	a.logger.Info("flow running",
		"server", a.cfg.Server.BaseURL,
		"agents", a.registry.Count(),
		"schedules", len(a.cfg.Schedules))

	<-ctx.Done()
	a.logger.Info("shutting down")
	return nil
}

func runExec(args []string) error {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	task := fs.String("task", "", "task description")
	agents := fs.String("agents", "", "comma-separated agent names")
	mode := fs.String("mode", "parallel", "execution mode")
	timeout := fs.Duration("timeout", 0, "per-execution timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *task == "" {
		return fmt.Errorf("--task is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, *configPath)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.spawnConfigured(ctx); err != nil {
		return err
	}

	names := splitAgents(*agents)
	if len(names) == 0 {
		for _, agent := range a.registry.List() {
			names = append(names, agent.Name)
		}
	}

	results, err := a.engine.Execute(ctx, domain.TaskExecution{
		Task:    *task,
		Agents:  names,
		Mode:    domain.ExecutionMode(*mode),
		Timeout: *timeout,
	})
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

func runAgents(args []string) error {
	fs := flag.NewFlagSet("agents", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if len(cfg.Agents) == 0 {
		fmt.Println("no agents configured")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tMODEL\tPROVIDER\tTOOLS")
	for _, agent := range cfg.Agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			agent.Name, agent.Type, agent.Model, agent.Provider,
			strings.Join(agent.Tools, ","))
	}
	return w.Flush()
}

func splitAgents(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if name := strings.TrimSpace(p); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func printResults(results []domain.ExecutionResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AGENT\tSTATUS\tDURATION\tCOST\tTOKENS")
	for _, res := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t$%.4f\t%d/%d\n",
			res.Agent, res.Status, res.Duration.Round(time.Millisecond),
			res.Cost, res.Tokens.Input, res.Tokens.Output)
	}
	w.Flush()

	for _, res := range results {
		fmt.Println()
		if res.Status == domain.ResultFulfilled && res.Output != nil {
			fmt.Printf("--- %s ---\n%s\n", res.Agent, res.Output.Text)
		} else {
			fmt.Printf("--- %s (failed) ---\n%s\n", res.Agent, res.Error)
		}
	}
}
