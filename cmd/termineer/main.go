// Command termineer is the terminal front-end of the agent runtime: one
// agent per invocation, scripted or interactive, plus workflow execution.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/semtexzv/termineer-sub001/agent"
	"github.com/semtexzv/termineer-sub001/buffer"
	"github.com/semtexzv/termineer-sub001/config"
	"github.com/semtexzv/termineer-sub001/grammar"
	"github.com/semtexzv/termineer-sub001/llm"
	"github.com/semtexzv/termineer-sub001/mcp"
	"github.com/semtexzv/termineer-sub001/session"
	"github.com/semtexzv/termineer-sub001/tools"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type options struct {
	model          string
	kind           string
	noTools        bool
	thinkingBudget int
	minimalPrompt  bool
	resume         bool
	grammarName    string
	skipAuth       bool
	debug          bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := &options{}
	usage := false
	root := newRootCommand(opts, &usage)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCode(err, usage)
	}
	return exitOK
}

// exitCode classifies a failed Execute: bad flags, bad arg counts and
// unknown subcommands are usage errors.
func exitCode(err error, usage bool) int {
	if usage || strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitError
}

// usageArgs wraps a positional-args validator so its failures are counted
// as usage errors.
func usageArgs(usage *bool, check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			*usage = true
			return err
		}
		return nil
	}
}

func newRootCommand(opts *options, usage *bool) *cobra.Command {
	root := &cobra.Command{
		Use:           "termineer [QUERY]",
		Short:         "Run an LLM agent with tools in the current directory",
		Args:          usageArgs(usage, cobra.MaximumNArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runAgent(cmd.Context(), opts, query)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.model, "model", "", "model to use (provider inferred, or provider/model)")
	flags.StringVar(&opts.kind, "kind", "default", "system prompt template")
	flags.BoolVar(&opts.noTools, "no-tools", false, "disable tool execution")
	flags.IntVar(&opts.thinkingBudget, "thinking-budget", 0, "thinking token budget, 0 disables")
	flags.BoolVar(&opts.minimalPrompt, "minimal-prompt", false, "skip the prompt template")
	flags.BoolVar(&opts.resume, "resume", false, "resume the most recent session")
	flags.StringVar(&opts.grammarName, "grammar", "xml", "tool grammar (xml or markdown)")
	flags.BoolVar(&opts.skipAuth, "skip-auth", false, "skip credential checks at startup")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(workflowCommand(opts))
	root.AddCommand(&cobra.Command{
		Use:   "list-kinds",
		Short: "List the available system prompt templates",
		Args:  usageArgs(usage, cobra.NoArgs),
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range kindNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Configure API credentials",
		Args:  usageArgs(usage, cobra.NoArgs),
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "There is no login server; set the API key for your provider instead,")
			fmt.Fprintln(cmd.OutOrStdout(), "e.g. ANTHROPIC_API_KEY, OPENAI_API_KEY or GOOGLE_API_KEY, directly or")
			fmt.Fprintln(cmd.OutOrStdout(), "in a .env file next to your project.")
		},
	})

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		*usage = true
		return err
	})
	return root
}

// setup wires everything an agent run needs from flags, env and config.
type runtime struct {
	manager *agent.Manager
	agentID int64
	store   *session.Store
	mcps    *mcp.Registry
	workdir string
	model   string
	prompt  string
}

func setup(ctx context.Context, opts *options) (*runtime, error) {
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if opts.debug {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	workdir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(workdir)
	if err != nil {
		return nil, err
	}

	model := config.EnvModel(opts.model)
	backend, err := llm.New(ctx, model)
	if err != nil {
		return nil, err
	}
	gram := grammar.New(opts.grammarName)

	registry := mcp.NewRegistry(tools.BuiltinNames())
	for name, srv := range cfg.MCPServers {
		conn, err := mcp.Dial(ctx, name, srv.Command, srv.Args, srv.ServerEnv())
		if err != nil {
			log.Warn().Str("server", name).Err(err).Msg("mcp server unavailable")
			continue
		}
		if err := registry.Register(ctx, mcp.NewProvider(name, conn)); err != nil {
			log.Warn().Str("server", name).Err(err).Msg("mcp server rejected")
			conn.Close()
		}
	}

	executor := tools.NewExecutor(tools.ExecutorConfig{
		Workdir: workdir,
		Policy:  tools.Policy{Hidden: cfg.HiddenPaths, ReadOnly: cfg.ReadOnlyPaths},
		MCP:     registry,
	})

	base, ok := promptKinds[opts.kind]
	if !ok {
		return nil, fmt.Errorf("unknown prompt kind %q, try list-kinds", opts.kind)
	}
	prompt := ""
	if !opts.minimalPrompt {
		prompt = agent.BuildSystemPrompt(base, gram, executor, registry)
	}

	manager := agent.NewManager(ctx)
	agentCfg := agent.Config{
		Name:           "main",
		Backend:        backend,
		Grammar:        gram,
		Executor:       executor,
		SystemPrompt:   prompt,
		ThinkingBudget: config.EnvThinkingBudget(opts.thinkingBudget),
		MaxTokens:      llm.DefaultMaxTokens,
		Retry:          llm.DefaultRetryConfig(),
		ToolsDisabled:  opts.noTools || !config.EnvToolsEnabled(),
	}
	executor.SetSpawnTask(manager.TaskSpawner(agentCfg))

	id, err := manager.Create(agentCfg)
	if err != nil {
		return nil, err
	}
	a, err := manager.Agent(id)
	if err != nil {
		return nil, err
	}
	agent.WatchSignals(ctx, a.Coordinator())
	registry.SetBuffer(a.Buffer())

	store := session.NewStore(workdir)
	if opts.resume {
		sess, err := store.LoadLast()
		if err != nil {
			return nil, err
		}
		if err := manager.Send(id, agent.ReplaceConversation{Messages: sess.Conversation}); err != nil {
			return nil, err
		}
		if sess.SystemPrompt != "" {
			_ = manager.Send(id, agent.SetSystemPrompt{Prompt: sess.SystemPrompt})
		}
		log.Info().Str("session", sess.ID).Msg("session resumed")
	}

	return &runtime{
		manager: manager,
		agentID: id,
		store:   store,
		mcps:    registry,
		workdir: workdir,
		model:   model,
		prompt:  prompt,
	}, nil
}

func (r *runtime) shutdown() {
	r.manager.TerminateAll()
	if err := r.mcps.CloseAll(); err != nil {
		log.Debug().Err(err).Msg("mcp shutdown")
	}
}

// drainBuffer prints agent output that arrived since the last drain. Tool
// and system lines are prefixed so they read apart from the answer.
func (r *runtime) drainBuffer() {
	buf, err := r.manager.Buffer(r.agentID)
	if err != nil {
		return
	}
	for _, line := range buf.Drain() {
		switch line.Kind {
		case buffer.KindError:
			fmt.Fprintln(os.Stderr, line.Content)
		case buffer.KindTool:
			fmt.Printf("  [%s] %s\n", line.Tool, line.Content)
		case buffer.KindSystem:
			fmt.Printf("  * %s\n", line.Content)
		case buffer.KindDebug:
			if log.Logger.GetLevel() <= zerolog.DebugLevel {
				fmt.Fprintf(os.Stderr, "  # %s\n", line.Content)
			}
		default:
			fmt.Println(line.Content)
		}
	}
}

func (r *runtime) saveSession() {
	a, err := r.manager.Agent(r.agentID)
	if err != nil {
		return
	}
	sess := session.New("", r.model, a.SystemPrompt(), a.Conversation())
	if err := r.store.Save(sess); err != nil {
		log.Warn().Err(err).Msg("session save failed")
	}
}

// runTurn sends one user message, streaming buffer output while the agent
// works.
func (r *runtime) runTurn(ctx context.Context, text string) error {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.drainBuffer()
			}
		}
	}()
	_, err := r.manager.SendAndAwait(ctx, r.agentID, text)
	close(done)
	r.drainBuffer()
	if err != nil {
		return err
	}
	r.saveSession()
	return nil
}

func runAgent(ctx context.Context, opts *options, query string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	rt, err := setup(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.shutdown()

	if query != "" {
		return rt.runTurn(ctx, query)
	}
	return rt.interactive(ctx)
}

// interactive reads user lines from stdin until EOF or /quit.
func (r *runtime) interactive(ctx context.Context) error {
	fmt.Printf("termineer (%s) in %s, /quit to exit\n", r.model, r.workdir)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/reset":
			if err := r.manager.Send(r.agentID, agent.ResetConversation{}); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			}
			continue
		case strings.HasPrefix(line, "/model "):
			model := strings.TrimSpace(strings.TrimPrefix(line, "/model "))
			if err := r.manager.Send(r.agentID, agent.SetModel{Model: model}); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
			} else {
				r.model = model
			}
			continue
		}
		if err := r.runTurn(ctx, line); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}
