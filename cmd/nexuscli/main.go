// Package main provides the CLI entry point for nexuscli, an interactive
// agentic coding assistant.
//
// nexuscli drives a single-session turn loop against an LLM provider,
// dispatching tool calls (file read/write/edit, shell exec, sub-agent
// delegation) under an allow/deny policy, checkpointing workspace state
// via a shadow git repository after each turn.
//
// # Basic Usage
//
// Start an interactive session in the current directory:
//
//	nexuscli chat
//
// Run a single non-interactive turn (used internally for sub-agent
// delegation, but usable directly too):
//
//	nexuscli --agent <name> "<task>" [--allow-tool X] [--deny-tool Y]
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - NEXUSCLI_WORKSPACE: workspace root (default: current directory)
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nexuscli/nexuscli/internal/agent"
	"github.com/nexuscli/nexuscli/internal/agent/providers"
	"github.com/nexuscli/nexuscli/internal/checkpoint"
	"github.com/nexuscli/nexuscli/internal/config"
	"github.com/nexuscli/nexuscli/internal/hooks"
	"github.com/nexuscli/nexuscli/internal/jobs"
	"github.com/nexuscli/nexuscli/internal/mcp"
	"github.com/nexuscli/nexuscli/internal/memory"
	"github.com/nexuscli/nexuscli/internal/sessions"
	"github.com/nexuscli/nexuscli/internal/subagent"
	"github.com/nexuscli/nexuscli/internal/tools/awscall"
	"github.com/nexuscli/nexuscli/internal/tools/command"
	"github.com/nexuscli/nexuscli/internal/tools/exec"
	"github.com/nexuscli/nexuscli/internal/tools/facts"
	"github.com/nexuscli/nexuscli/internal/tools/files"
	jobstool "github.com/nexuscli/nexuscli/internal/tools/jobs"
	"github.com/nexuscli/nexuscli/internal/tools/knowledge"
	"github.com/nexuscli/nexuscli/internal/tools/memorysearch"
	"github.com/nexuscli/nexuscli/internal/tools/sandbox"
	subagenttool "github.com/nexuscli/nexuscli/internal/tools/subagent"
	"github.com/nexuscli/nexuscli/internal/tools/vectormemory"
	"github.com/nexuscli/nexuscli/internal/tools/websearch"
	"github.com/nexuscli/nexuscli/pkg/models"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// agentFlags holds the --agent re-entrancy flags, shared between the root
// command (for sub-agent child processes) and any subcommand that wants
// the same tool-policy surface.
type agentFlags struct {
	agentName    string
	workspace    string
	allowedTools []string
	deniedTools  []string
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	var flags agentFlags

	rootCmd := &cobra.Command{
		Use:   "nexuscli",
		Short: "nexuscli - an interactive agentic coding assistant",
		Long: `nexuscli drives a turn loop against an LLM provider, executing tool
calls (file edits, shell commands, sub-agent delegation) in a workspace,
checkpointing state via a shadow git repository after each turn.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
		// Running the bare binary with --agent is the sub-agent re-entrancy
		// path: internal/subagent.Supervisor.Spawn execs this binary with
		// `--agent <name> <task> [--allow-tool X]... [--deny-tool Y]...`.
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.agentName == "" {
				return cmd.Help()
			}
			if len(args) != 1 {
				return fmt.Errorf("--agent requires exactly one task argument")
			}
			return runAgentTurn(cmd.Context(), flags, args[0])
		},
	}
	rootCmd.PersistentFlags().StringVar(&flags.workspace, "workspace", "", "Workspace root (default: current directory)")
	rootCmd.Flags().StringVar(&flags.agentName, "agent", "", "Run a single non-interactive turn as the named sub-agent")
	rootCmd.Flags().StringArrayVar(&flags.allowedTools, "allow-tool", nil, "Restrict tool use to this name (repeatable)")
	rootCmd.Flags().StringArrayVar(&flags.deniedTools, "deny-tool", nil, "Forbid this tool name (repeatable)")

	rootCmd.AddCommand(buildChatCmd())

	return rootCmd
}

// buildChatCmd builds the interactive REPL subcommand.
func buildChatCmd() *cobra.Command {
	var flags agentFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session in the current workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringArrayVar(&flags.allowedTools, "allow-tool", nil, "Restrict tool use to this name (repeatable)")
	cmd.Flags().StringArrayVar(&flags.deniedTools, "deny-tool", nil, "Forbid this tool name (repeatable)")
	return cmd
}

// resolveWorkspace returns the workspace root, defaulting to the current
// directory.
func resolveWorkspace(workspace string) (string, error) {
	if workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return wd, nil
	}
	abs, err := filepath.Abs(workspace)
	if err != nil {
		return "", fmt.Errorf("resolve workspace path: %w", err)
	}
	return abs, nil
}

// loadConfig reads <workspace>/.nexuscli/config.yaml if present, otherwise
// returns zero-value configuration (every optional subsystem disabled).
func loadConfig(workspace string) (*config.Config, error) {
	path := filepath.Join(workspace, ".nexuscli", "config.yaml")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &config.Config{}, nil
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	return config.Load(path)
}

// buildRuntime wires an agent.Runtime against an Anthropic provider, a
// SQLite-backed session store under <workspace>/.nexuscli/, the standard
// tool set filtered by the allow/deny lists, and the optional MCP server,
// hooks, vector memory, and checkpoint subsystems described by the
// workspace's config file.
func buildRuntime(ctx context.Context, workspace string, allowed, denied []string) (*agent.Runtime, sessions.Store, func(), error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, nil, nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	provider, err := providers.NewAnthropicProvider(providers.AnthropicConfig{APIKey: apiKey})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create anthropic provider: %w", err)
	}

	cfg, err := loadConfig(workspace)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	stateDir := filepath.Join(workspace, ".nexuscli")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("create state dir: %w", err)
	}
	store, err := sessions.OpenSQLStore(ctx, filepath.Join(stateDir, "sessions.db"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open session store: %w", err)
	}

	runtime := agent.NewRuntimeWithOptions(provider, store, agent.DefaultRuntimeOptions())

	policy := newToolPolicy(allowed, denied)
	registerTools(ctx, runtime, workspace, policy, cfg)

	cleanups := []func(){func() { store.Close() }}

	var mcpManager *mcp.Manager
	if cfg.MCP.Enabled {
		mcpManager = mcp.NewManager(&cfg.MCP, slog.Default())
		if err := mcpManager.Start(ctx); err != nil {
			slog.Warn("mcp manager failed to start", "error", err)
		}
		registered := mcp.RegisterTools(runtime, mcpManager)
		slog.Info("registered mcp tools", "count", len(registered))
		cleanups = append(cleanups, func() { mcpManager.Stop() })
	}

	if len(cfg.Hooks) > 0 {
		executor := hooks.NewExecutor(slog.Default(), 256)
		runtime.SetHooks(executor, cfg.Hooks)
	}

	checkpoints, err := checkpoint.NewManager(ctx, workspace, slog.Default())
	if err != nil {
		slog.Warn("checkpoint manager unavailable", "error", err)
	} else {
		runtime.SetCheckpointManager(checkpoints)
	}

	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}
	return runtime, store, cleanup, nil
}

// toolPolicy is a minimal allow/deny filter applied at registration time:
// an empty allow list permits everything not explicitly denied.
type toolPolicy struct {
	allowed map[string]bool
	denied  map[string]bool
}

func newToolPolicy(allowed, denied []string) toolPolicy {
	p := toolPolicy{allowed: map[string]bool{}, denied: map[string]bool{}}
	for _, t := range allowed {
		p.allowed[t] = true
	}
	for _, t := range denied {
		p.denied[t] = true
	}
	return p
}

func (p toolPolicy) permits(name string) bool {
	if p.denied[name] {
		return false
	}
	if len(p.allowed) == 0 {
		return true
	}
	return p.allowed[name]
}

// registerTools wires the file, exec, sub-agent, knowledge, internal
// command, and (when the workspace config enables it) AWS tool families
// into the runtime, skipping any tool the policy excludes.
func registerTools(ctx context.Context, runtime *agent.Runtime, workspace string, policy toolPolicy, cfg *config.Config) {
	filesCfg := files.Config{Workspace: workspace, MaxReadBytes: 1 << 20}
	register(runtime, policy, files.NewReadTool(filesCfg))
	register(runtime, policy, files.NewWriteTool(filesCfg))
	register(runtime, policy, files.NewEditTool(filesCfg))
	register(runtime, policy, files.NewApplyPatchTool(filesCfg))
	register(runtime, policy, files.NewRemoveTool(filesCfg))
	register(runtime, policy, files.NewRenameTool(filesCfg))

	execManager := exec.NewManager(workspace)
	register(runtime, policy, exec.NewExecTool("exec", execManager))
	register(runtime, policy, exec.NewProcessTool(execManager))

	self, err := os.Executable()
	if err != nil {
		self = ""
	}
	subManager, err := subagenttool.NewManager(workspace, self, 5)
	if err == nil {
		register(runtime, policy, subagenttool.NewSpawnTool(subManager))
		register(runtime, policy, subagenttool.NewStatusTool(subManager))
		register(runtime, policy, subagenttool.NewCancelTool(subManager))
	} else {
		slog.Warn("sub-agent tools unavailable", "error", err)
	}

	register(runtime, policy, command.NewTool(runtime))

	var memStore *memory.Manager
	if cfg != nil {
		memStore, err = memory.NewManager(&cfg.VectorMemory)
		if err != nil {
			slog.Warn("vector memory unavailable for knowledge tool", "error", err)
			memStore = nil
		}
	}
	if memStore != nil {
		register(runtime, policy, knowledge.NewTool(memStore))
		register(runtime, policy, vectormemory.NewSearchTool(memStore, &cfg.VectorMemory))
		register(runtime, policy, vectormemory.NewWriteTool(memStore, &cfg.VectorMemory))
	} else {
		register(runtime, policy, knowledge.NewTool(nil))
	}

	jobStore := jobs.NewMemoryStore()
	register(runtime, policy, jobstool.NewStatusTool(jobStore))
	register(runtime, policy, jobstool.NewCancelTool(jobStore))
	register(runtime, policy, jobstool.NewListTool(jobStore))

	if cfg != nil && cfg.Tools.FactExtract.Enabled {
		register(runtime, policy, facts.NewExtractTool(cfg.Tools.FactExtract.MaxFacts))
	}

	if cfg != nil && cfg.Tools.WebSearch.Enabled {
		register(runtime, policy, websearch.NewWebSearchTool(&websearch.Config{
			SearXNGURL:  cfg.Tools.WebSearch.URL,
			BraveAPIKey: cfg.Tools.WebSearch.BraveAPIKey,
		}))
	}
	if cfg != nil && cfg.Tools.WebFetch.Enabled {
		register(runtime, policy, websearch.NewWebFetchTool(&websearch.FetchConfig{MaxChars: cfg.Tools.WebFetch.MaxChars}))
	}

	if cfg != nil && cfg.Tools.MemorySearch.Enabled {
		register(runtime, policy, memorysearch.NewMemorySearchTool(&memorysearch.Config{
			Directory:     cfg.Tools.MemorySearch.Directory,
			MemoryFile:    cfg.Tools.MemorySearch.MemoryFile,
			WorkspacePath: workspace,
			MaxResults:    cfg.Tools.MemorySearch.MaxResults,
			MaxSnippetLen: cfg.Tools.MemorySearch.MaxSnippetLen,
			Mode:          cfg.Tools.MemorySearch.Mode,
			Embeddings: memorysearch.EmbeddingsConfig{
				Provider: cfg.Tools.MemorySearch.Embeddings.Provider,
				APIKey:   cfg.Tools.MemorySearch.Embeddings.APIKey,
				BaseURL:  cfg.Tools.MemorySearch.Embeddings.BaseURL,
				Model:    cfg.Tools.MemorySearch.Embeddings.Model,
				CacheDir: cfg.Tools.MemorySearch.Embeddings.CacheDir,
				CacheTTL: cfg.Tools.MemorySearch.Embeddings.CacheTTL,
				Timeout:  cfg.Tools.MemorySearch.Embeddings.Timeout,
			},
		}))
		register(runtime, policy, memorysearch.NewMemoryGetTool(&memorysearch.Config{
			Directory:     cfg.Tools.MemorySearch.Directory,
			MemoryFile:    cfg.Tools.MemorySearch.MemoryFile,
			WorkspacePath: workspace,
			MaxSnippetLen: cfg.Tools.MemorySearch.MaxSnippetLen,
		}))
	}

	if cfg != nil && cfg.Tools.AWS.Enabled {
		awsClient, err := awscall.NewClient(ctx, cfg.Tools.AWS.Region)
		if err != nil {
			slog.Warn("aws tool unavailable", "error", err)
		} else {
			register(runtime, policy, awscall.NewTool(awsClient, cfg.Tools.AWS.ReadOnly))
		}
	}

	if cfg != nil && cfg.Tools.Sandbox.Enabled {
		sb := cfg.Tools.Sandbox
		opts := []sandbox.Option{
			sandbox.WithBackend(sandbox.Backend(sb.Backend)),
			sandbox.WithWorkspaceRoot(workspace),
		}
		if sb.PoolSize > 0 {
			opts = append(opts, sandbox.WithPoolSize(sb.PoolSize))
		}
		if sb.MaxPoolSize > 0 {
			opts = append(opts, sandbox.WithMaxPoolSize(sb.MaxPoolSize))
		}
		if sb.Timeout > 0 {
			opts = append(opts, sandbox.WithDefaultTimeout(sb.Timeout))
		}
		if sb.NetworkEnabled {
			opts = append(opts, sandbox.WithNetworkEnabled(true))
		}
		sandboxExec, err := sandbox.NewExecutor(opts...)
		if err != nil {
			slog.Warn("sandbox executor unavailable", "error", err)
		} else {
			register(runtime, policy, sandboxExec)
		}
	}
}

func register(runtime *agent.Runtime, policy toolPolicy, tool agent.Tool) {
	if policy.permits(tool.Name()) {
		runtime.RegisterTool(tool)
	}
}

// runChat drives the interactive REPL: read a line from stdin, run one
// turn, stream the response, checkpoint the workspace, repeat.
func runChat(ctx context.Context, flags agentFlags) error {
	workspace, err := resolveWorkspace(flags.workspace)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, store, cleanup, err := buildRuntime(ctx, workspace, flags.allowedTools, flags.deniedTools)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := store.GetOrCreate(ctx, sessions.SessionKey("cli", models.ChannelCLI, "term"), "cli", models.ChannelCLI, "term")
	if err != nil {
		return fmt.Errorf("open session: %w", err)
	}

	fmt.Println("nexuscli ready. Type your message and press enter; Ctrl-D to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		msg := &models.Message{
			ID:        uuid.NewString(),
			SessionID: session.ID,
			Channel:   models.ChannelCLI,
			Role:      models.RoleUser,
			Direction: models.DirectionInbound,
			Content:   line,
		}

		chunks, err := runtime.Process(ctx, session, msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		for chunk := range chunks {
			if chunk.Error != nil {
				fmt.Fprintf(os.Stderr, "\nerror: %v\n", chunk.Error)
				continue
			}
			if chunk.Text != "" {
				fmt.Print(chunk.Text)
			}
		}
		fmt.Println()
	}
	return scanner.Err()
}

// runAgentTurn runs a single non-interactive turn as a named sub-agent,
// satisfying internal/subagent.Supervisor.Spawn's re-entrancy contract:
// it must exit 0 on success and non-zero on failure so the supervisor's
// cmd.Wait() can tell the two apart. It writes its own sidecar record's
// Result field before exiting, since the supervisor only observes the
// exit code and never parses the redirected stdout/stderr log back.
func runAgentTurn(ctx context.Context, flags agentFlags, task string) error {
	workspace, err := resolveWorkspace(flags.workspace)
	if err != nil {
		return err
	}

	runtime, store, cleanup, err := buildRuntime(ctx, workspace, flags.allowedTools, flags.deniedTools)
	if err != nil {
		return err
	}
	defer cleanup()

	session, err := store.GetOrCreate(ctx, sessions.SessionKey(flags.agentName, models.ChannelCLI, "subagent"), flags.agentName, models.ChannelCLI, "subagent")
	if err != nil {
		return fmt.Errorf("open sub-agent session: %w", err)
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Channel:   models.ChannelCLI,
		Role:      models.RoleUser,
		Direction: models.DirectionInbound,
		Content:   task,
	}

	chunks, err := runtime.Process(ctx, session, msg)
	if err != nil {
		recordSubagentResult(workspace, flags.agentName, "", err)
		return err
	}

	var out strings.Builder
	var runErr error
	for chunk := range chunks {
		if chunk.Error != nil {
			runErr = chunk.Error
			continue
		}
		out.WriteString(chunk.Text)
	}

	recordSubagentResult(workspace, flags.agentName, out.String(), runErr)
	if runErr != nil {
		return runErr
	}
	fmt.Print(out.String())
	return nil
}

// recordSubagentResult patches this process's own sidecar record with its
// final output before exiting. The parent supervisor's cmd.Wait() goroutine
// already sets Status/CompletedAt from the exit code; this only fills in
// Result/Error, which only the child itself ever observes.
func recordSubagentResult(workspace, name, result string, runErr error) {
	if name == "" {
		return
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	if err := subagent.PatchResult(workspace, name, result, errText); err != nil {
		slog.Warn("failed to record sub-agent result", "name", name, "error", err)
	}
}
