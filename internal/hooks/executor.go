package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nexuscli/nexuscli/pkg/models"
)

// builtinMatcher and serverMatcher are reserved matcher literals checked
// before glob matching, so a glob like "*" can never shadow them.
const (
	matcherNone    = ""
	matcherAny     = "*"
	matcherBuiltin = "@builtin"
	matcherServer  = "@server"
)

// Payload is the JSON document streamed to a hook command's stdin.
type Payload struct {
	Trigger   models.HookTrigger `json:"trigger"`
	SessionID string             `json:"session_id"`
	ToolName  string             `json:"tool_name,omitempty"`
	ToolInput json.RawMessage    `json:"tool_input,omitempty"`
	Text      string             `json:"text,omitempty"`
	Extra     map[string]any     `json:"extra,omitempty"`
}

// Result is the outcome of running one hook.
type Result struct {
	Hook       models.Hook `json:"-"`
	Stdout     string      `json:"stdout"`
	Stderr     string      `json:"stderr"`
	ExitCode   int         `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	Cached     bool        `json:"cached"`
	Err        error       `json:"-"`
}

// Executor runs shell-command hooks with per-trigger TTL caching and a
// per-hook timeout, mirroring the subprocess patterns used by the
// execute_bash tool but adapted for fire-and-collect hook semantics.
type Executor struct {
	logger *slog.Logger
	cache  *resultCache
}

// NewExecutor creates an Executor. maxCacheEntries bounds the TTL cache;
// pass 0 for the package default.
func NewExecutor(logger *slog.Logger, maxCacheEntries int) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxCacheEntries <= 0 {
		maxCacheEntries = 512
	}
	return &Executor{
		logger: logger.With("component", "hook-executor"),
		cache:  newResultCache(maxCacheEntries),
	}
}

// Matches reports whether hook applies to the given event, per the
// matcher semantics: None matches everything for its trigger, "*" matches
// everything, "@builtin"/"@server" are reserved literals checked before
// glob matching, anything else is a glob against the tool name (or, for
// non-tool triggers, the empty string).
func Matches(hook models.Hook, trigger models.HookTrigger, toolName string) bool {
	if hook.Trigger != trigger {
		return false
	}
	switch hook.Matcher {
	case matcherNone:
		return true
	case matcherBuiltin, matcherServer:
		return hook.Matcher == expectedReservedMatcher(toolName)
	case matcherAny:
		return true
	default:
		ok, err := filepath.Match(hook.Matcher, toolName)
		return err == nil && ok
	}
}

// expectedReservedMatcher is a hook for callers that register built-in or
// MCP-server-backed tools under the reserved matcher literals; tools named
// by the registry carry this association, not the hook itself, so this
// always resolves from the tool name's own declared origin.
func expectedReservedMatcher(toolName string) string {
	if strings.HasPrefix(toolName, "mcp:") {
		return matcherServer
	}
	return matcherBuiltin
}

// Run executes every hook that matches trigger/toolName concurrently,
// honoring each hook's own timeout and TTL cache.
func (e *Executor) Run(ctx context.Context, hooksList []models.Hook, trigger models.HookTrigger, payload Payload) []Result {
	var matched []models.Hook
	for _, h := range hooksList {
		if Matches(h, trigger, payload.ToolName) {
			matched = append(matched, h)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	results := make([]Result, len(matched))
	var wg sync.WaitGroup
	for i, h := range matched {
		wg.Add(1)
		go func(i int, h models.Hook) {
			defer wg.Done()
			results[i] = e.runOne(ctx, h, payload)
		}(i, h)
	}
	wg.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, hook models.Hook, payload Payload) Result {
	key := cacheKey(hook, payload)
	if hook.CacheTTLSeconds > 0 {
		if cached, ok := e.cache.get(key); ok {
			cached.Cached = true
			return cached
		}
	}

	timeout := time.Duration(hook.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Hook: hook, Err: fmt.Errorf("marshal hook payload: %w", err)}
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Command)
	cmd.Env = os.Environ()
	cmd.Stdin = bytes.NewReader(body)

	maxOutput := hook.MaxOutputSize
	if maxOutput <= 0 {
		maxOutput = 64 * 1024
	}
	stdout := &boundedBuffer{max: maxOutput}
	stderr := &boundedBuffer{max: maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	result := Result{
		Hook:     hook,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCodeOf(runErr),
		Duration: time.Since(start),
	}
	if runErr != nil {
		result.Err = runErr
	}

	if hook.CacheTTLSeconds > 0 && runErr == nil {
		e.cache.set(key, result, time.Duration(hook.CacheTTLSeconds)*time.Second)
	}
	return result
}

func cacheKey(hook models.Hook, payload Payload) string {
	return fmt.Sprintf("%s|%s|%s|%s", hook.Command, hook.Matcher, payload.ToolName, string(payload.ToolInput))
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// boundedBuffer caps total bytes written, silently dropping past the
// limit rather than erroring, matching tools/exec's output-truncation
// behavior.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && b.buf.Len() >= b.max {
		return len(p), nil
	}
	remaining := b.max - b.buf.Len()
	if b.max > 0 && len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
