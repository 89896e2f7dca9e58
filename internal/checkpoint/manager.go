// Package checkpoint implements the shadow-git checkpoint engine: every
// turn and every tool use that touches the workspace gets a tagged commit
// in a bare git repository kept alongside the workspace, so a session can
// be restored (hard or soft) to any prior point, or diffed between two
// points, without touching the user's own git history.
package checkpoint

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nexuscli/nexuscli/pkg/models"
)

const gitDirName = ".nexuscli-shadow-git"

// Manager owns one bare shadow git repository per conversation (keyed by
// session ID), used purely for checkpoint bookkeeping. Tags are bare turn
// numbers ("0", "1", "2", ...) for turn-level checkpoints, or
// "<turn>.<tool_idx>" (e.g. "1.1", "1.2") for the per-tool-use checkpoints
// taken mid-turn. Tags never carry a session prefix: each session's
// checkpoints live in their own repository, so the tag namespace stays the
// bare scheme a restore/diff/undo command can address directly.
type Manager struct {
	mu        sync.Mutex
	workspace string
	rootDir   string
	logger    *slog.Logger
	sessions  map[string]*sessionState
}

// sessionState tracks one conversation's shadow repo location and its
// current turn/tool-index counters, so repeated Create calls within the
// same turn number produce successive "<turn>.<i>" sub-tags.
type sessionState struct {
	gitDir   string
	turn     int
	toolIdx  int
	tagCount int
}

// NewManager creates a Manager rooted at workspace. Each session's shadow
// repository is created lazily, under <workspace>/.nexuscli-shadow-git/<session>,
// on its first Create call.
func NewManager(ctx context.Context, workspace string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		workspace: workspace,
		rootDir:   filepath.Join(workspace, gitDirName),
		logger:    logger.With("component", "checkpoint"),
		sessions:  make(map[string]*sessionState),
	}, nil
}

// sessionDirName maps a session ID to a filesystem-safe directory name.
func sessionDirName(sessionID string) string {
	var b strings.Builder
	for _, r := range sessionID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

// state returns the shadow-repo state for sessionID, initializing (or
// reattaching to) its repository on first use.
func (m *Manager) state(ctx context.Context, sessionID string) (*sessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.sessions[sessionID]; ok {
		return st, nil
	}

	gitDir := filepath.Join(m.rootDir, sessionDirName(sessionID))
	st := &sessionState{gitDir: gitDir, turn: -1}

	if _, err := os.Stat(gitDir); os.IsNotExist(err) {
		if err := m.initRepo(ctx, gitDir); err != nil {
			return nil, fmt.Errorf("init shadow git repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat shadow git dir: %w", err)
	} else {
		turn, toolIdx, count, err := m.reindex(ctx, gitDir)
		if err != nil {
			return nil, fmt.Errorf("reindex checkpoint tags: %w", err)
		}
		st.turn = turn
		st.toolIdx = toolIdx
		st.tagCount = count
	}

	m.sessions[sessionID] = st
	return st, nil
}

func (m *Manager) initRepo(ctx context.Context, gitDir string) error {
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		return err
	}
	if _, err := m.run(ctx, gitDir, "init", "--quiet"); err != nil {
		return err
	}
	if _, err := m.run(ctx, gitDir, "config", "user.email", "nexuscli@localhost"); err != nil {
		return err
	}
	if _, err := m.run(ctx, gitDir, "config", "user.name", "nexuscli"); err != nil {
		return err
	}
	return nil
}

// reindex re-derives a reattached session's turn/tool-index/tag-count
// counters from the tags already present in its shadow repo, so a
// restarted process continues the sequence rather than colliding with it.
func (m *Manager) reindex(ctx context.Context, gitDir string) (turn, toolIdx, count int, err error) {
	out, err := m.run(ctx, gitDir, "tag", "--list")
	if err != nil {
		return 0, 0, 0, err
	}

	maxTurn := -1
	maxToolIdx := 0
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		count++
		parts := strings.SplitN(line, ".", 2)
		t, convErr := strconv.Atoi(parts[0])
		if convErr != nil {
			continue
		}
		if t > maxTurn {
			maxTurn = t
			maxToolIdx = 0
		}
		if t == maxTurn && len(parts) == 2 {
			if ti, convErr := strconv.Atoi(parts[1]); convErr == nil && ti > maxToolIdx {
				maxToolIdx = ti
			}
		}
	}
	if maxTurn < 0 {
		maxTurn = -1
	}
	return maxTurn, maxToolIdx, count, nil
}

// Create snapshots the current workspace tree and history into a new
// tagged commit in sessionID's shadow repo. isTurn distinguishes a
// per-turn checkpoint (tag "<turnIndex>") from a per-tool-use checkpoint
// taken mid-turn (tag "<turnIndex>.<i>", i starting at 1 for each turn).
// A turn checkpoint whose tag already exists (the turn is being re-entered,
// e.g. after /undo) retargets that tag to the new commit rather than
// erroring, keeping the tag namespace free of duplicates.
func (m *Manager) Create(ctx context.Context, sessionID string, isTurn bool, toolName, toolCallID, description string, history []models.HistoryEntry, turnIndex int) (*models.Checkpoint, error) {
	st, err := m.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if turnIndex != st.turn {
		st.turn = turnIndex
		st.toolIdx = 0
	}
	var tag string
	if isTurn {
		tag = strconv.Itoa(turnIndex)
	} else {
		st.toolIdx++
		tag = fmt.Sprintf("%d.%d", turnIndex, st.toolIdx)
	}
	st.tagCount++
	tagIndex := st.tagCount
	gitDir := st.gitDir
	m.mu.Unlock()

	if _, err := m.run(ctx, gitDir, "add", "-A"); err != nil {
		return nil, fmt.Errorf("stage workspace: %w", err)
	}

	msg := truncateMessage(description)
	if msg == "" {
		msg = tag
	}
	// --allow-empty: a checkpoint may be requested when nothing changed on
	// disk (e.g. a turn that only produced text, or a read-only tool use).
	if _, err := m.run(ctx, gitDir, "commit", "--quiet", "--allow-empty", "--no-verify", "-m", msg); err != nil {
		return nil, fmt.Errorf("commit checkpoint: %w", err)
	}

	if isTurn {
		// Re-entering a turn (e.g. /undo back to turn N, then acting again)
		// replaces that turn's tag rather than erroring on a duplicate.
		_, _ = m.run(ctx, gitDir, "tag", "-d", tag)
	}
	if _, err := m.run(ctx, gitDir, "tag", tag); err != nil {
		return nil, fmt.Errorf("tag checkpoint: %w", err)
	}

	cp := &models.Checkpoint{
		Tag:             tag,
		SessionID:       sessionID,
		Timestamp:       time.Now(),
		Description:     description,
		IsTurn:          isTurn,
		ToolName:        toolName,
		ToolCallID:      toolCallID,
		HistorySnapshot: history,
		TurnIndex:       turnIndex,
		TagIndex:        tagIndex,
	}
	m.logger.Debug("created checkpoint", "session_id", sessionID, "tag", tag, "is_turn", isTurn)
	return cp, nil
}

// PreviousTag returns the tag that immediately precedes tag in the
// checkpoint sequence: for a tool sub-tag "<turn>.<i>" with i > 1, that is
// "<turn>.<i-1>"; for "<turn>.1" or a bare turn tag, that is the bare
// previous turn, floored at "0".
func PreviousTag(tag string) (string, error) {
	parts := strings.SplitN(tag, ".", 2)
	turn, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid checkpoint tag %q: %w", tag, err)
	}

	if len(parts) == 2 {
		toolIdx, err := strconv.Atoi(parts[1])
		if err != nil {
			return "", fmt.Errorf("invalid checkpoint tag %q: %w", tag, err)
		}
		if toolIdx > 1 {
			return fmt.Sprintf("%d.%d", turn, toolIdx-1), nil
		}
		return strconv.Itoa(turn), nil
	}

	if turn <= 0 {
		return "0", nil
	}
	return strconv.Itoa(turn - 1), nil
}

func truncateMessage(s string) string {
	const maxLen = 60
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// RestoreHard resets sessionID's workspace tree to the state at tag,
// discarding any changes made since. This is destructive to uncommitted
// work outside the shadow history and should only be invoked on explicit
// user request.
func (m *Manager) RestoreHard(ctx context.Context, sessionID, tag string) error {
	st, err := m.state(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := m.run(ctx, st.gitDir, "reset", "--hard", tag); err != nil {
		return fmt.Errorf("hard restore to %s: %w", tag, err)
	}
	if _, err := m.run(ctx, st.gitDir, "clean", "-fd"); err != nil {
		return fmt.Errorf("clean after hard restore: %w", err)
	}
	return nil
}

// RestoreSoft checks out only the paths tag actually touched, leaving
// files tag never tracked untouched on disk, mirroring a partial restore
// of just the tree state associated with that checkpoint.
func (m *Manager) RestoreSoft(ctx context.Context, sessionID, tag string) error {
	st, err := m.state(ctx, sessionID)
	if err != nil {
		return err
	}
	out, err := m.run(ctx, st.gitDir, "ls-tree", "-r", "--name-only", tag)
	if err != nil {
		return fmt.Errorf("list paths at %s: %w", tag, err)
	}
	if strings.TrimSpace(out) == "" {
		return nil
	}
	if _, err := m.run(ctx, st.gitDir, "checkout", tag, "--", "."); err != nil {
		return fmt.Errorf("soft restore to %s: %w", tag, err)
	}
	return nil
}

// Diff returns the unified diff between two checkpoint tags in sessionID's
// shadow repo.
func (m *Manager) Diff(ctx context.Context, sessionID, fromTag, toTag string) (string, error) {
	st, err := m.state(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return m.run(ctx, st.gitDir, "diff", fromTag, toTag)
}

// List returns all checkpoint tags for sessionID, oldest first.
func (m *Manager) List(ctx context.Context, sessionID string) ([]string, error) {
	st, err := m.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out, err := m.run(ctx, st.gitDir, "tag", "--list")
	if err != nil {
		return nil, err
	}
	var tags []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			tags = append(tags, line)
		}
	}
	sort.Slice(tags, func(i, j int) bool { return tagLess(tags[i], tags[j]) })
	return tags, nil
}

// tagLess orders tags chronologically: by turn number first, then (for two
// sub-tags of the same turn) by tool index, with a bare turn tag sorting
// before any of that turn's sub-tags.
func tagLess(a, b string) bool {
	aTurn, aTool, aOK := splitTag(a)
	bTurn, bTool, bOK := splitTag(b)
	if !aOK || !bOK {
		return a < b
	}
	if aTurn != bTurn {
		return aTurn < bTurn
	}
	return aTool < bTool
}

func splitTag(tag string) (turn, toolIdx int, ok bool) {
	parts := strings.SplitN(tag, ".", 2)
	turn, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return turn, 0, true
	}
	toolIdx, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return turn, toolIdx, true
}

func (m *Manager) run(ctx context.Context, gitDir string, args ...string) (string, error) {
	fullArgs := append([]string{"--git-dir=" + gitDir, "--work-tree=" + m.workspace}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	cmd.Dir = m.workspace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
