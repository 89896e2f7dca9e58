// Package subagent supervises sub-agents as real OS processes: each
// delegate spawns a child `nexuscli` invocation directly via os/exec (no
// intermediate shell), records its PID to a JSON sidecar file under the
// workspace, and probes liveness with a signal-0 check on that PID. See
// DESIGN.md's Open Question decision on why this sidesteps a `pgrep -P`
// dependency entirely.
package subagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Status is a sub-agent's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Record is the on-disk (and in-memory) representation of a spawned
// sub-agent, persisted as JSON at <workdir>/.nexuscli/subagents/<name>.json.
type Record struct {
	Name        string    `json:"name"`
	ParentID    string    `json:"parent_id"`
	Task        string    `json:"task"`
	PID         int       `json:"pid"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
}

func sidecarDir(workDir string) string {
	return filepath.Join(workDir, ".nexuscli", "subagents")
}

func sidecarPath(workDir, name string) string {
	return filepath.Join(sidecarDir(workDir), name+".json")
}

// Supervisor spawns and tracks sub-agent OS processes rooted at a single
// workspace directory.
type Supervisor struct {
	mu         sync.Mutex
	workDir    string
	binaryPath string
	maxActive  int
	active     int
	logger     *slog.Logger
}

// NewSupervisor creates a Supervisor. binaryPath is the executable invoked
// for each delegate (normally the running binary's own path, so the child
// re-enters the CLI with `--agent <name> <task>`).
func NewSupervisor(workDir, binaryPath string, maxActive int, logger *slog.Logger) *Supervisor {
	if maxActive <= 0 {
		maxActive = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		workDir:    workDir,
		binaryPath: binaryPath,
		maxActive:  maxActive,
		logger:     logger.With("component", "subagent-supervisor"),
	}
}

// Spawn launches `<binaryPath> --agent <name> <task>` as a direct child
// process (no shell wrapper), persists its PID record, and returns
// immediately; the caller polls Status/Wait for completion.
func (s *Supervisor) Spawn(ctx context.Context, parentID, name, task string, allowedTools, deniedTools []string) (*Record, error) {
	s.mu.Lock()
	if s.active >= s.maxActive {
		s.mu.Unlock()
		return nil, fmt.Errorf("max active sub-agents (%d) reached", s.maxActive)
	}
	s.active++
	s.mu.Unlock()

	if name == "" {
		name = uuid.NewString()[:8]
	}

	if err := os.MkdirAll(sidecarDir(s.workDir), 0o755); err != nil {
		s.release()
		return nil, fmt.Errorf("create subagent sidecar dir: %w", err)
	}

	args := []string{"--agent", name, task}
	for _, t := range allowedTools {
		args = append(args, "--allow-tool", t)
	}
	for _, t := range deniedTools {
		args = append(args, "--deny-tool", t)
	}

	cmd := exec.Command(s.binaryPath, args...)
	cmd.Dir = s.workDir
	outFile, err := os.Create(sidecarPath(s.workDir, name) + ".log")
	if err != nil {
		s.release()
		return nil, fmt.Errorf("create subagent log: %w", err)
	}
	cmd.Stdout = outFile
	cmd.Stderr = outFile

	if err := cmd.Start(); err != nil {
		s.release()
		outFile.Close()
		return nil, fmt.Errorf("start subagent process: %w", err)
	}

	record := &Record{
		Name:      name,
		ParentID:  parentID,
		Task:      task,
		PID:       cmd.Process.Pid,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	if err := s.save(record); err != nil {
		return nil, fmt.Errorf("persist subagent record: %w", err)
	}

	go func() {
		defer s.release()
		defer outFile.Close()
		err := cmd.Wait()

		// Re-read the record instead of reusing the in-memory one: the
		// child process may have already patched its own Result/Error via
		// PatchResult before exiting, and cmd.Wait() only tells us the
		// exit code, never the child's actual output.
		final := record
		if latest, readErr := s.readRecord(name); readErr == nil {
			final = latest
		}

		final.CompletedAt = time.Now()
		if err != nil {
			final.Status = StatusFailed
			if final.Error == "" {
				final.Error = err.Error()
			}
		} else {
			final.Status = StatusCompleted
		}
		if saveErr := s.save(final); saveErr != nil {
			s.logger.Warn("failed to persist completed subagent record", "name", name, "error", saveErr)
		}
	}()

	return record, nil
}

func (s *Supervisor) release() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

func (s *Supervisor) save(r *Record) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(s.workDir, r.Name), data, 0o644)
}

// readRecord loads a record straight from disk, with no liveness
// reconciliation (unlike Get/getAndReconcile) — used by Spawn's completion
// goroutine to pick up a Result the child process may have just patched.
func (s *Supervisor) readRecord(name string) (*Record, error) {
	data, err := os.ReadFile(sidecarPath(s.workDir, name))
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get loads a sub-agent's record from disk, refreshing Status by probing
// the recorded PID if the on-disk status is still "running" (the process
// may have exited without the supervisor's own goroutine observing it,
// e.g. after a restart).
func (s *Supervisor) Get(name string) (*Record, error) {
	r, _, err := s.getAndReconcile(name)
	return r, err
}

// getAndReconcile loads a record and reports whether this call is the one
// that flipped it from stale-running to failed, so callers like Sweeper can
// count genuine reconciliations rather than already-settled records.
func (s *Supervisor) getAndReconcile(name string) (*Record, bool, error) {
	data, err := os.ReadFile(sidecarPath(s.workDir, name))
	if err != nil {
		return nil, false, fmt.Errorf("read subagent record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, fmt.Errorf("parse subagent record: %w", err)
	}
	if r.Status == StatusRunning && !isAlive(r.PID) {
		r.Status = StatusFailed
		r.Error = "process no longer running (supervisor restarted or process died silently)"
		_ = s.save(&r)
		return &r, true, nil
	}
	return &r, false, nil
}

// List returns every sub-agent record found under the workspace sidecar
// directory.
func (s *Supervisor) List() ([]*Record, error) {
	entries, err := os.ReadDir(sidecarDir(s.workDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var records []*Record
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".json")]
		r, err := s.Get(name)
		if err != nil {
			continue
		}
		records = append(records, r)
	}
	return records, nil
}

// Cancel sends SIGTERM to a running sub-agent's process.
func (s *Supervisor) Cancel(name string) error {
	r, err := s.Get(name)
	if err != nil {
		return err
	}
	if r.Status != StatusRunning {
		return fmt.Errorf("subagent %q is not running (status=%s)", name, r.Status)
	}
	proc, err := os.FindProcess(r.PID)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal subagent process: %w", err)
	}
	r.Status = StatusCancelled
	r.CompletedAt = time.Now()
	return s.save(r)
}

// Remove deletes a sub-agent's sidecar record (and its log file) from
// disk. Callers use this once a terminal status has been read so the
// sidecar directory doesn't accumulate finished records indefinitely.
func (s *Supervisor) Remove(name string) error {
	if err := os.Remove(sidecarPath(s.workDir, name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(sidecarPath(s.workDir, name) + ".log")
	return nil
}

// PatchResult lets a sub-agent child process record its own Result/Error
// before exiting: the supervisor's cmd.Wait() goroutine only observes the
// exit code, since the child's stdout/stderr are redirected to a log file
// it never parses back, so the child itself is the only place that can
// populate these fields on its own sidecar record.
func PatchResult(workDir, name, result, errText string) error {
	data, err := os.ReadFile(sidecarPath(workDir, name))
	if err != nil {
		return fmt.Errorf("read subagent record: %w", err)
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return fmt.Errorf("parse subagent record: %w", err)
	}
	r.Result = result
	if errText != "" {
		r.Error = errText
	}
	out, err := json.MarshalIndent(&r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(sidecarPath(workDir, name), out, 0o644)
}

// isAlive probes a PID with signal 0, the standard liveness check: the
// kernel performs permission/existence checks without actually delivering
// a signal.
func isAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || !errors.Is(err, os.ErrProcessDone)
}
