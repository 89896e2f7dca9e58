package subagent

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically reconciles on-disk sub-agent records against real
// process liveness, catching children that died without the spawning
// goroutine observing it (e.g. after a supervisor restart).
type Sweeper struct {
	supervisor *Supervisor
	cron       *cron.Cron
	logger     *slog.Logger
}

// NewSweeper schedules a reconciliation sweep on the given cron spec (e.g.
// "@every 30s"). Call Start to begin, Stop to shut down.
func NewSweeper(supervisor *Supervisor, spec string, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New()
	s := &Sweeper{
		supervisor: supervisor,
		cron:       c,
		logger:     logger.With("component", "subagent-sweeper"),
	}
	if _, err := c.AddFunc(spec, s.sweep); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) sweep() {
	entries, err := os.ReadDir(sidecarDir(s.supervisor.workDir))
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("sweep readdir failed", "error", err)
		}
		return
	}
	reconciled := 0
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		name := e.Name()[:len(e.Name())-len(".json")]
		_, didReconcile, err := s.supervisor.getAndReconcile(name)
		if err != nil {
			continue
		}
		if didReconcile {
			reconciled++
		}
	}
	if reconciled > 0 {
		s.logger.Info("sweep reconciled stale subagent records", "count", reconciled)
	}
}

// Start begins the cron scheduler in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, blocking until any in-flight sweep completes.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
