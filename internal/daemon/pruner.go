package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yairfalse/vahti/config"
	"github.com/yairfalse/vahti/history"
	"github.com/yairfalse/vahti/journal"
	"github.com/yairfalse/vahti/telemetry"
)

// Pruner trims old snapshots and journal files on a cron schedule.
type Pruner struct {
	store   *history.Store
	journal *journal.Journal
	cfg     config.History
	logger  *telemetry.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

type prunedEntry struct {
	Snapshots    int       `json:"snapshots"`
	JournalFiles int       `json:"journal_files"`
	Cutoff       time.Time `json:"cutoff"`
}

func NewPruner(store *history.Store, jnl *journal.Journal, cfg config.History, logger *telemetry.Logger) *Pruner {
	return &Pruner{
		store:   store,
		journal: jnl,
		cfg:     cfg,
		logger:  logger,
		cron:    cron.New(),
	}
}

// Start schedules pruning runs. With no schedule or no retention
// configured the pruner stays idle.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.PruneSchedule == "" || p.cfg.Retention <= 0 {
		p.logger.Info().Msg("retention pruning not configured")
		return nil
	}

	if _, err := cron.ParseStandard(p.cfg.PruneSchedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.cfg.PruneSchedule, err)
	}

	if _, err := p.cron.AddFunc(p.cfg.PruneSchedule, func() {
		ctx, span := telemetry.Tracer.Start(ctx, "prune")
		defer span.End()

		p.logger.LogSpanStart(ctx, "prune")
		_, _, err := p.RunOnce(ctx)
		p.logger.LogSpanEnd(ctx, "prune", err)
	}); err != nil {
		return fmt.Errorf("scheduling pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info().
		Str("schedule", p.cfg.PruneSchedule).
		Dur("retention", p.cfg.Retention).
		Msg("retention pruning scheduled")

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	<-p.cron.Stop().Done()
	p.running = false
}

// RunOnce prunes everything older than the retention window and
// reports how many snapshots and journal files went away.
func (p *Pruner) RunOnce(ctx context.Context) (snapshots, journalFiles int, err error) {
	cutoff := time.Now().Add(-p.cfg.Retention)

	snapshots, err = p.store.Prune(cutoff)
	if err != nil {
		return 0, 0, fmt.Errorf("pruning history: %w", err)
	}

	journalFiles, err = journal.Cleanup(p.cfg.Dir, cutoff)
	if err != nil {
		return snapshots, 0, fmt.Errorf("pruning journal: %w", err)
	}

	if snapshots > 0 || journalFiles > 0 {
		entry := prunedEntry{Snapshots: snapshots, JournalFiles: journalFiles, Cutoff: cutoff}
		if jerr := p.journal.Append(journal.EntryPruned, "", entry); jerr != nil {
			p.logger.LogStoreError(ctx, "journal", jerr)
		}
	}

	recordPruneMetrics(ctx, snapshots)
	p.logger.LogPrune(ctx, snapshots, journalFiles)
	return snapshots, journalFiles, nil
}

// NextRun returns the next scheduled prune, nil when unscheduled.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
