package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"paperbridge/internal/journal"
	"paperbridge/internal/models"
	"paperbridge/internal/reconcile"
	"paperbridge/internal/retry"
	"paperbridge/internal/workdir"
)

func runSync(ctx context.Context, state *cliState, rawMode string) error {
	mode, err := reconcile.ParseMode(rawMode)
	if err != nil {
		return usageError{err: err}
	}
	cfg := state.cfg
	if err := cfg.Validate(); err != nil {
		return err
	}

	runID := uuid.NewString()
	jr := openJournal(state)
	if jr != nil {
		defer jr.Close()
		id, err := jr.StartRun(ctx, string(mode))
		if err != nil {
			state.logger.Warn("journal disabled", "error", err)
			jr = nil
		} else {
			runID = id
		}
	}
	logger := state.logger.With("run_id", runID)

	area, err := workdir.New(cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("create work area: %w", err)
	}
	defer func() {
		if err := area.Close(); err != nil {
			logger.Warn("remove work area", "path", area.Root(), "error", err)
		}
	}()

	svc := newServices(cfg, logger)
	opts := syncOptions(state, svc, area, runID)
	if jr != nil {
		opts.Recorder = jr
	}

	syncer, err := reconcile.New(opts)
	if err != nil {
		return err
	}

	logger.Info("sync started", "mode", mode, "remote_store", svc.remote != nil)
	report, runErr := syncer.Run(ctx, mode)
	finishProgress(os.Stderr, opts.Progress)

	if jr != nil {
		err := jr.FinishRun(context.WithoutCancel(ctx), models.Run{
			ID:     opts.RunID,
			Pushed: report.Pushed,
			Pulled: report.Pulled,
			Failed: report.Failed(),
		})
		if err != nil {
			logger.Warn("journal finish run", "error", err)
		}
	}
	logger.Info("sync finished",
		"pushed", report.Pushed,
		"pulled", report.Pulled,
		"skipped", report.Skipped,
		"failed", report.Failed(),
	)

	if err := writeReport(state.jsonOutput, opts.RunID, report); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	if report.Failed() > 0 {
		return fmt.Errorf("%d document(s) failed to sync", report.Failed())
	}
	return nil
}

// syncOptions wires the collaborators. Retry warnings carry the run id; the
// syncer adds it to its own logger.
func syncOptions(state *cliState, svc services, area *workdir.Area, runID string) reconcile.Options {
	cfg := state.cfg
	opts := reconcile.Options{
		Library:    svc.library,
		Device:     svc.device,
		Renderer:   svc.renderer,
		WorkArea:   area,
		Retrier:    retry.New(cfg.Retry.MaxAttempts, cfg.Retry.Delay.Duration, state.logger.With("run_id", runID)),
		Logger:     state.logger,
		UnreadPath: cfg.UnreadPath(),
		ReadPath:   cfg.ReadPath(),
		RunID:      runID,
		Progress:   newProgressPrinter(os.Stderr, state.jsonOutput),
	}
	if svc.remote != nil {
		opts.RemoteStore = svc.remote
	}
	return opts
}

// openJournal returns nil when the journal cannot be opened. The journal is
// an audit trail and never blocks a sync.
func openJournal(state *cliState) *journal.Journal {
	path, err := state.cfg.ResolvedJournalPath()
	if err != nil {
		state.logger.Warn("journal disabled", "error", err)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		state.logger.Warn("journal disabled", "path", path, "error", err)
		return nil
	}
	jr, err := journal.Open(path)
	if err != nil {
		state.logger.Warn("journal disabled", "path", path, "error", err)
		return nil
	}
	return jr
}
