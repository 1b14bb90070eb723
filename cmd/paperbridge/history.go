package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"paperbridge/internal/format"
	"paperbridge/internal/journal"
	"paperbridge/internal/models"
)

const defaultHistoryLimit = 20

func newHistoryCmd(state *cliState) *cobra.Command {
	var (
		limit int
		runs  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transfers from the journal",
		Args:  requireNoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return usageError{err: fmt.Errorf("--limit must be positive")}
			}
			jr, err := openExistingJournal(state)
			if err != nil {
				return err
			}
			if jr != nil {
				defer jr.Close()
			}
			if runs {
				return showRuns(cmd.Context(), state, jr, limit)
			}
			return showTransfers(cmd.Context(), state, jr, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "number of rows to show")
	cmd.Flags().BoolVar(&runs, "runs", false, "list runs instead of transfers")
	return cmd
}

// openExistingJournal returns nil when no sync has created the journal yet.
func openExistingJournal(state *cliState) (*journal.Journal, error) {
	path, err := state.cfg.ResolvedJournalPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		state.logger.Debug("journal not created yet", "path", path)
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return journal.Open(path)
}

func showTransfers(ctx context.Context, state *cliState, jr *journal.Journal, limit int) error {
	transfers := []models.Transfer{}
	if jr != nil {
		recent, err := jr.Recent(ctx, limit)
		if err != nil {
			return err
		}
		transfers = append(transfers, recent...)
	}
	if state.jsonOutput {
		return writeJSON(transfers)
	}
	return writeTable(transferTable(transfers))
}

func showRuns(ctx context.Context, state *cliState, jr *journal.Journal, limit int) error {
	runs := []models.Run{}
	if jr != nil {
		recent, err := jr.Runs(ctx, limit)
		if err != nil {
			return err
		}
		runs = append(runs, recent...)
	}
	if state.jsonOutput {
		return writeJSON(runs)
	}
	return writeTable(runTable(runs))
}

func transferTable(transfers []models.Transfer) format.Table {
	t := format.Table{Header: []string{"TIME", "DIRECTION", "OUTCOME", "ITEM", "DOCUMENT", "STEP", "DETAIL"}}
	for _, tr := range transfers {
		t.Rows = append(t.Rows, []string{
			formatTime(tr.At),
			string(tr.Direction),
			string(tr.Outcome),
			tr.ItemKey,
			tr.Document,
			tr.Step,
			tr.Detail,
		})
	}
	return t
}

func runTable(runs []models.Run) format.Table {
	t := format.Table{Header: []string{"STARTED", "FINISHED", "MODE", "PUSHED", "PULLED", "FAILED", "ID"}}
	for _, r := range runs {
		finished := ""
		if r.FinishedAt != nil {
			finished = formatTime(*r.FinishedAt)
		}
		t.Rows = append(t.Rows, []string{
			formatTime(r.StartedAt),
			finished,
			r.Mode,
			strconv.Itoa(r.Pushed),
			strconv.Itoa(r.Pulled),
			strconv.Itoa(r.Failed),
			r.ID,
		})
	}
	return t
}
