package main

import (
	"fmt"
	"os"
	"time"

	"paperbridge/internal/format"
	"paperbridge/internal/reconcile"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeTable(t format.Table) error {
	return t.Write(os.Stdout)
}

type reportOutput struct {
	RunID string `json:"run_id"`
	reconcile.Report
	Failed int `json:"failed"`
}

func writeReport(jsonOutput bool, runID string, report reconcile.Report) error {
	if jsonOutput {
		return writeJSON(reportOutput{RunID: runID, Report: report, Failed: report.Failed()})
	}
	if err := writePlain("pushed: %d  pulled: %d  skipped: %d  failed: %d\n",
		report.Pushed, report.Pulled, report.Skipped, report.Failed()); err != nil {
		return err
	}
	if report.Failed() == 0 {
		return nil
	}
	return writeTable(failureTable(report.Failures))
}

func failureTable(failures []reconcile.Failure) format.Table {
	t := format.Table{Header: []string{"DIRECTION", "ITEM", "DOCUMENT", "STEP", "ERROR"}}
	for _, f := range failures {
		t.Rows = append(t.Rows, []string{string(f.Direction), f.ItemKey, f.Document, f.Step, f.Message})
	}
	return t
}

func formatTime(t time.Time) string {
	return t.Local().Format(time.DateTime)
}
