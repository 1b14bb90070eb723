package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"paperbridge/internal/reconcile"
)

// newProgressPrinter returns nil unless w is an interactive terminal and
// output is not JSON.
func newProgressPrinter(w *os.File, jsonOutput bool) func(reconcile.Event) {
	if jsonOutput || !isTerminal(w) {
		return nil
	}
	return progressPrinter(w)
}

func progressPrinter(w io.Writer) func(reconcile.Event) {
	return func(ev reconcile.Event) {
		fmt.Fprintf(w, "\r\033[K%s", progressLine(ev))
	}
}

func progressLine(ev reconcile.Event) string {
	return fmt.Sprintf("[%s %d/%d] %s", ev.Direction, ev.Index, ev.Total, ev.Document)
}

// finishProgress ends the in-place progress line.
func finishProgress(w io.Writer, progress func(reconcile.Event)) {
	if progress == nil {
		return
	}
	fmt.Fprint(w, "\r\033[K")
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
