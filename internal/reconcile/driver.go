package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode selects which pipelines a run executes.
type Mode string

const (
	ModePush Mode = "push"
	ModePull Mode = "pull"
	ModeBoth Mode = "both"
)

// ParseMode validates a mode flag value.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModePush:
		return ModePush, nil
	case ModePull:
		return ModePull, nil
	case ModeBoth:
		return ModeBoth, nil
	case "":
		return "", fmt.Errorf("mode is required (push|pull|both)")
	}
	return "", fmt.Errorf("invalid mode %q (push|pull|both)", raw)
}

// Run executes the pipelines selected by mode. With ModeBoth push runs first
// and pull still runs when push could not start.
func (s *Syncer) Run(ctx context.Context, mode Mode) (Report, error) {
	var report Report
	switch mode {
	case ModePush:
		return s.Push(ctx)
	case ModePull:
		return s.Pull(ctx)
	case ModeBoth:
		pushed, pushErr := s.Push(ctx)
		report.merge(pushed)
		if ctx.Err() != nil {
			return report, pushErr
		}
		pulled, pullErr := s.Pull(ctx)
		report.merge(pulled)
		return report, errors.Join(pushErr, pullErr)
	}
	return report, fmt.Errorf("invalid mode %q", mode)
}
