// Package render runs the external annotation renderer that turns a device
// notebook tree into an annotated PDF.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

const (
	treePlaceholder = "{tree}"
	outPlaceholder  = "{out}"
)

// Command renders by executing a configured binary.
//
// Args may reference {tree} and {out}; when neither placeholder appears the
// tree and output directories are appended as the last two arguments.
type Command struct {
	Binary string
	Args   []string
	Logger *slog.Logger
}

// New returns a Command renderer.
func New(binary string, args []string, logger *slog.Logger) *Command {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Command{Binary: binary, Args: args, Logger: logger}
}

// Render implements codec.Renderer. It is never retried.
func (c *Command) Render(ctx context.Context, treeDir, outDir string) error {
	if strings.TrimSpace(c.Binary) == "" {
		return fmt.Errorf("renderer binary is not configured")
	}
	args := c.argv(treeDir, outDir)

	cmd := exec.CommandContext(ctx, c.Binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s failed: %w\n%s",
			c.Binary, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	c.Logger.Debug("renderer finished", "binary", c.Binary, "tree", treeDir, "output", strings.TrimSpace(string(output)))
	return nil
}

func (c *Command) argv(treeDir, outDir string) []string {
	args := make([]string, 0, len(c.Args)+2)
	substituted := false
	for _, arg := range c.Args {
		if strings.Contains(arg, treePlaceholder) || strings.Contains(arg, outPlaceholder) {
			substituted = true
			arg = strings.ReplaceAll(arg, treePlaceholder, treeDir)
			arg = strings.ReplaceAll(arg, outPlaceholder, outDir)
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, treeDir, outDir)
	}
	return args
}
