package main

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

type checkResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type check struct {
	name string
	run  func(context.Context) error
}

func newDoctorCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the device bridge, library access, remote store and renderer",
		Args:  requireNoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := newServices(state.cfg, state.logger)
			checks := []check{
				{name: "device", run: svc.device.Check},
				{name: "library", run: func(ctx context.Context) error {
					if err := state.cfg.ValidateLibrary(); err != nil {
						return err
					}
					return svc.library.Ping(ctx)
				}},
				{name: "renderer", run: func(context.Context) error {
					_, err := exec.LookPath(state.cfg.Renderer.Command)
					return err
				}},
			}
			if svc.remote != nil {
				checks = append(checks, check{name: "remote_store", run: svc.remote.Check})
			}

			results := runChecks(cmd.Context(), checks)
			if state.jsonOutput {
				if err := writeJSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					if err := writePlain("%s\n", formatCheck(r)); err != nil {
						return err
					}
				}
			}

			failed := 0
			for _, r := range results {
				if !r.OK {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, checks []check) []checkResult {
	results := make([]checkResult, 0, len(checks))
	for _, c := range checks {
		result := checkResult{Name: c.name, OK: true}
		if err := c.run(ctx); err != nil {
			result.OK = false
			result.Detail = err.Error()
		}
		results = append(results, result)
	}
	return results
}

func formatCheck(r checkResult) string {
	if r.OK {
		return fmt.Sprintf("ok    %s", r.Name)
	}
	return fmt.Sprintf("fail  %s: %s", r.Name, r.Detail)
}
