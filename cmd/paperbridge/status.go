package main

import (
	"github.com/spf13/cobra"

	"paperbridge/internal/format"
	"paperbridge/internal/models"
)

type statusRow struct {
	ItemKey       string `json:"item_key"`
	Title         string `json:"title"`
	AttachmentKey string `json:"attachment_key"`
	Filename      string `json:"filename"`
}

func newStatusCmd(state *cliState) *cobra.Command {
	var rawTag string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List PDFs of library items carrying a control tag",
		Args:  requireNoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, err := models.ParseTag(rawTag)
			if err != nil {
				return usageError{err: err}
			}
			if err := state.cfg.ValidateLibrary(); err != nil {
				return err
			}
			ctx := cmd.Context()
			lib := newServices(state.cfg, state.logger).library

			items, err := lib.ItemsByTag(ctx, string(tag))
			if err != nil {
				return err
			}
			rows := []statusRow{}
			for _, item := range items {
				children, err := lib.Children(ctx, item.Key)
				if err != nil {
					return err
				}
				for _, att := range children {
					if !att.IsPDF() {
						continue
					}
					rows = append(rows, statusRow{
						ItemKey:       item.Key,
						Title:         item.Title,
						AttachmentKey: att.Key,
						Filename:      att.Filename,
					})
				}
			}

			if state.jsonOutput {
				return writeJSON(rows)
			}
			t := format.Table{Header: []string{"ITEM", "TITLE", "ATTACHMENT", "FILENAME"}}
			for _, row := range rows {
				t.Rows = append(t.Rows, []string{row.ItemKey, row.Title, row.AttachmentKey, row.Filename})
			}
			return writeTable(t)
		},
	}
	cmd.Flags().StringVar(&rawTag, "tag", string(models.TagRead), "control tag to list (to_sync, synced, read)")
	return cmd
}
