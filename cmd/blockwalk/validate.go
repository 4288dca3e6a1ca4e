package main

import (
	"fmt"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type validationRow struct {
	Severity string `json:"severity"`
	Node     string `json:"node,omitempty"`
	Message  string `json:"message"`
}

func newValidateCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <drawing>",
		Short: "Check a drawing for dangling references, cycles and naming problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.openDrawing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer d.Close()
			db, err := d.database()
			if err != nil {
				return err
			}

			findings := blockdb.Validate(db)
			rows := make([]validationRow, 0, len(findings))
			errCount := 0
			for _, f := range findings {
				if f.Severity == blockdb.SeverityError {
					errCount++
				}
				rows = append(rows, validationRow{
					Severity: f.Severity.String(),
					Node:     f.NodeID.Short(),
					Message:  f.Message,
				})
			}

			if o.cfg.Output.Format == formatJSON {
				if err := writeJSON(cmd.OutOrStdout(), rows); err != nil {
					return err
				}
			} else if len(rows) > 0 {
				table := make([][]string, 0, len(rows))
				for _, r := range rows {
					table = append(table, []string{r.Severity, r.Node, r.Message})
				}
				writeTable(cmd.OutOrStdout(), []string{"Severity", "Node", "Message"}, table)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
			}

			if errCount > 0 {
				return errors.Errorf("%s: %d validation errors", args[0], errCount)
			}
			return nil
		},
	}
}
