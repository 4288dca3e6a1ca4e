package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConvertCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Rewrite a drawing in another format",
		Long: "convert loads any readable drawing and writes it as a document " +
			"(.yaml, .json or .toml, with an optional .zst suffix) or a SQLite store (.db).",
		Args: cobra.ExactArgs(2),
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
			if err := saveDrawing(args[1], db); err != nil {
				return err
			}
			if o.cfg.Output.Format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"input":  args[0],
					"output": args[1],
					"nodes":  db.NodeCount(),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d nodes to %s\n", db.NodeCount(), args[1])
			return nil
		},
	}
}
