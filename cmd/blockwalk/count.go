package main

import (
	"strconv"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/chazu/blockwalk/pkg/visitors"
	"github.com/spf13/cobra"
)

type countRow struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newCountCmd(o *rootOptions) *cobra.Command {
	var entities bool
	cmd := &cobra.Command{
		Use:   "count <drawing>",
		Short: "Count block references, or payload entities by type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := o.openDrawing(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer d.Close()
			roots, err := o.rootIDs(d)
			if err != nil {
				return err
			}

			var (
				counts []visitors.NameCount
				stats  traverse.Stats
			)
			opts := o.traverseOptions("count")
			if entities {
				c := visitors.NewEntityCounter[blockdb.Entity]()
				stats, err = c.Run(d.source(), roots, o.cfg.Traverse.Nested, opts...)
				counts = c.Sorted()
			} else {
				c := visitors.NewBlockCounter(d.source(), o.cfg.Resolution())
				stats, err = c.Run(roots, o.cfg.Traverse.Nested, opts...)
				counts = c.Sorted()
			}
			if err != nil {
				return err
			}
			logStats("count", stats)

			rows := make([]countRow, 0, len(counts))
			for _, c := range counts {
				rows = append(rows, countRow{Name: c.Name, Count: c.Count})
			}
			if o.cfg.Output.Format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			table := make([][]string, 0, len(rows))
			for _, r := range rows {
				table = append(table, []string{r.Name, strconv.Itoa(r.Count)})
			}
			writeTable(cmd.OutOrStdout(), []string{"Name", "Count"}, table)
			return nil
		},
	}
	cmd.Flags().BoolVar(&entities, "entities", false, "count payload entities by type instead of block references")
	return cmd
}
