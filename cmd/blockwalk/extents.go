package main

import (
	"strconv"

	"github.com/chazu/blockwalk/pkg/visitors"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type extentsResult struct {
	Min      [3]float64 `json:"min"`
	Max      [3]float64 `json:"max"`
	Size     [3]float64 `json:"size"`
	Payloads int        `json:"payloads"`
}

func newExtentsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "extents <drawing>",
		Short: "Report the root-space bounding box of every payload",
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

			// Bounds need world transforms, which flat mode does not track.
			if o.cfg.Traverse.Flat {
				return errors.New("extents cannot run in flat mode")
			}
			x := visitors.NewExtents()
			stats, err := x.Run(d.source(), roots, o.traverseOptions("extents")...)
			if err != nil {
				return err
			}
			logStats("extents", stats)
			if x.Bounds.Empty() {
				return errors.New("drawing has no payloads")
			}

			res := extentsResult{
				Min:      vecArray(x.Bounds.Min),
				Max:      vecArray(x.Bounds.Max),
				Size:     vecArray(x.Bounds.Size()),
				Payloads: x.Payloads,
			}
			if o.cfg.Output.Format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			writeTable(cmd.OutOrStdout(), []string{"Min", "Max", "Size", "Payloads"}, [][]string{{
				formatVec(x.Bounds.Min), formatVec(x.Bounds.Max), formatVec(x.Bounds.Size()), strconv.Itoa(x.Payloads),
			}})
			return nil
		},
	}
}
