package main

import (
	"fmt"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/chazu/blockwalk/pkg/visitors"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type explodeResult struct {
	Target  string `json:"target"`
	Copied  int    `json:"copied"`
	Skipped int    `json:"skipped"`
	Output  string `json:"output,omitempty"`
}

func runExplode[T blockdb.Entity](d *drawing, dest blockdb.NodeID, roots []blockdb.NodeID, tolerance float64, opts []traverse.Option) (copied, skipped int, err error) {
	x := visitors.NewDeepExplode[T](d.appender(), dest)
	x.Tolerance = tolerance
	stats, err := x.Run(d.source(), roots, opts...)
	if err != nil {
		return 0, 0, err
	}
	logStats("explode", stats)
	return len(x.Result), x.Skipped, nil
}

func newExplodeCmd(o *rootOptions) *cobra.Command {
	var (
		into   string
		only   string
		output string
	)
	cmd := &cobra.Command{
		Use:   "explode <drawing>",
		Short: "Copy nested payloads into one definition, mapped into root space",
		Long: "explode walks every reference below the roots and appends a root-space copy of each payload " +
			"to the target definition (--into, explode.target, or the first root). " +
			"Frames that do not scale uniformly are skipped. A .db drawing is modified in place; " +
			"other drawings need --output to keep the result.",
		Args: cobra.ExactArgs(1),
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
			if o.cfg.Traverse.Flat {
				return errors.New("explode cannot run in flat mode")
			}

			target := into
			if target == "" {
				target = o.cfg.Explode.Target
			}
			var dest blockdb.NodeID
			if target != "" {
				if dest, err = d.lookup(target); err != nil {
					return err
				}
			} else {
				dest = roots[0]
				if n, err := d.source().Open(dest); err == nil {
					target = blockdb.EffectiveName(d.source(), n)
				}
			}

			tol := o.cfg.Explode.Tolerance
			opts := o.traverseOptions("explode")
			var copied, skipped int
			switch only {
			case "all":
				copied, skipped, err = runExplode[blockdb.Entity](d, dest, roots, tol, opts)
			case "curves":
				copied, skipped, err = runExplode[blockdb.Curve](d, dest, roots, tol, opts)
			case "solids":
				copied, skipped, err = runExplode[*blockdb.Solid](d, dest, roots, tol, opts)
			case "text":
				copied, skipped, err = runExplode[*blockdb.Text](d, dest, roots, tol, opts)
			default:
				return errors.Errorf("unknown --only %q: want all, curves, solids or text", only)
			}
			if err != nil {
				return err
			}
			if skipped > 0 {
				logrus.WithField("skipped", skipped).Warn("payloads under non-uniform scale were not exploded")
			}

			if output != "" {
				db, err := d.database()
				if err != nil {
					return err
				}
				if err := saveDrawing(output, db); err != nil {
					return err
				}
			}

			res := explodeResult{Target: target, Copied: copied, Skipped: skipped, Output: output}
			if o.cfg.Output.Format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exploded %d payloads into %s (%d skipped)\n", copied, target, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "definition receiving the copies")
	cmd.Flags().StringVar(&only, "only", "all", "payload kinds to explode: all|curves|solids|text")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the exploded drawing to this file")
	return cmd
}
