package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/chazu/blockwalk/pkg/traverse"
	"github.com/spf13/cobra"
)

type treeEntry struct {
	Path     string     `json:"path"`
	Depth    int        `json:"depth"`
	Origin   [3]float64 `json:"origin"`
	Payloads int        `json:"payloads"`
}

// treeWalker records one entry per entered frame and counts the payloads
// seen directly inside it.
type treeWalker struct {
	traverse.NopHooks[struct{}]

	root    string
	entries []treeEntry
	open    []int
}

func (w *treeWalker) OnEnterFrame(s *traverse.Stack[struct{}]) error {
	f, err := s.Current()
	if err != nil {
		return err
	}
	path := append([]string{w.root}, f.Path()...)
	w.open = append(w.open, len(w.entries))
	w.entries = append(w.entries, treeEntry{
		Path:   strings.Join(path, "/"),
		Depth:  f.Depth(),
		Origin: vecArray(geom.Origin(f.Transform())),
	})
	return nil
}

func (w *treeWalker) OnExitFrame(*traverse.Stack[struct{}]) error {
	w.open = w.open[:len(w.open)-1]
	return nil
}

func (w *treeWalker) OnPayload(*traverse.Stack[struct{}], *blockdb.Node) error {
	w.entries[w.open[len(w.open)-1]].Payloads++
	return nil
}

func newTreeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <drawing>",
		Short: "Print the reference hierarchy below each root",
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

			var entries []treeEntry
			for _, id := range roots {
				root, err := d.source().Open(id)
				if err != nil {
					return err
				}
				w := &treeWalker{root: blockdb.EffectiveName(d.source(), root)}
				// The root is not a frame; its own payloads count on entry 0.
				w.open = []int{0}
				w.entries = []treeEntry{{Path: w.root}}

				// Frames are what this command prints, so flat mode is never used.
				opts := append(o.traverseOptions("tree"), traverse.WithFlat(false))
				t := traverse.New[struct{}](d.source(), w, opts...)
				if err := t.Visit([]blockdb.NodeID{id}, o.cfg.Traverse.Nested); err != nil {
					return err
				}
				logStats("tree", t.Stats())
				entries = append(entries, w.entries...)
			}

			if o.cfg.Output.Format == formatJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			printTree(cmd.OutOrStdout(), entries)
			return nil
		},
	}
}

func printTree(w io.Writer, entries []treeEntry) {
	for _, e := range entries {
		name := e.Path[strings.LastIndex(e.Path, "/")+1:]
		if e.Depth == 0 {
			fmt.Fprintln(w, name)
			continue
		}
		fmt.Fprintf(w, "%s%s @ (%s, %s, %s)",
			strings.Repeat("  ", e.Depth), name,
			formatFloat(e.Origin[0]), formatFloat(e.Origin[1]), formatFloat(e.Origin[2]))
		if e.Payloads > 0 {
			fmt.Fprintf(w, " [%d]", e.Payloads)
		}
		fmt.Fprintln(w)
	}
}
