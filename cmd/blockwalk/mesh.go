package main

import (
	"bytes"
	"os"
	"strconv"

	"github.com/chazu/blockwalk/pkg/kernel"
	"github.com/chazu/blockwalk/pkg/kernel/sdfx"
	"github.com/chazu/blockwalk/pkg/tessellate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// colorPalette assigns distinct colors to parts, in mesh order.
var colorPalette = []string{
	"#4A90D9", "#E67E22", "#2ECC71", "#9B59B6",
	"#E74C3C", "#1ABC9C", "#F39C12", "#3498DB",
}

// MeshData is the JSON mesh format read by viewers.
type MeshData struct {
	Vertices []float32 `json:"vertices"`
	Normals  []float32 `json:"normals"`
	Indices  []uint32  `json:"indices"`
	PartName string    `json:"partName"`
	Color    string    `json:"color"`
}

func meshData(meshes []*kernel.Mesh) []MeshData {
	out := make([]MeshData, 0, len(meshes))
	for i, m := range meshes {
		out = append(out, MeshData{
			Vertices: m.Vertices,
			Normals:  m.Normals,
			Indices:  m.Indices,
			PartName: m.PartName,
			Color:    colorPalette[i%len(colorPalette)],
		})
	}
	return out
}

func newMeshCmd(o *rootOptions) *cobra.Command {
	var (
		output string
		cells  int
		merge  bool
	)
	cmd := &cobra.Command{
		Use:   "mesh <drawing>",
		Short: "Tessellate every solid below the roots into triangle meshes",
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

			if !cmd.Flags().Changed("cells") {
				cells = o.cfg.Mesh.Cells
			}
			if !cmd.Flags().Changed("merge") {
				merge = o.cfg.Mesh.Merge
			}
			if cells < 8 {
				return errors.Errorf("--cells must be at least 8, got %d", cells)
			}

			k := sdfx.New(sdfx.WithCells(cells))
			meshes, err := tessellate.Tessellate(d.source(), roots, k, tessellate.Options{
				Resolution: o.cfg.Resolution(),
				Merge:      merge,
			})
			if err != nil {
				return err
			}
			data := meshData(meshes)

			if output != "" {
				var buf bytes.Buffer
				if err := writeJSON(&buf, data); err != nil {
					return err
				}
				if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
					return errors.Wrap(err, "write meshes")
				}
			}

			if o.cfg.Output.Format == formatJSON {
				if output != "" {
					return nil
				}
				return writeJSON(cmd.OutOrStdout(), data)
			}
			rows := make([][]string, 0, len(meshes))
			for i, m := range meshes {
				rows = append(rows, []string{
					m.PartName,
					strconv.Itoa(m.VertexCount()),
					strconv.Itoa(m.TriangleCount()),
					data[i].Color,
				})
			}
			writeTable(cmd.OutOrStdout(), []string{"Part", "Vertices", "Triangles", "Color"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write mesh JSON to this file")
	cmd.Flags().IntVar(&cells, "cells", 0, "marching cubes resolution (default: mesh.cells)")
	cmd.Flags().BoolVar(&merge, "merge", false, "union every solid into one mesh")
	return cmd
}
