package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/olekukonko/tablewriter"
)

const formatJSON = "json"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.4g", f)
}

func formatVec(v geom.Vec) string {
	return fmt.Sprintf("(%s, %s, %s)", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
}

func vecArray(v geom.Vec) [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
