package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/document"
	"github.com/chazu/blockwalk/pkg/engine"
	"github.com/chazu/blockwalk/pkg/kernel"
	"github.com/pkg/errors"
)

const furnitureScript = `
(defblock "Chair"
  (line (vec3 0 0 0) (vec3 1 1 0))
  (arc (vec3 0 0 0) 1 0 180))
(defblock "Table"
  (text "T" :height 1)
  (insert "Chair"))
(layout "Model"
  (insert "Chair" :at (vec3 0 0 0))
  (insert "Chair" :at (vec3 10 0 0))
  (insert "Table" :at (vec3 0 -20 0)))
`

const segmentScript = `
(defblock "Seg" (line (vec3 0 0 0) (vec3 1 0 0)))
(layout "Model"
  (insert "Seg" :at (vec3 10 0 0))
  (insert "Seg" :at (vec3 0 5 0) :scale 2))
`

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustRunCLI(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("blockwalk %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func decodeJSON(t *testing.T, out string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
}

func countsOf(t *testing.T, out string) map[string]int {
	t.Helper()
	var rows []countRow
	decodeJSON(t, out, &rows)
	m := make(map[string]int, len(rows))
	for _, r := range rows {
		m[r.Name] = r.Count
	}
	return m
}

func TestCountBlocks(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)

	got := countsOf(t, mustRunCLI(t, "count", "--format", "json", path))
	if got["Chair"] != 3 || got["Table"] != 1 {
		t.Errorf("counts = %v, want Chair 3 and Table 1", got)
	}

	got = countsOf(t, mustRunCLI(t, "count", "--format", "json", "--nested=false", path))
	if got["Chair"] != 2 || got["Table"] != 1 {
		t.Errorf("top-level counts = %v, want Chair 2 and Table 1", got)
	}
}

func TestCountEntities(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)
	got := countsOf(t, mustRunCLI(t, "count", "--entities", "--format", "json", path))
	want := map[string]int{"line": 3, "arc": 3, "text": 1}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d (all: %v)", k, got[k], v, got)
		}
	}
}

func TestCountTable(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)
	out := mustRunCLI(t, "count", path)
	if !strings.Contains(out, "CHAIR") && !strings.Contains(out, "Chair") {
		t.Errorf("table output missing Chair row:\n%s", out)
	}
	if !strings.Contains(out, "NAME") {
		t.Errorf("table output missing header:\n%s", out)
	}
}

func TestCountCanonicalFoldsVariants(t *testing.T) {
	path := writeFile(t, "doors.bwl", `
(defblock "Door" (line (vec3 0 0 0) (vec3 0 2 0)))
(dynamic "*U1" "Door" (line (vec3 0 0 0) (vec3 0 3 0)))
(layout "Model" (insert "*U1") (insert "Door"))
`)
	got := countsOf(t, mustRunCLI(t, "count", "--format", "json", path))
	if got["*U1"] != 1 || got["Door"] != 1 {
		t.Errorf("instantiated counts = %v", got)
	}
	got = countsOf(t, mustRunCLI(t, "count", "--format", "json", "--resolution", "canonical", path))
	if got["Door"] != 2 {
		t.Errorf("canonical counts = %v, want Door 2", got)
	}
}

func TestCountRootFlag(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)
	got := countsOf(t, mustRunCLI(t, "count", "--format", "json", "--root", "Table", path))
	if len(got) != 1 || got["Chair"] != 1 {
		t.Errorf("counts below Table = %v, want Chair 1", got)
	}

	if _, err := runCLI(t, "count", "--root", "Ghost", path); err == nil {
		t.Error("expected an error for an unknown root name")
	}
}

func TestTree(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)

	var entries []treeEntry
	decodeJSON(t, mustRunCLI(t, "tree", "--format", "json", path), &entries)
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	want := []string{"Model", "Model/Chair", "Model/Chair", "Model/Table", "Model/Table/Chair"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	if entries[4].Depth != 2 {
		t.Errorf("nested chair depth = %d, want 2", entries[4].Depth)
	}
	if entries[4].Origin != [3]float64{0, -20, 0} {
		t.Errorf("nested chair origin = %v", entries[4].Origin)
	}
	if entries[1].Payloads != 2 || entries[3].Payloads != 1 {
		t.Errorf("payload counts = %d, %d", entries[1].Payloads, entries[3].Payloads)
	}

	text := mustRunCLI(t, "tree", path)
	if !strings.HasPrefix(text, "Model\n") {
		t.Errorf("tree should start with the root name:\n%s", text)
	}
	if !strings.Contains(text, "    Chair @ (0, -20, 0) [2]") {
		t.Errorf("tree missing nested chair line:\n%s", text)
	}
}

func TestExtents(t *testing.T) {
	path := writeFile(t, "segments.bwl", segmentScript)
	var res extentsResult
	decodeJSON(t, mustRunCLI(t, "extents", "--format", "json", path), &res)

	if res.Min != [3]float64{0, 0, 0} || res.Max != [3]float64{11, 5, 0} {
		t.Errorf("bounds = %v .. %v", res.Min, res.Max)
	}
	if res.Size != [3]float64{11, 5, 0} {
		t.Errorf("size = %v", res.Size)
	}
	if res.Payloads != 2 {
		t.Errorf("payloads = %d, want 2", res.Payloads)
	}

	if _, err := runCLI(t, "extents", "--flat", path); err == nil {
		t.Error("extents must refuse flat mode")
	}
}

func TestExplodeToDocument(t *testing.T) {
	path := writeFile(t, "segments.bwl", segmentScript+`
(layout "Sheet" (insert "Seg" :scale (vec3 1 2 1)))
`)
	out := filepath.Join(t.TempDir(), "exploded.yaml")

	var res explodeResult
	decodeJSON(t, mustRunCLI(t, "explode", "--format", "json", "--root", "Model", "--root", "Sheet", "-o", out, path), &res)
	if res.Target != "Model" {
		t.Errorf("target = %q, want the first root", res.Target)
	}
	if res.Copied != 2 || res.Skipped != 1 {
		t.Errorf("copied %d, skipped %d; want 2 and 1", res.Copied, res.Skipped)
	}

	db, err := document.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	model := db.MustLookup("Model").Definition()
	if len(model.Children) != 4 {
		t.Fatalf("Model has %d children, want 2 inserts and 2 copies", len(model.Children))
	}
	copied := db.Get(model.Children[3]).Entity().(*blockdb.Line)
	if copied.From.X != 0 || copied.From.Y != 5 || copied.To.X != 2 {
		t.Errorf("second copy = %+v, want the scaled segment in root space", copied)
	}
}

func TestExplodeSQLiteInPlace(t *testing.T) {
	src := writeFile(t, "segments.bwl", segmentScript)
	store := filepath.Join(t.TempDir(), "segments.db")
	mustRunCLI(t, "convert", src, store)

	before := countsOf(t, mustRunCLI(t, "count", "--entities", "--nested=false", "--format", "json", store))
	mustRunCLI(t, "explode", "--only", "curves", store)
	after := countsOf(t, mustRunCLI(t, "count", "--entities", "--nested=false", "--format", "json", store))

	if after["line"] != before["line"]+2 {
		t.Errorf("lines before %d, after %d; want two exploded copies", before["line"], after["line"])
	}
}

func TestExplodeIntoInsertedBlock(t *testing.T) {
	path := writeFile(t, "into.bwl", `
(defblock "A" (line (vec3 0 0 0) (vec3 1 0 0)))
(defblock "D" (circle (vec3 0 0 0) 1))
(layout "Model" (insert "A") (insert "D" :at (vec3 5 0 0)))
`)
	out := filepath.Join(t.TempDir(), "into.yaml")
	var res explodeResult
	decodeJSON(t, mustRunCLI(t, "explode", "--format", "json", "--only", "curves", "--into", "D", "-o", out, path), &res)
	if res.Copied != 2 {
		t.Errorf("copied %d, want one line and one circle", res.Copied)
	}

	db, err := document.Load(out)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(db.MustLookup("D").Definition().Children); n != 3 {
		t.Errorf("D has %d children, want the circle and two copies", n)
	}
}

func TestExplodeUnknownKind(t *testing.T) {
	path := writeFile(t, "segments.bwl", segmentScript)
	if _, err := runCLI(t, "explode", "--only", "hatches", path); err == nil {
		t.Error("expected an error for an unknown --only value")
	}
}

func TestConvertRoundTrip(t *testing.T) {
	src := writeFile(t, "furniture.bwl", furnitureScript)
	dir := t.TempDir()
	want := countsOf(t, mustRunCLI(t, "count", "--format", "json", src))

	for _, name := range []string{"f.yaml", "f.json.zst", "f.toml", "f.db"} {
		dst := filepath.Join(dir, name)
		mustRunCLI(t, "convert", src, dst)
		got := countsOf(t, mustRunCLI(t, "count", "--format", "json", dst))
		if got["Chair"] != want["Chair"] || got["Table"] != want["Table"] {
			t.Errorf("%s: counts = %v, want %v", name, got, want)
		}
	}

	if _, err := runCLI(t, "convert", src, filepath.Join(dir, "back.bwl")); err == nil {
		t.Error("writing a script must fail")
	}
}

func TestValidate(t *testing.T) {
	doc := writeFile(t, "unused.yaml", `
version: 1
layouts:
  - name: Model
    items:
      - {type: line, from: [0, 0, 0], to: [1, 0, 0]}
blocks:
  - name: Spare
    items:
      - {type: circle, center: [0, 0, 0], radius: 1}
`)
	out := mustRunCLI(t, "validate", "--format", "json", doc)
	var rows []validationRow
	decodeJSON(t, out, &rows)
	if len(rows) != 1 || rows[0].Severity != blockdb.SeverityWarning.String() {
		t.Fatalf("rows = %+v, want one warning", rows)
	}
	if !strings.Contains(rows[0].Message, `"Spare"`) {
		t.Errorf("warning = %q", rows[0].Message)
	}

	clean := writeFile(t, "furniture.bwl", furnitureScript)
	if out := mustRunCLI(t, "validate", clean); strings.TrimSpace(out) != "ok" {
		t.Errorf("clean drawing output = %q", out)
	}
}

func TestScriptErrorsCarryPosition(t *testing.T) {
	path := writeFile(t, "broken.bwl", `(layout "Model" (insert "Ghost"))`)
	_, err := runCLI(t, "count", path)
	if err == nil {
		t.Fatal("expected an evaluation error")
	}
	if !strings.Contains(err.Error(), "broken.bwl") || !strings.Contains(err.Error(), "Ghost") {
		t.Errorf("error = %v", err)
	}

	cyclic := writeFile(t, "loop.bwl", `(defblock "Loop" (insert "Loop"))`)
	if _, err := runCLI(t, "count", "--root", "Loop", cyclic); err == nil {
		t.Error("a cyclic script must not load")
	}
}

func TestMissingDrawing(t *testing.T) {
	for _, name := range []string{"nope.yaml", "nope.db", "nope.bwl"} {
		if _, err := runCLI(t, "count", filepath.Join(t.TempDir(), name)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestNoLayoutsNeedsRoot(t *testing.T) {
	path := writeFile(t, "blocks.bwl", `(defblock "Seg" (line (vec3 0 0 0) (vec3 1 0 0)))`)
	if _, err := runCLI(t, "count", path); err == nil || !strings.Contains(err.Error(), "--root") {
		t.Errorf("error = %v, want a hint about --root", err)
	}
}

func TestInvalidFormatFlag(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)
	if _, err := runCLI(t, "count", "--format", "xml", path); err == nil {
		t.Error("expected a config error for an unknown format")
	}
}

func TestConfigFileDefaults(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)
	cfg := writeFile(t, "blockwalk.yaml", "output:\n  format: json\ntraverse:\n  nested: false\n")

	got := countsOf(t, mustRunCLI(t, "count", "--config", cfg, path))
	if got["Chair"] != 2 {
		t.Errorf("config nested=false: counts = %v", got)
	}
	got = countsOf(t, mustRunCLI(t, "count", "--config", cfg, "--nested", path))
	if got["Chair"] != 3 {
		t.Errorf("--nested overrides config: counts = %v", got)
	}
}

func TestMeshDataColorPaletteWrapping(t *testing.T) {
	meshes := make([]*kernel.Mesh, len(colorPalette)+1)
	for i := range meshes {
		meshes[i] = &kernel.Mesh{PartName: "p"}
	}
	data := meshData(meshes)
	if len(data) != len(meshes) {
		t.Fatalf("got %d meshes, want %d", len(data), len(meshes))
	}
	for i, m := range data {
		if m.Color == "" {
			t.Errorf("mesh %d has no color", i)
		}
	}
	if data[len(colorPalette)].Color != colorPalette[0] {
		t.Errorf("palette should wrap: got %s", data[len(colorPalette)].Color)
	}
}

func TestE2EScriptToMeshes(t *testing.T) {
	if testing.Short() {
		t.Skip("tessellation is slow")
	}
	path := writeFile(t, "legs.bwl", `
(defblock "Leg" (box :size (vec3 1 1 4) :at (vec3 0 0 2)))
(defblock "Top" (box :size (vec3 6 6 0.5) :at (vec3 0 0 4.25)))
(layout "Model"
  (insert "Top")
  (insert "Leg" :at (vec3 -2 -2 0))
  (insert "Leg" :at (vec3 2 -2 0))
  (insert "Leg" :at (vec3 2 2 0))
  (insert "Leg" :at (vec3 -2 2 0)))
`)
	out := filepath.Join(t.TempDir(), "meshes.json")
	mustRunCLI(t, "mesh", "--cells", "16", "-o", out, path)

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var data []MeshData
	decodeJSON(t, string(raw), &data)
	if len(data) != 5 {
		t.Fatalf("expected 5 meshes, got %d", len(data))
	}
	legs := 0
	for _, m := range data {
		if len(m.Vertices) == 0 || len(m.Indices) == 0 {
			t.Errorf("part %q: empty geometry", m.PartName)
		}
		if m.Color == "" {
			t.Errorf("part %q: no color assigned", m.PartName)
		}
		if m.PartName == "Leg" {
			legs++
		}
	}
	if legs != 4 {
		t.Errorf("expected 4 Leg meshes, got %d", legs)
	}

	merged := mustRunCLI(t, "mesh", "--cells", "16", "--merge", "--format", "json", path)
	decodeJSON(t, merged, &data)
	if len(data) != 1 {
		t.Errorf("merge should produce one mesh, got %d", len(data))
	}
}

func TestRapidEvaluation(t *testing.T) {
	sources := []string{
		segmentScript,
		`(+ 1 2)`,
		``,
		`(defblock "A" (circle (vec3 0 0 0) 1)) (layout "Model" (insert "A"))`,
		`(layout "Model"`,
		furnitureScript,
	}
	for i, src := range sources {
		path := writeFile(t, "rapid.bwl", src)
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Errorf("iteration %d panicked: %v", i, r)
				}
			}()
			_, _ = runCLI(t, "count", path)
		}()
	}
}

func TestScriptTimeoutNamesTheSetting(t *testing.T) {
	path := writeFile(t, "furniture.bwl", furnitureScript)
	_, err := runCLI(t, "count", "--script-timeout", "1ns", path)
	if err == nil {
		t.Fatal("expected the evaluation to time out")
	}
	if !errors.Is(err, engine.ErrTimeout) {
		t.Fatalf("expected engine.ErrTimeout, got %v", err)
	}
	if !strings.Contains(err.Error(), "--script-timeout") {
		t.Errorf("error should name the flag: %v", err)
	}
}

func TestScriptErrorLeavesOtherFailuresAlone(t *testing.T) {
	err := scriptError("a.bwl", errors.Wrap(engine.ErrSuperseded, "generation 1, current 2"))
	if !errors.Is(err, engine.ErrSuperseded) {
		t.Fatalf("cause lost: %v", err)
	}
	if strings.Contains(err.Error(), "timeout") {
		t.Errorf("only timeouts mention the setting: %v", err)
	}

	canceled := scriptError("a.bwl", &engine.TimeoutError{Limit: time.Second, Cause: context.Canceled})
	if strings.Contains(canceled.Error(), "--script-timeout") {
		t.Errorf("a canceled run is not fixed by a longer limit: %v", canceled)
	}
}
