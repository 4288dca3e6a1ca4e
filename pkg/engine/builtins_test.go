package engine

import (
	"strings"
	"testing"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
	"github.com/chazu/blockwalk/pkg/visitors"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(text "A" :height 2)`,
			expect: `(text "A" "__kw_height" 2)`,
		},
		{
			name:   "multiple keywords",
			input:  `(insert "Chair" :at p :rotation 90)`,
			expect: `(insert "Chair" "__kw_at" p "__kw_rotation" 90)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "escaped quote in string",
			input:  `"say \":hi\"" :at`,
			expect: `"say \":hi\"" "__kw_at"`,
		},
		{
			name:   "backtick string preserved",
			input:  "`raw :kw`",
			expect: "`raw :kw`",
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def chair-row 3)`,
			expect: `(def chair_row 3)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:base-point`,
			expect: `"__kw_base-point"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func mustEvaluate(t *testing.T, source string) *blockdb.Database {
	t.Helper()
	db, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if db == nil {
		t.Fatal("expected non-nil database")
	}
	return db
}

func expectEvalError(t *testing.T, source, want string) {
	t.Helper()
	db, evalErrs, err := NewEngine().Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if db != nil {
		t.Fatal("expected nil database on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected at least one eval error")
	}
	if !strings.Contains(evalErrs[0].Message, want) {
		t.Errorf("error %q should mention %q", evalErrs[0].Message, want)
	}
}

func payloads(t *testing.T, db *blockdb.Database, name string) []blockdb.Entity {
	t.Helper()
	def := db.Lookup(name)
	if def == nil {
		t.Fatalf("expected block named %q", name)
	}
	var out []blockdb.Entity
	for _, id := range def.Definition().Children {
		if e := db.Get(id).Entity(); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func references(t *testing.T, db *blockdb.Database, name string) []*blockdb.ReferenceData {
	t.Helper()
	def := db.Lookup(name)
	if def == nil {
		t.Fatalf("expected block named %q", name)
	}
	var out []*blockdb.ReferenceData
	for _, id := range def.Definition().Children {
		if r := db.Get(id).Reference(); r != nil {
			out = append(out, r)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Builtin tests
// ---------------------------------------------------------------------------

func TestDefblockWithEntities(t *testing.T) {
	db := mustEvaluate(t, `
(defblock "Chair" :origin (vec3 1 1 0)
  (line (vec3 0 0 0) (vec3 10 0 0))
  (arc (vec3 5 5 0) 5 0 180)
  (circle (vec3 5 5 0) 1))
`)
	chair := db.Lookup("Chair")
	if chair.Kind != blockdb.KindDefinition {
		t.Fatalf("expected a definition, got %s", chair.Kind)
	}
	if chair.Definition().Origin != (geom.Vec{X: 1, Y: 1}) {
		t.Errorf("origin = %v", chair.Definition().Origin)
	}

	es := payloads(t, db, "Chair")
	if len(es) != 3 {
		t.Fatalf("expected 3 payloads, got %d", len(es))
	}
	line, ok := es[0].(*blockdb.Line)
	if !ok {
		t.Fatalf("expected *Line first, got %T", es[0])
	}
	if line.To.X != 10 {
		t.Errorf("line end = %v", line.To)
	}
	arc := es[1].(*blockdb.Arc)
	if arc.Radius != 5 || arc.EndAngle != 180 {
		t.Errorf("arc = %+v", arc)
	}
	if c := es[2].(*blockdb.Circle); c.Radius != 1 {
		t.Errorf("circle radius = %f", c.Radius)
	}
}

func TestVariableReference(t *testing.T) {
	db := mustEvaluate(t, `
(def h 2.5)
(def corner (vec3 3 4 0))
(defblock "Label" (text "Kitchen" :at corner :height h :rotation 45))
`)
	txt := payloads(t, db, "Label")[0].(*blockdb.Text)
	if txt.Value != "Kitchen" {
		t.Errorf("value = %q", txt.Value)
	}
	if txt.Height != 2.5 || txt.Rotation != 45 {
		t.Errorf("height/rotation = %f/%f", txt.Height, txt.Rotation)
	}
	if txt.Position != (geom.Vec{X: 3, Y: 4}) {
		t.Errorf("position = %v", txt.Position)
	}
}

func TestLayoutWithInserts(t *testing.T) {
	db := mustEvaluate(t, `
(defblock "Chair" (line (vec3 0 0 0) (vec3 1 0 0)))
(layout "Model"
  (insert "Chair" :at (vec3 10 0 0))
  (insert "Chair" :at (vec3 20 0 0) :scale 2 :rotation 90)
  (insert "Chair" :scale (vec3 1 -1 1)))
`)
	if len(db.Layouts) != 1 {
		t.Fatalf("expected 1 layout, got %d", len(db.Layouts))
	}
	refs := references(t, db, "Model")
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %d", len(refs))
	}
	chair := db.MustLookup("Chair").ID
	for i, r := range refs {
		if r.Definition != chair {
			t.Errorf("reference %d targets %s", i, r.Definition.Short())
		}
	}
	if refs[0].Placement.Position.X != 10 || refs[0].Placement.Scale != (geom.Vec{X: 1, Y: 1, Z: 1}) {
		t.Errorf("first placement = %+v", refs[0].Placement)
	}
	if refs[1].Placement.Scale != (geom.Vec{X: 2, Y: 2, Z: 2}) || refs[1].Placement.Rotation != 90 {
		t.Errorf("second placement = %+v", refs[1].Placement)
	}
	if refs[2].Placement.Scale.Y != -1 {
		t.Errorf("third placement = %+v", refs[2].Placement)
	}
}

func TestInsertUnknownBlock(t *testing.T) {
	expectEvalError(t, `(layout "Model" (insert "Ghost"))`, `no block named "Ghost"`)
}

func TestDuplicateBlockName(t *testing.T) {
	expectEvalError(t, `
(defblock "A" (circle (vec3 0 0 0) 1))
(defblock "A" (circle (vec3 0 0 0) 2))
`, "duplicate")
}

func TestDynamicVariant(t *testing.T) {
	db := mustEvaluate(t, `
(defblock "Door" (line (vec3 0 0 0) (vec3 0 2 0)))
(dynamic "*U1" "Door" (line (vec3 0 0 0) (vec3 0 3 0)))
(layout "Model" (insert "*U1") (insert "Door"))
`)
	v := db.MustLookup("*U1")
	dd := v.Definition()
	if !dd.Anonymous {
		t.Error("variant should be anonymous")
	}
	if dd.DynamicOf != db.MustLookup("Door").ID {
		t.Error("variant should point at its canonical block")
	}

	c := visitors.NewBlockCounter(db, blockdb.ResolveCanonical)
	if _, err := c.Run([]blockdb.NodeID{db.MustLookup("Model").ID}, true); err != nil {
		t.Fatalf("count: %v", err)
	}
	if c.Counts["Door"] != 2 {
		t.Errorf("canonical count = %v", c.Counts)
	}
}

func TestDynamicUnknownCanonical(t *testing.T) {
	expectEvalError(t, `(dynamic "*U1" "Nope")`, "no canonical block")
}

func TestPolyline(t *testing.T) {
	db := mustEvaluate(t, `
(defblock "Room"
  (polyline :closed true (vec3 0 0 0) (vec3 4 0 0) (vec3 4 3 0) (vec3 0 3 0))
  (polyline (vec3 0 0 0) (vec3 1 1 0)))
`)
	es := payloads(t, db, "Room")
	closed := es[0].(*blockdb.Polyline)
	if !closed.Closed || len(closed.Vertices) != 4 {
		t.Errorf("closed polyline = %+v", closed)
	}
	if closed.Length() != 14 {
		t.Errorf("perimeter = %f, want 14", closed.Length())
	}
	if open := es[1].(*blockdb.Polyline); open.Closed {
		t.Error("polyline without :closed should be open")
	}
}

func TestPolylineTooShort(t *testing.T) {
	expectEvalError(t, `(defblock "P" (polyline (vec3 0 0 0)))`, "at least 2 vertices")
}

func TestSolids(t *testing.T) {
	db := mustEvaluate(t, `
(defblock "Leg"
  (box :size (vec3 50 50 700))
  (cylinder :height 20 :radius 4 :at (vec3 25 25 710)))
`)
	es := payloads(t, db, "Leg")
	box := es[0].(*blockdb.Solid)
	if box.Shape != blockdb.ShapeBox || box.Size.Z != 700 {
		t.Errorf("box = %+v", box)
	}
	cyl := es[1].(*blockdb.Solid)
	if cyl.Shape != blockdb.ShapeCylinder || cyl.Size.X != 4 || cyl.Size.Z != 20 {
		t.Errorf("cylinder = %+v", cyl)
	}
	if o := geom.Origin(cyl.Placement); o != (geom.Vec{X: 25, Y: 25, Z: 710}) {
		t.Errorf("cylinder placed at %v", o)
	}
}

func TestInvalidSolids(t *testing.T) {
	expectEvalError(t, `(defblock "B" (box :size (vec3 1 0 1)))`, "positive")
	expectEvalError(t, `(defblock "C" (cylinder :height 1))`, "positive")
}

func TestBodyFromList(t *testing.T) {
	db := mustEvaluate(t, `
(defblock "Chair" (circle (vec3 0 0 0) 1))
(def row (list (insert "Chair" :at (vec3 0 0 0)) (insert "Chair" :at (vec3 10 0 0))))
(layout "Model" row (insert "Chair" :at (vec3 20 0 0)))
`)
	if got := len(references(t, db, "Model")); got != 3 {
		t.Errorf("expected 3 references from list and body, got %d", got)
	}
}

func TestBodyRejectsNonEntity(t *testing.T) {
	expectEvalError(t, `(defblock "X" 42)`, "expected entity or insert")
}

func TestVec3(t *testing.T) {
	db := mustEvaluate(t, `(defblock "P" (line (vec3 1.5 -2 3) (vec3 0 0 0)))`)
	line := payloads(t, db, "P")[0].(*blockdb.Line)
	if line.From != (geom.Vec{X: 1.5, Y: -2, Z: 3}) {
		t.Errorf("vec3 = %v", line.From)
	}

	expectEvalError(t, `(vec3 1 2)`, "exactly 3 arguments")
	expectEvalError(t, `(vec3 1 2 "z")`, "expected number")
}

func TestWrongArgumentTypes(t *testing.T) {
	expectEvalError(t, `(line 1 (vec3 0 0 0))`, "expected vec3")
	expectEvalError(t, `(circle (vec3 0 0 0) -1)`, "radius must be positive")
	expectEvalError(t, `(text 12)`, "expected string")
	expectEvalError(t, `(polyline :closed 3 (vec3 0 0 0) (vec3 1 0 0))`, "true or false")
}

func TestScriptDrivesTraversal(t *testing.T) {
	db := mustEvaluate(t, `
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
`)
	if errs := blockdb.Validate(db).Err(); errs != nil {
		t.Fatalf("validate: %v", errs)
	}

	c := visitors.NewBlockCounter(db, blockdb.ResolveInstantiated)
	if _, err := c.Run([]blockdb.NodeID{db.MustLookup("Model").ID}, true); err != nil {
		t.Fatalf("count: %v", err)
	}
	if c.Counts["Chair"] != 3 || c.Counts["Table"] != 1 {
		t.Errorf("counts = %v", c.Counts)
	}
}

func TestEmptySourceStillWorks(t *testing.T) {
	db := mustEvaluate(t, "")
	if db.NodeCount() != 0 {
		t.Errorf("expected 0 nodes, got %d", db.NodeCount())
	}
}

func TestArithmeticStillWorks(t *testing.T) {
	db := mustEvaluate(t, `
(def w (+ 100 200))
(defblock "Slab" (box :size (vec3 w 10 10)))
`)
	box := payloads(t, db, "Slab")[0].(*blockdb.Solid)
	if box.Size.X != 300 {
		t.Errorf("expected width 300 from arithmetic, got %f", box.Size.X)
	}
}
