package blockdb

import (
	"strings"
	"testing"

	"github.com/chazu/blockwalk/pkg/geom"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// buildValidDrawing creates a model space holding two inserts of "Table",
// which in turn holds four inserts of "Leg".
func buildValidDrawing(t *testing.T) *Database {
	t.Helper()
	db := New()
	model, _ := db.AddLayout("Model")
	leg, _ := db.AddDefinition("Leg", geom.Vec{})
	table, _ := db.AddDefinition("Table", geom.Vec{})

	if _, err := db.AddEntity(leg.ID, NewBox(geom.Vec{X: 50, Y: 50, Z: 700}, geom.Vec{})); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		p := DefaultPlacement()
		p.Position = geom.Vec{X: float64(i%2) * 900, Y: float64(i/2) * 500}
		if _, err := db.Insert(table.ID, leg.ID, p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := db.AddEntity(table.ID, NewBox(geom.Vec{X: 950, Y: 550, Z: 25}, geom.Vec{Z: 700})); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		p := DefaultPlacement()
		p.Position = geom.Vec{X: float64(i) * 2000}
		if _, err := db.Insert(model.ID, table.ID, p); err != nil {
			t.Fatal(err)
		}
	}
	return db
}

func hasError(errs ValidationErrors, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityError && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

func hasWarning(errs ValidationErrors, substr string) bool {
	for _, e := range errs {
		if e.Severity == SeverityWarning && strings.Contains(e.Message, substr) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestValidate_ValidDrawing(t *testing.T) {
	errs := Validate(buildValidDrawing(t))
	if len(errs) != 0 {
		t.Fatalf("expected no findings, got %v", errs)
	}
	if errs.Err() != nil {
		t.Errorf("Err() = %v, want nil", errs.Err())
	}
}

func TestValidate_EmptyDatabase(t *testing.T) {
	if errs := Validate(New()); len(errs) != 0 {
		t.Errorf("expected no findings for empty database, got %v", errs)
	}
}

func TestValidate_CycleDetection(t *testing.T) {
	db := buildValidDrawing(t)
	leg := db.MustLookup("Leg")
	table := db.MustLookup("Table")

	// Bypass Insert's checks to create Leg -> Table -> Leg.
	ref := &Node{
		ID:   NewNodeID("bad/leg-table"),
		Kind: KindReference,
		Data: &ReferenceData{Definition: table.ID, Placement: DefaultPlacement()},
	}
	db.Nodes[ref.ID] = ref
	leg.Definition().Children = append(leg.Definition().Children, ref.ID)

	errs := Validate(db)
	if !hasError(errs, "cycle detected") {
		t.Fatalf("expected cycle error, got %v", errs)
	}
	if errs.Err() == nil {
		t.Error("Err() should aggregate the cycle error")
	}
}

func TestValidate_DanglingChild(t *testing.T) {
	db := buildValidDrawing(t)
	leg := db.MustLookup("Leg")
	leg.Definition().Children = append(leg.Definition().Children, NewNodeID("ghost"))

	if errs := Validate(db); !hasError(errs, "does not exist") {
		t.Errorf("expected dangling child error, got %v", errs)
	}
}

func TestValidate_DanglingReferenceTarget(t *testing.T) {
	db := buildValidDrawing(t)
	model := db.MustLookup("Model")
	id, _ := db.Insert(model.ID, db.MustLookup("Leg").ID, DefaultPlacement())
	db.Get(id).Reference().Definition = NewNodeID("block/Missing")

	if errs := Validate(db); !hasError(errs, "reference target") {
		t.Errorf("expected reference target error, got %v", errs)
	}
}

func TestValidate_ReferenceToLayout(t *testing.T) {
	db := buildValidDrawing(t)
	table := db.MustLookup("Table")
	id, _ := db.Insert(table.ID, db.MustLookup("Leg").ID, DefaultPlacement())
	db.Get(id).Reference().Definition = db.MustLookup("Model").ID

	if errs := Validate(db); !hasError(errs, "targets layout") {
		t.Errorf("expected layout target error, got %v", errs)
	}
}

func TestValidate_DefinitionAsChild(t *testing.T) {
	db := buildValidDrawing(t)
	model := db.MustLookup("Model")
	model.Definition().Children = append(model.Definition().Children, db.MustLookup("Leg").ID)

	if errs := Validate(db); !hasError(errs, "placed by reference") {
		t.Errorf("expected definition-as-child error, got %v", errs)
	}
}

func TestValidate_BrokenVariant(t *testing.T) {
	db := buildValidDrawing(t)
	v, _ := db.AddVariant("*U1", db.MustLookup("Leg").ID)
	v.Definition().DynamicOf = NewNodeID("block/Gone")

	if errs := Validate(db); !hasError(errs, "variant canonical") {
		t.Errorf("expected variant error, got %v", errs)
	}
}

func TestValidate_OrphanDefinition(t *testing.T) {
	db := buildValidDrawing(t)
	_, _ = db.AddDefinition("Unused", geom.Vec{})

	errs := Validate(db)
	if !hasWarning(errs, `"Unused" is not referenced`) {
		t.Fatalf("expected orphan warning, got %v", errs)
	}
	if errs.Err() != nil {
		t.Errorf("warnings alone should not produce an error, got %v", errs.Err())
	}
	if len(errs.Warnings()) != 1 {
		t.Errorf("Warnings() = %d, want 1", len(errs.Warnings()))
	}
}

func TestValidate_ZeroScaleWarning(t *testing.T) {
	db := buildValidDrawing(t)
	model := db.MustLookup("Model")
	id, _ := db.Insert(model.ID, db.MustLookup("Leg").ID, DefaultPlacement())
	db.Get(id).Reference().Scale.Y = 0

	if errs := Validate(db); !hasWarning(errs, "zero scale") {
		t.Errorf("expected zero scale warning, got %v", errs)
	}
}

func TestValidationErrorString(t *testing.T) {
	e := ValidationError{Message: "boom", Severity: SeverityError}
	if e.Error() != "[error] boom" {
		t.Errorf("Error() = %q", e.Error())
	}
	e.NodeID = NewNodeID("x")
	if !strings.Contains(e.Error(), e.NodeID.Short()) {
		t.Errorf("Error() = %q should mention the node", e.Error())
	}
}
