package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/blockwalk/pkg/blockdb"
	"github.com/chazu/blockwalk/pkg/geom"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpVec3 wraps a geom.Vec.
type sexpVec3 struct {
	vec geom.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpEntity is a payload entity waiting to be added to a container.
type sexpEntity struct {
	entity blockdb.Entity
}

func (e *sexpEntity) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s)", e.entity.Type())
}
func (e *sexpEntity) Type() *zygo.RegisteredType { return nil }

// sexpInsert is a reference waiting to be placed in a container. The target
// is resolved by name when the container is built.
type sexpInsert struct {
	target    string
	placement blockdb.Placement
}

func (r *sexpInsert) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(insert %q)", r.target)
}
func (r *sexpInsert) Type() *zygo.RegisteredType { return nil }

// sexpBlock is the value of defblock, layout and dynamic.
type sexpBlock struct {
	id   blockdb.NodeID
	name string
}

func (b *sexpBlock) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(block %q)", b.name)
}
func (b *sexpBlock) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok || !strings.HasPrefix(str.S, kwPrefix) {
		return "", false
	}
	return str.S[len(kwPrefix):], true
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Trailing keyword with no value acts as a flag.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// float returns keyword key as a number, or def when absent.
func (a kwArgs) float(key string, def float64) (float64, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// vec returns keyword key as a vec3, or def when absent.
func (a kwArgs) vec(key string, def geom.Vec) (geom.Vec, error) {
	v, ok := a.kw[key]
	if !ok {
		return def, nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return geom.Vec{}, fmt.Errorf("%s: %w", key, err)
	}
	return vec, nil
}

// flag reports keyword key as a boolean. A bare trailing keyword is true.
func (a kwArgs) flag(key string) (bool, error) {
	v, ok := a.kw[key]
	if !ok {
		return false, nil
	}
	switch b := v.(type) {
	case *zygo.SexpBool:
		return b.Val, nil
	case *zygo.SexpSentinel:
		return b == zygo.SexpNull, nil
	}
	return false, fmt.Errorf("%s: expected true or false, got %s", key, v.SexpString(nil))
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toVec3 extracts a Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (geom.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return geom.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toScale accepts either a vec3 or a single number for a uniform scale.
func toScale(s zygo.Sexp) (geom.Vec, error) {
	if f, err := toFloat64(s); err == nil {
		return geom.Vec{X: f, Y: f, Z: f}, nil
	}
	return toVec3(s)
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

// flattenItems collects entities and inserts from a container body. Lists
// and arrays are flattened so bodies can be generated with map or loops.
func flattenItems(args []zygo.Sexp, out []zygo.Sexp) ([]zygo.Sexp, error) {
	for _, a := range args {
		switch v := a.(type) {
		case *sexpEntity, *sexpInsert:
			out = append(out, v)
		case *zygo.SexpPair, *zygo.SexpArray:
			items, err := sexpListToSlice(v)
			if err != nil {
				return nil, err
			}
			if out, err = flattenItems(items, out); err != nil {
				return nil, err
			}
		case *zygo.SexpSentinel:
			if v != zygo.SexpNull {
				return nil, fmt.Errorf("unexpected %s in block body", v.SexpString(nil))
			}
		default:
			return nil, fmt.Errorf("expected entity or insert in block body, got %T (%s)", a, a.SexpString(nil))
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Container construction
// ---------------------------------------------------------------------------

// fillContainer adds body items to the definition def, resolving inserts by
// name against db.
func fillContainer(db *blockdb.Database, def *blockdb.Node, body []zygo.Sexp) error {
	items, err := flattenItems(body, nil)
	if err != nil {
		return err
	}
	for _, it := range items {
		switch v := it.(type) {
		case *sexpEntity:
			if _, err := db.AddEntity(def.ID, v.entity); err != nil {
				return err
			}
		case *sexpInsert:
			target := db.Lookup(v.target)
			if target == nil {
				return fmt.Errorf("insert: no block named %q", v.target)
			}
			if _, err := db.Insert(def.ID, target.ID, v.placement); err != nil {
				return fmt.Errorf("insert %q: %w", v.target, err)
			}
		}
	}
	return nil
}

// containerBuiltin builds the shared shape of defblock, layout and dynamic:
// nameArgs leading string arguments, then keywords and body items.
func containerBuiltin(
	db *blockdb.Database,
	fn string,
	nameArgs int,
	create func(names []string, pa kwArgs) (*blockdb.Node, error),
) func(*zygo.Zlisp, string, []zygo.Sexp) (zygo.Sexp, error) {
	return func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) < nameArgs {
			return zygo.SexpNull, fmt.Errorf("%s requires %d name argument(s)", fn, nameArgs)
		}
		names := make([]string, nameArgs)
		for i := range names {
			s, err := toString(pa.positional[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: name: %w", fn, err)
			}
			names[i] = s
		}

		def, err := create(names, pa)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("%s %q: %w", fn, names[0], err)
		}
		if err := fillContainer(db, def, pa.positional[nameArgs:]); err != nil {
			return zygo.SexpNull, fmt.Errorf("%s %q: %w", fn, names[0], err)
		}
		return &sexpBlock{id: def.ID, name: def.Name}, nil
	}
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the drawing builtins into a zygomys environment.
// Container builtins populate db as they are evaluated.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, db *blockdb.Database) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var c [3]float64
		for i, a := range args {
			f, err := toFloat64(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %c: %w", "xyz"[i], err)
			}
			c[i] = f
		}
		return &sexpVec3{vec: geom.Vec{X: c[0], Y: c[1], Z: c[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (defblock "Chair" :origin (vec3 0 0 0) (line ...) (insert ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("defblock", containerBuiltin(db, "defblock", 1,
		func(names []string, pa kwArgs) (*blockdb.Node, error) {
			origin, err := pa.vec("origin", geom.Vec{})
			if err != nil {
				return nil, err
			}
			return db.AddDefinition(names[0], origin)
		}))

	// -----------------------------------------------------------------------
	// (layout "Model" (insert ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("layout", containerBuiltin(db, "layout", 1,
		func(names []string, _ kwArgs) (*blockdb.Node, error) {
			return db.AddLayout(names[0])
		}))

	// -----------------------------------------------------------------------
	// (dynamic "*U1" "Door" (line ...) ...)
	// -----------------------------------------------------------------------
	env.AddFunction("dynamic", containerBuiltin(db, "dynamic", 2,
		func(names []string, _ kwArgs) (*blockdb.Node, error) {
			canon := db.Lookup(names[1])
			if canon == nil {
				return nil, fmt.Errorf("no canonical block named %q", names[1])
			}
			return db.AddVariant(names[0], canon.ID)
		}))

	// -----------------------------------------------------------------------
	// (line (vec3 0 0 0) (vec3 10 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("line", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("line requires a start and an end point")
		}
		from, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: from: %w", err)
		}
		to, err := toVec3(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("line: to: %w", err)
		}
		return &sexpEntity{entity: &blockdb.Line{From: from, To: to}}, nil
	})

	// -----------------------------------------------------------------------
	// (arc (vec3 0 0 0) 5 0 90)
	// -----------------------------------------------------------------------
	env.AddFunction("arc", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 4 {
			return zygo.SexpNull, fmt.Errorf("arc requires center, radius, start and end angle")
		}
		center, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("arc: center: %w", err)
		}
		var nums [3]float64
		for i, a := range args[1:] {
			if nums[i], err = toFloat64(a); err != nil {
				return zygo.SexpNull, fmt.Errorf("arc: %w", err)
			}
		}
		if nums[0] <= 0 {
			return zygo.SexpNull, fmt.Errorf("arc: radius must be positive, got %g", nums[0])
		}
		return &sexpEntity{entity: &blockdb.Arc{
			Center: center, Radius: nums[0], StartAngle: nums[1], EndAngle: nums[2],
		}}, nil
	})

	// -----------------------------------------------------------------------
	// (circle (vec3 0 0 0) 5)
	// -----------------------------------------------------------------------
	env.AddFunction("circle", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 {
			return zygo.SexpNull, fmt.Errorf("circle requires a center and a radius")
		}
		center, err := toVec3(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: center: %w", err)
		}
		r, err := toFloat64(args[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("circle: radius: %w", err)
		}
		if r <= 0 {
			return zygo.SexpNull, fmt.Errorf("circle: radius must be positive, got %g", r)
		}
		return &sexpEntity{entity: &blockdb.Circle{Center: center, Radius: r}}, nil
	})

	// -----------------------------------------------------------------------
	// (polyline :closed true (vec3 0 0 0) (vec3 1 0 0) (vec3 1 1 0))
	// -----------------------------------------------------------------------
	env.AddFunction("polyline", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		closed, err := pa.flag("closed")
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("polyline: %w", err)
		}
		if len(pa.positional) < 2 {
			return zygo.SexpNull, fmt.Errorf("polyline requires at least 2 vertices, got %d", len(pa.positional))
		}
		p := &blockdb.Polyline{Closed: closed}
		for i, a := range pa.positional {
			v, err := toVec3(a)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("polyline: vertex %d: %w", i, err)
			}
			p.Vertices = append(p.Vertices, v)
		}
		return &sexpEntity{entity: p}, nil
	})

	// -----------------------------------------------------------------------
	// (text "Kitchen" :at (vec3 0 0 0) :height 2.5 :rotation 0)
	// -----------------------------------------------------------------------
	env.AddFunction("text", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("text requires a value")
		}
		value, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("text: value: %w", err)
		}
		t := &blockdb.Text{Value: value}
		if t.Position, err = pa.vec("at", geom.Vec{}); err != nil {
			return zygo.SexpNull, fmt.Errorf("text: %w", err)
		}
		if t.Height, err = pa.float("height", 1); err != nil {
			return zygo.SexpNull, fmt.Errorf("text: %w", err)
		}
		if t.Rotation, err = pa.float("rotation", 0); err != nil {
			return zygo.SexpNull, fmt.Errorf("text: %w", err)
		}
		return &sexpEntity{entity: t}, nil
	})

	// -----------------------------------------------------------------------
	// (box :size (vec3 400 200 19) :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("box", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		size, err := pa.vec("size", geom.Vec{})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		if size.X <= 0 || size.Y <= 0 || size.Z <= 0 {
			return zygo.SexpNull, fmt.Errorf("box: size must be positive on every axis")
		}
		at, err := pa.vec("at", geom.Vec{})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("box: %w", err)
		}
		return &sexpEntity{entity: blockdb.NewBox(size, at)}, nil
	})

	// -----------------------------------------------------------------------
	// (cylinder :height 50 :radius 4 :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("cylinder", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		h, err := pa.float("height", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		r, err := pa.float("radius", 0)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		if h <= 0 || r <= 0 {
			return zygo.SexpNull, fmt.Errorf("cylinder: height and radius must be positive")
		}
		at, err := pa.vec("at", geom.Vec{})
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("cylinder: %w", err)
		}
		return &sexpEntity{entity: blockdb.NewCylinder(r, h, at)}, nil
	})

	// -----------------------------------------------------------------------
	// (insert "Chair" :at (vec3 10 0 0) :scale 2 :rotation 90)
	// -----------------------------------------------------------------------
	env.AddFunction("insert", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("insert requires a block name")
		}
		target, err := toString(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("insert: block: %w", err)
		}
		p := blockdb.DefaultPlacement()
		if p.Position, err = pa.vec("at", geom.Vec{}); err != nil {
			return zygo.SexpNull, fmt.Errorf("insert: %w", err)
		}
		if v, ok := pa.kw["scale"]; ok {
			if p.Scale, err = toScale(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("insert: scale: %w", err)
			}
		}
		if p.Rotation, err = pa.float("rotation", 0); err != nil {
			return zygo.SexpNull, fmt.Errorf("insert: %w", err)
		}
		return &sexpInsert{target: target, placement: p}, nil
	})
}
