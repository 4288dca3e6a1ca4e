package blockdb

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
)

// ValidationSeverity indicates whether a validation finding blocks traversal
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks traversal
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	NodeID   NodeID             // which node has the problem (zero if database-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.NodeID.IsZero() {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] node %s: %s", e.Severity, e.NodeID.Short(), e.Message)
}

// ValidationErrors is the result of Validate.
type ValidationErrors []ValidationError

// Err aggregates the error-severity findings, or returns nil if there are none.
func (v ValidationErrors) Err() error {
	var result *multierror.Error
	for _, e := range v {
		if e.Severity == SeverityError {
			result = multierror.Append(result, e)
		}
	}
	return result.ErrorOrNil()
}

// Warnings returns only the warning-severity findings.
func (v ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, e := range v {
		if e.Severity == SeverityWarning {
			out = append(out, e)
		}
	}
	return out
}

// Validate runs the structural checks on db. An empty result means the
// database is safe to traverse. Validate never mutates db.
func Validate(db *Database) ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, validateChildren(db)...)
	errs = append(errs, validateReferences(db)...)
	errs = append(errs, validateAcyclic(db)...)
	errs = append(errs, validateNames(db)...)
	errs = append(errs, validateLayouts(db)...)
	return errs
}

// sortedIDs gives validation a deterministic iteration order.
func sortedIDs(db *Database) []NodeID {
	ids := make([]NodeID, 0, len(db.Nodes))
	for id := range db.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// validateChildren checks that every child id names a node that is not
// itself a definition.
func validateChildren(db *Database) []ValidationError {
	var errs []ValidationError
	for _, id := range sortedIDs(db) {
		dd := db.Nodes[id].Definition()
		if dd == nil {
			continue
		}
		for _, cid := range dd.Children {
			child, ok := db.Nodes[cid]
			switch {
			case !ok:
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("child reference %s does not exist", cid.Short()),
					Severity: SeverityError,
				})
			case child.Kind == KindDefinition:
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("child %s is a definition; definitions may only be placed by reference", cid.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateReferences checks reference targets and anonymous variant links.
func validateReferences(db *Database) []ValidationError {
	var errs []ValidationError
	for _, id := range sortedIDs(db) {
		n := db.Nodes[id]
		switch d := n.Data.(type) {
		case *ReferenceData:
			target, ok := db.Nodes[d.Definition]
			switch {
			case !ok:
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("reference target %s does not exist", d.Definition.Short()),
					Severity: SeverityError,
				})
			case !IsContainer(target):
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("reference target %s is %s, not definition", d.Definition.Short(), target.Kind),
					Severity: SeverityError,
				})
			case target.Definition().Layout:
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("reference targets layout %q", target.Name),
					Severity: SeverityError,
				})
			}
			if d.Scale.X == 0 || d.Scale.Y == 0 || d.Scale.Z == 0 {
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  "reference has a zero scale factor",
					Severity: SeverityWarning,
				})
			}
		case *DefinitionData:
			if d.DynamicOf.IsZero() {
				continue
			}
			if canon, ok := db.Nodes[d.DynamicOf]; !ok || !IsContainer(canon) {
				errs = append(errs, ValidationError{
					NodeID:   id,
					Message:  fmt.Sprintf("variant canonical definition %s does not exist", d.DynamicOf.Short()),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateAcyclic checks that no definition transitively references itself,
// using DFS with 3-color marking over definition -> reference -> definition
// edges.
func validateAcyclic(db *Database) []ValidationError {
	const (
		white = iota
		gray
		black
	)

	color := make(map[NodeID]int)
	var errs []ValidationError

	var visit func(def NodeID) bool // returns true if a cycle was found
	visit = func(def NodeID) bool {
		switch color[def] {
		case black:
			return false
		case gray:
			errs = append(errs, ValidationError{
				NodeID:   def,
				Message:  fmt.Sprintf("cycle detected: definition %q references itself", db.Nodes[def].Name),
				Severity: SeverityError,
			})
			return true
		}
		color[def] = gray
		for _, cid := range db.Nodes[def].Definition().Children {
			child, ok := db.Nodes[cid]
			if !ok || !IsReference(child) {
				continue
			}
			target, ok := db.Nodes[child.Reference().Definition]
			if !ok || !IsContainer(target) {
				continue // reported by validateReferences
			}
			if visit(target.ID) {
				return true
			}
		}
		color[def] = black
		return false
	}

	for _, id := range sortedIDs(db) {
		if IsContainer(db.Nodes[id]) && color[id] == white {
			if visit(id) {
				break
			}
		}
	}
	return errs
}

// validateNames checks that every name index entry points at a definition
// carrying that name.
func validateNames(db *Database) []ValidationError {
	var errs []ValidationError
	names := make([]string, 0, len(db.NameIndex))
	for name := range db.NameIndex {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := db.NameIndex[name]
		n, ok := db.Nodes[id]
		if !ok {
			errs = append(errs, ValidationError{
				Message:  fmt.Sprintf("name index entry %q references non-existent node %s", name, id.Short()),
				Severity: SeverityError,
			})
			continue
		}
		if n.Name != name {
			errs = append(errs, ValidationError{
				NodeID:   id,
				Message:  fmt.Sprintf("name index entry %q points at node named %q", name, n.Name),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateLayouts warns about definitions that no layout reaches.
func validateLayouts(db *Database) []ValidationError {
	var errs []ValidationError
	reachable := make(map[NodeID]bool)
	queue := make([]NodeID, 0, len(db.Layouts))
	for _, lid := range db.Layouts {
		if !reachable[lid] {
			reachable[lid] = true
			queue = append(queue, lid)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := db.Nodes[cur]
		if n == nil || n.Definition() == nil {
			continue
		}
		for _, cid := range n.Definition().Children {
			child := db.Nodes[cid]
			if !IsReference(child) {
				continue
			}
			targets := []NodeID{child.Reference().Definition}
			if t := db.Nodes[targets[0]]; t != nil && t.Definition() != nil && !t.Definition().DynamicOf.IsZero() {
				targets = append(targets, t.Definition().DynamicOf)
			}
			for _, tid := range targets {
				if !reachable[tid] {
					reachable[tid] = true
					queue = append(queue, tid)
				}
			}
		}
	}

	for _, def := range db.Definitions() {
		if !reachable[def.ID] {
			errs = append(errs, ValidationError{
				NodeID:   def.ID,
				Message:  fmt.Sprintf("definition %q is not referenced from any layout", def.Name),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}
