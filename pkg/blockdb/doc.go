// Package blockdb defines the drawing database that block traversals run
// against: block definitions, block references that place a definition with a
// transform, and payload entities. A definition may be referenced any number of
// times, so the reference graph is a DAG with shared sub-definitions.
package blockdb
