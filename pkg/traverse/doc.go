// Package traverse walks the block reference graph of a drawing database.
//
// A Traverser starts at one or more roots, each a definition (typically a
// layout such as model space) or a reference. Every reference it meets is
// entered: a Frame is pushed onto the Stack carrying the reference, its
// resolved definition, its local transform and a display name, the
// definition's children are visited, and the frame is popped again. Payload
// entities are handed to the hooks together with the live Stack, so a hook
// can ask for the accumulated world transform or the name path at any point.
//
// The children of a definition are enumerated and filtered once per run no
// matter how many references share it; the VisitCache holds the result.
//
// Callers customise a run through the Hooks interface. NopHooks provides the
// defaults, and Dispatcher routes payloads to handlers registered per entity
// type, choosing the most specific registration for each concrete type.
package traverse
