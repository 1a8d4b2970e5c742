// Package mixin provides reusable field bundles for entity declarations.
//
// A bundle is a plain []levis.Field slice. Combine a bundle with entity
// specific fields through Extend and splat the result into Engine.Declare:
//
//	doc := e.Declare("document", mixin.Extend(mixin.Tracked(),
//	    field.String("title"),
//	    field.String("body").Nillable(),
//	)...)
//
// Every call returns fresh builders, so the same bundle can be used by any
// number of entities.
//
// # Tracked
//
// Tracked bundles the two bookkeeping fields most entities want:
//
//   - created_at: a timestamp stamped once when the instance is created
//   - external_id: a unique UUID assigned once when the instance is created
//
// There is deliberately no updated_at field: saving rewrites the whole row
// from the instance state and the engine has no mutation hooks that could
// bump a timestamp behind the caller's back.
package mixin
