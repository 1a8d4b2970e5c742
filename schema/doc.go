// Package schema groups the building blocks for declaring levis entities.
//
// Entities are declared at runtime, there is no code generation step. The
// subpackages provide what a declaration is made of:
//
//   - [field]: field builders for entity attributes and references
//   - [mixin]: reusable field bundles
//
// # Declaring an Entity
//
// Declare an entity on an engine by naming it and listing its fields:
//
//	user := e.Declare("user",
//	    field.String("email").Unique(),
//	    field.String("name"),
//	    field.Int("age").Nillable(),
//	    field.Bool("active").Default(true),
//	)
//	pet := e.Declare("pet",
//	    field.String("name"),
//	    field.Ref("owner", "user"),
//	)
//
// Declare never fails. Validation runs when the entity is first used, so
// entities can reference each other in any order, including cycles. An "id"
// int64 primary key is implied on every entity and cannot be declared.
//
// # Tables
//
// The backing table is the snake_case form of the entity name. Override it
// with Entity.Table before the first use:
//
//	e.Declare("UserProfile", ...)            // table "user_profile"
//	e.Declare("person", ...).Table("people") // table "people"
package schema
