// Package field provides the builders used to declare entity fields at
// runtime. A declaration names each field once and configures it through
// chained calls:
//
//	engine.Declare("user",
//		field.String("name"),
//		field.Int("age").Nillable(),
//		field.UUID("token").Unique().DefaultFunc(uuid.New),
//		field.Ref("group", "group").Nillable(),
//	)
//
// Builders never return errors. Invalid configuration, such as an empty or
// reserved name, is held on the descriptor and surfaces when the entity is
// first used.
package field
