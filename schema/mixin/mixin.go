package mixin

import (
	"time"

	"github.com/google/uuid"

	"github.com/syssam/levis"
	"github.com/syssam/levis/schema/field"
)

// CreatedAt returns a "created_at" timestamp field stamped once when the
// instance is created.
func CreatedAt() levis.Field {
	return field.Time("created_at").DefaultFunc(time.Now)
}

// ExternalID returns a unique "external_id" UUID field assigned once when
// the instance is created. It gives rows a stable identity that survives
// export and re-import, unlike the engine-assigned integer id.
func ExternalID() levis.Field {
	return field.UUID("external_id").Unique().DefaultFunc(uuid.New)
}

// Tracked bundles CreatedAt and ExternalID.
func Tracked() []levis.Field {
	return []levis.Field{CreatedAt(), ExternalID()}
}

// Extend appends entity specific fields to a bundle. The bundle is copied,
// never mutated.
func Extend(bundle []levis.Field, fields ...levis.Field) []levis.Field {
	out := make([]levis.Field, 0, len(bundle)+len(fields))
	out = append(out, bundle...)
	return append(out, fields...)
}
