package levis_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syssam/levis"
	"github.com/syssam/levis/schema/field"
)

func TestDeclare(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate_entity", func(t *testing.T) {
		e := newEngine(t)
		first := e.Declare("user", field.String("name"))
		second := e.Declare("user", field.Int("age"))
		require.NoError(t, e.Init(ctx))

		// The first declaration stays in place.
		_, err := first.Create(ctx, levis.Values{"name": "a8m"})
		require.NoError(t, err)
		// The second handle fails on first use.
		_, err = second.Create(ctx, levis.Values{"age": 1})
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `entity "user" already declared`)
	})

	t.Run("invalid_entity_name", func(t *testing.T) {
		e := levis.New()
		bad := e.Declare("9lives", field.String("name"))
		_, err := bad.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `invalid entity name "9lives"`)

		empty := e.Declare("", field.String("name"))
		_, err = empty.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, "entity name cannot be empty")
	})

	t.Run("reserved_id_field", func(t *testing.T) {
		e := levis.New()
		ent := e.Declare("user", field.Int("id"))
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `"id" is a reserved field name`)
	})

	t.Run("field_declared_twice", func(t *testing.T) {
		e := levis.New()
		ent := e.Declare("user", field.String("name"), field.Int("name"))
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `field "name" declared twice`)
	})

	t.Run("column_collision", func(t *testing.T) {
		e := levis.New()
		e.Declare("user", field.String("name"))
		// The reference field "owner" stores into "owner_id", colliding
		// with the plain integer field of that name.
		ent := e.Declare("pet", field.Int("owner_id"), field.Ref("owner", "user"))
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `share column "owner_id"`)
	})

	t.Run("undeclared_reference", func(t *testing.T) {
		e := levis.New()
		ent := e.Declare("pet", field.Ref("owner", "ghost"))
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `references undeclared entity "ghost"`)
	})

	t.Run("missing_converter", func(t *testing.T) {
		type unregistered struct{ X int }
		e := levis.New()
		ent := e.Declare("reading", field.Custom[unregistered]("value"))
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, "no converter registered")
	})

	t.Run("error_is_cached", func(t *testing.T) {
		e := levis.New()
		ent := e.Declare("user", field.Int("id"))
		_, first := ent.NewEmpty()
		_, second := ent.NewEmpty()
		assert.Equal(t, first, second)
	})
}

func TestDefaultOrdering(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults_must_trail", func(t *testing.T) {
		e := levis.New()
		ent := e.Declare("job",
			field.String("queue").Default("default"),
			field.Int("attempts"),
		)
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `non-defaulted field "attempts" follows defaulted field "queue"`)
	})

	t.Run("kw_only_lifts_the_rule", func(t *testing.T) {
		e := newEngine(t)
		job := e.Declare("job",
			field.String("queue").Default("default"),
			field.Int("attempts"),
		).KwOnly()
		require.NoError(t, e.Init(ctx))

		o, err := job.Create(ctx, levis.Values{"attempts": 3})
		require.NoError(t, err)
		queue, err := levis.As[string](ctx, o, "queue")
		require.NoError(t, err)
		assert.Equal(t, "default", queue)
	})
}

func TestTableNaming(t *testing.T) {
	ctx := context.Background()

	t.Run("snake_case_of_entity_name", func(t *testing.T) {
		e := newEngine(t)
		profile := e.Declare("UserProfile", field.String("bio"))
		require.NoError(t, e.Init(ctx))
		_, err := profile.Create(ctx, levis.Values{"bio": "hello"})
		require.NoError(t, err)

		rows, err := e.Fetch(ctx, "select count(*) from user_profile")
		require.NoError(t, err)
		require.True(t, rows.Next())
		var n int64
		require.NoError(t, rows.Scan(&n))
		require.NoError(t, rows.Close())
		assert.Equal(t, int64(1), n)
	})

	t.Run("explicit_override", func(t *testing.T) {
		e := newEngine(t)
		user := e.Declare("user", field.String("name")).Table("members")
		require.NoError(t, e.Init(ctx))
		_, err := user.Create(ctx, levis.Values{"name": "a8m"})
		require.NoError(t, err)

		rows, err := e.Fetch(ctx, "select count(*) from members")
		require.NoError(t, err)
		require.True(t, rows.Next())
		var n int64
		require.NoError(t, rows.Scan(&n))
		require.NoError(t, rows.Close())
		assert.Equal(t, int64(1), n)
	})

	t.Run("invalid_override", func(t *testing.T) {
		e := levis.New()
		ent := e.Declare("user", field.String("name")).Table("drop table")
		_, err := ent.NewEmpty()
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `invalid table name "drop table"`)
	})

	t.Run("colliding_tables", func(t *testing.T) {
		e := newEngine(t)
		e.Declare("person", field.String("name")).Table("members")
		e.Declare("crew", field.String("name")).Table("members")
		err := e.Init(ctx)
		require.Error(t, err)
		assert.True(t, levis.IsDeclarationError(err))
		assert.ErrorContains(t, err, `table "members" is already used by entity "person"`)
	})
}

func TestLateBoundReferences(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	// The reference target is declared after the referencing entity;
	// resolution happens on first use, not at declaration time.
	pet := e.Declare("pet", field.String("name"), field.Ref("owner", "user"))
	user := e.Declare("user", field.String("name"))
	require.NoError(t, e.Init(ctx))

	u, err := user.Create(ctx, levis.Values{"name": "a8m"})
	require.NoError(t, err)
	p, err := pet.Create(ctx, levis.Values{"name": "luna", "owner": u})
	require.NoError(t, err)

	owner, err := p.Ref(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, u.ID(), owner.ID())
}
