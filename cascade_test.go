package levis_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syssam/levis"
	"github.com/syssam/levis/schema/field"
)

func TestDeleteCascadesChain(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	user := e.Declare("user", field.String("name"))
	pet := e.Declare("pet", field.String("name"), field.Ref("owner", "user"))
	require.NoError(t, e.Init(ctx))

	u1, err := user.Create(ctx, levis.Values{"name": "a8m"})
	require.NoError(t, err)
	u2, err := user.Create(ctx, levis.Values{"name": "nat"})
	require.NoError(t, err)
	for i, owner := range []*levis.Object{u1, u1, u2} {
		_, err := pet.Create(ctx, levis.Values{"name": fmt.Sprintf("pet-%d", i), "owner": owner})
		require.NoError(t, err)
	}

	require.NoError(t, u1.Delete(ctx))
	assert.Equal(t, levis.Stale, u1.State())

	// Only the branch hanging off u1 is gone.
	left, err := pet.Query().All(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	owner, err := left[0].Ref(ctx, "owner")
	require.NoError(t, err)
	assert.Equal(t, u2.ID(), owner.ID())
}

func TestDeleteNullsNillableReferences(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	user := e.Declare("user", field.String("name"))
	car := e.Declare("car",
		field.String("model"),
		field.Int("mileage"),
		field.Ref("owner", "user").Nillable(),
	)
	require.NoError(t, e.Init(ctx))

	u1, err := user.Create(ctx, levis.Values{"name": "a8m"})
	require.NoError(t, err)
	u2, err := user.Create(ctx, levis.Values{"name": "nat"})
	require.NoError(t, err)
	orphaned, err := car.Create(ctx, levis.Values{"model": "delorean", "mileage": 120000, "owner": u1})
	require.NoError(t, err)
	kept, err := car.Create(ctx, levis.Values{"model": "golf", "mileage": 80000, "owner": u2})
	require.NoError(t, err)

	require.NoError(t, u1.Delete(ctx))

	// The dependent row survives with its reference nulled and its other
	// fields intact.
	got, err := car.Get(ctx, orphaned.ID())
	require.NoError(t, err)
	owner, err := got.Ref(ctx, "owner")
	require.NoError(t, err)
	assert.Nil(t, owner)
	mileage, err := levis.As[int64](ctx, got, "mileage")
	require.NoError(t, err)
	assert.Equal(t, int64(120000), mileage)

	// Rows referencing other users are untouched.
	got, err = car.Get(ctx, kept.ID())
	require.NoError(t, err)
	owner, err = got.Ref(ctx, "owner")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, u2.ID(), owner.ID())
}

func TestDeleteMixedEdges(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	user := e.Declare("user", field.String("name"))
	pet := e.Declare("pet", field.String("name"), field.Ref("owner", "user"))
	car := e.Declare("car", field.String("model"), field.Ref("owner", "user").Nillable())
	require.NoError(t, e.Init(ctx))

	u, err := user.Create(ctx, levis.Values{"name": "a8m"})
	require.NoError(t, err)
	_, err = pet.Create(ctx, levis.Values{"name": "luna", "owner": u})
	require.NoError(t, err)
	c, err := car.Create(ctx, levis.Values{"model": "delorean", "owner": u})
	require.NoError(t, err)

	require.NoError(t, u.Delete(ctx))

	n, err := pet.Query().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "non-nillable dependents are deleted")

	got, err := car.Get(ctx, c.ID())
	require.NoError(t, err)
	owner, err := got.Ref(ctx, "owner")
	require.NoError(t, err)
	assert.Nil(t, owner, "nillable dependents are kept with a null reference")
}

func TestDeleteDiamond(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	org := e.Declare("org", field.String("name"))
	team := e.Declare("team", field.String("name"), field.Ref("org", "org"))
	project := e.Declare("project", field.String("name"), field.Ref("org", "org"))
	task := e.Declare("task",
		field.String("title"),
		field.Ref("team", "team"),
		field.Ref("project", "project"),
	)
	require.NoError(t, e.Init(ctx))

	o, err := org.Create(ctx, levis.Values{"name": "acme"})
	require.NoError(t, err)
	tm, err := team.Create(ctx, levis.Values{"name": "core", "org": o})
	require.NoError(t, err)
	pr, err := project.Create(ctx, levis.Values{"name": "launch", "org": o})
	require.NoError(t, err)
	_, err = task.Create(ctx, levis.Values{"title": "ship it", "team": tm, "project": pr})
	require.NoError(t, err)

	// The task is reachable through both the team and the project; the
	// second branch finds it already gone and dies out quietly.
	require.NoError(t, o.Delete(ctx))

	for _, ent := range []*levis.Entity{team, project, task} {
		n, err := ent.Query().Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n, ent.Name())
	}
}

func TestDeleteMutualCycle(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	author := e.Declare("author", field.String("name"), field.Ref("favorite", "book"))
	book := e.Declare("book", field.String("title"), field.Ref("writer", "author"))
	require.NoError(t, e.Init(ctx))

	// The builders cannot create mutually referencing rows; seed them
	// through the raw layer (no foreign keys guard the columns).
	aid, err := e.Exec(ctx, "insert into author (name, favorite_id) values (?, ?)", "nat", 1)
	require.NoError(t, err)
	bid, err := e.Exec(ctx, "insert into book (title, writer_id) values (?, ?)", "dust", aid)
	require.NoError(t, err)

	a, err := author.Get(ctx, aid)
	require.NoError(t, err)
	fav, err := a.Ref(ctx, "favorite")
	require.NoError(t, err)
	require.Equal(t, bid, fav.ID())

	// Deleting either end unwinds the cycle instead of recursing forever.
	require.NoError(t, a.Delete(ctx))

	n, err := author.Query().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = book.Query().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteSelfReference(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	node := e.Declare("node", field.String("name"), field.Ref("parent", "node"))
	require.NoError(t, e.Init(ctx))

	// A root pointing at itself, with a chain of children below it.
	rootID, err := e.Exec(ctx, "insert into node (name, parent_id) values (?, ?)", "root", 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), rootID)
	root, err := node.Get(ctx, rootID)
	require.NoError(t, err)
	child, err := node.Create(ctx, levis.Values{"name": "child", "parent": root})
	require.NoError(t, err)
	_, err = node.Create(ctx, levis.Values{"name": "grandchild", "parent": child})
	require.NoError(t, err)

	require.NoError(t, root.Delete(ctx))

	n, err := node.Query().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueryDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("single_statement_without_inbound_edges", func(t *testing.T) {
		e := newEngine(t, levis.CollectStats())
		user := e.Declare("user", field.String("name"), field.Int("age"))
		require.NoError(t, e.Init(ctx))
		for i := 0; i < 5; i++ {
			_, err := user.Create(ctx, levis.Values{"name": fmt.Sprintf("user-%d", i), "age": i})
			require.NoError(t, err)
		}

		before, _ := e.Stats()
		require.NoError(t, user.Query().Where(levis.Lt("age", 3)).Delete(ctx))
		after, _ := e.Stats()
		assert.Equal(t, before.TotalExecs+1, after.TotalExecs)
		assert.Equal(t, before.TotalQueries, after.TotalQueries)

		n, err := user.Query().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("windowed", func(t *testing.T) {
		e := newEngine(t)
		event := e.Declare("event", field.String("kind"))
		require.NoError(t, e.Init(ctx))
		for i := 0; i < 20; i++ {
			_, err := event.Create(ctx, levis.Values{"kind": "audit"})
			require.NoError(t, err)
		}

		// Keep the newest ten: walk them newest-first, skip the ten to
		// keep and delete the rest.
		require.NoError(t, event.Query().OrderBy("-id").Offset(10).Delete(ctx))

		rows, err := event.Query().OrderBy("id").Values(ctx, "id")
		require.NoError(t, err)
		require.Len(t, rows, 10)
		assert.Equal(t, int64(11), rows[0][0])
		assert.Equal(t, int64(20), rows[9][0])
	})

	t.Run("cascades_per_row", func(t *testing.T) {
		e := newEngine(t)
		user := e.Declare("user", field.String("name"), field.Int("age"))
		pet := e.Declare("pet", field.String("name"), field.Ref("owner", "user"))
		require.NoError(t, e.Init(ctx))

		young, err := user.Create(ctx, levis.Values{"name": "young", "age": 20})
		require.NoError(t, err)
		old, err := user.Create(ctx, levis.Values{"name": "old", "age": 70})
		require.NoError(t, err)
		_, err = pet.Create(ctx, levis.Values{"name": "luna", "owner": young})
		require.NoError(t, err)
		keptPet, err := pet.Create(ctx, levis.Values{"name": "rex", "owner": old})
		require.NoError(t, err)

		require.NoError(t, user.Query().Where(levis.Lt("age", 65)).Delete(ctx))

		users, err := user.Query().All(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		assert.Equal(t, old.ID(), users[0].ID())

		pets, err := pet.Query().All(ctx)
		require.NoError(t, err)
		require.Len(t, pets, 1)
		assert.Equal(t, keptPet.ID(), pets[0].ID())
	})

	t.Run("matching_nothing", func(t *testing.T) {
		e := newEngine(t)
		user := e.Declare("user", field.String("name"))
		require.NoError(t, e.Init(ctx))
		assert.NoError(t, user.Query().Where(levis.Eq("name", "nobody")).Delete(ctx))
	})
}
