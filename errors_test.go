package levis_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syssam/levis"
)

func TestNotFoundError(t *testing.T) {
	err := levis.NewNotFoundError("user")
	assert.EqualError(t, err, "levis: user not found")
	assert.Equal(t, "user", err.Label())
	assert.Nil(t, err.ID())
	assert.ErrorIs(t, err, levis.ErrNotFound)
	assert.True(t, levis.IsNotFound(err))

	withID := levis.NewNotFoundErrorWithID("user", int64(42))
	assert.EqualError(t, withID, "levis: user not found (id=42)")
	assert.Equal(t, int64(42), withID.ID())

	wrapped := fmt.Errorf("loading profile: %w", withID)
	assert.True(t, levis.IsNotFound(wrapped))
	var nfe *levis.NotFoundError
	require.ErrorAs(t, wrapped, &nfe)
	assert.Equal(t, "user", nfe.Label())

	assert.False(t, levis.IsNotFound(nil))
	assert.False(t, levis.IsNotFound(errors.New("other")))
	assert.False(t, levis.IsNotFound(levis.NewNotSingularError("user")))
}

func TestNotSingularError(t *testing.T) {
	err := levis.NewNotSingularError("user")
	assert.EqualError(t, err, "levis: user not singular")
	assert.Equal(t, "user", err.Label())
	assert.Equal(t, -1, err.Count())
	assert.ErrorIs(t, err, levis.ErrNotSingular)
	assert.True(t, levis.IsNotSingular(err))

	counted := levis.NewNotSingularErrorWithCount("user", 3)
	assert.EqualError(t, counted, "levis: user not singular (got 3 results, expected 1)")
	assert.Equal(t, 3, counted.Count())

	assert.False(t, levis.IsNotSingular(nil))
	assert.False(t, levis.IsNotSingular(levis.NewNotFoundError("user")))
}

func TestAlreadyExistsError(t *testing.T) {
	storage := errors.New("constraint failed: UNIQUE constraint failed: user.email (1555)")
	err := levis.NewAlreadyExistsError("user", storage)
	assert.EqualError(t, err, "levis: user with the same email already exists")
	assert.Equal(t, "user", err.Label())
	assert.Equal(t, "email", err.Column())
	assert.ErrorIs(t, err, levis.ErrAlreadyExists)
	assert.Equal(t, storage, errors.Unwrap(err))
	assert.True(t, levis.IsAlreadyExists(err))

	// A multi-column violation reports the first column.
	multi := levis.NewAlreadyExistsError("user", errors.New("UNIQUE constraint failed: user.first, user.last"))
	assert.Equal(t, "first", multi.Column())

	// No extractable column falls back to the bare message.
	bare := levis.NewAlreadyExistsError("user", errors.New("disk I/O error"))
	assert.Equal(t, "", bare.Column())
	assert.EqualError(t, bare, "levis: user already exists")

	assert.False(t, levis.IsAlreadyExists(nil))
	assert.False(t, levis.IsAlreadyExists(errors.New("other")))
}

func TestDeclarationError(t *testing.T) {
	err := levis.NewDeclarationError("user", errors.New(`field "name" declared twice`))
	assert.EqualError(t, err, `levis: declaring "user": field "name" declared twice`)
	assert.True(t, levis.IsDeclarationError(err))
	assert.True(t, levis.IsDeclarationError(fmt.Errorf("init: %w", err)))

	anon := levis.NewDeclarationError("", errors.New("entity name cannot be empty"))
	assert.EqualError(t, anon, "levis: declaration: entity name cannot be empty")

	assert.False(t, levis.IsDeclarationError(nil))
	assert.False(t, levis.IsDeclarationError(errors.New("other")))
}

func TestValidationError(t *testing.T) {
	cause := errors.New("not nillable, cannot hold nil")
	err := levis.NewValidationError("age", cause)
	assert.EqualError(t, err, `levis: invalid value for field "age": not nillable, cannot hold nil`)
	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, levis.IsValidationError(err))

	anon := levis.NewValidationError("", errors.New("cannot delete a modified instance"))
	assert.EqualError(t, anon, "levis: invalid value: cannot delete a modified instance")

	assert.False(t, levis.IsValidationError(nil))
	assert.False(t, levis.IsValidationError(errors.New("other")))
}

func TestConsistencyError(t *testing.T) {
	err := levis.NewConsistencyError("this instance was deleted from the database and can no longer be used", nil)
	assert.EqualError(t, err, "levis: this instance was deleted from the database and can no longer be used")
	assert.True(t, levis.IsConsistencyError(err))

	cause := errors.New("short read")
	wrapped := levis.NewConsistencyError("stored value cannot be decoded", cause)
	assert.Equal(t, cause, errors.Unwrap(wrapped))
	assert.True(t, levis.IsConsistencyError(fmt.Errorf("get: %w", wrapped)))

	assert.False(t, levis.IsConsistencyError(nil))
}

func TestStartupError(t *testing.T) {
	err := levis.NewStartupError("no database path was set", nil)
	assert.EqualError(t, err, "levis: no database path was set")
	assert.True(t, levis.IsStartupError(err))

	cause := errors.New("permission denied")
	wrapped := levis.NewStartupError("unable to access the database", cause)
	assert.EqualError(t, wrapped, "levis: unable to access the database: permission denied")
	assert.Equal(t, cause, errors.Unwrap(wrapped))

	assert.False(t, levis.IsStartupError(nil))
	assert.False(t, levis.IsStartupError(errors.New("other")))
}

func TestQueryError(t *testing.T) {
	cause := levis.NewValidationError("age", errors.New("unknown field"))
	err := levis.NewQueryError("user", "all", cause)
	assert.EqualError(t, err, `levis: querying user (all): levis: invalid value for field "age": unknown field`)
	assert.True(t, levis.IsQueryError(err))

	// The underlying error stays reachable through the wrap.
	assert.True(t, levis.IsValidationError(err))
	var ve *levis.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "age", ve.Name)

	anon := levis.NewQueryError("user", "", errors.New("boom"))
	assert.EqualError(t, anon, "levis: querying user: boom")

	assert.False(t, levis.IsQueryError(nil))
	assert.False(t, levis.IsQueryError(errors.New("other")))
}
