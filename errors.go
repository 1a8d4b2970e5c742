package levis

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested instance does not exist.
	ErrNotFound = errors.New("levis: instance not found")

	// ErrNotSingular is returned when a query that expects at most one result
	// returns multiple results.
	ErrNotSingular = errors.New("levis: instance not singular")

	// ErrAlreadyExists is returned when a write collides with a unique column.
	ErrAlreadyExists = errors.New("levis: instance already exists")
)

// NotFoundError represents an error when an instance is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the id that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("levis: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("levis: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the id that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the id that was
// searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects at most one
// result but receives multiple results.
type NotSingularError struct {
	label string
	count int // Number of results returned (-1 if unknown)
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("levis: %s not singular (got %d results, expected 1)", e.label, e.count)
	}
	return fmt.Sprintf("levis: %s not singular", e.label)
}

// Is reports whether the target error matches NotSingularError.
// This allows errors.Is(notSingularErr, ErrNotSingular) to return true.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Label returns the entity label.
func (e *NotSingularError) Label() string {
	return e.label
}

// Count returns the number of results, or -1 if unknown.
func (e *NotSingularError) Count() int {
	return e.count
}

// NewNotSingularError returns a new NotSingularError for the given entity.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label, count: -1}
}

// NewNotSingularErrorWithCount returns a new NotSingularError with the
// result count.
func NewNotSingularErrorWithCount(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// AlreadyExistsError represents a write rejected because a unique column
// already holds the value.
type AlreadyExistsError struct {
	label  string
	column string // Optional: the violated column
	wrap   error
}

// Error returns the error string.
func (e *AlreadyExistsError) Error() string {
	if e.column != "" {
		return fmt.Sprintf("levis: %s with the same %s already exists", e.label, e.column)
	}
	return fmt.Sprintf("levis: %s already exists", e.label)
}

// Is reports whether the target error matches AlreadyExistsError.
// This allows errors.Is(existsErr, ErrAlreadyExists) to return true.
func (e *AlreadyExistsError) Is(err error) bool {
	return err == ErrAlreadyExists
}

// Unwrap returns the underlying storage error.
func (e *AlreadyExistsError) Unwrap() error {
	return e.wrap
}

// Label returns the entity label.
func (e *AlreadyExistsError) Label() string {
	return e.label
}

// Column returns the violated column, if it could be determined.
func (e *AlreadyExistsError) Column() string {
	return e.column
}

// NewAlreadyExistsError returns a new AlreadyExistsError for the given
// entity, extracting the violated column from the storage error when the
// message carries one.
func NewAlreadyExistsError(label string, wrap error) *AlreadyExistsError {
	return &AlreadyExistsError{label: label, column: uniqueColumn(wrap), wrap: wrap}
}

// IsAlreadyExists returns true if the error is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	var e *AlreadyExistsError
	return errors.As(err, &e) || errors.Is(err, ErrAlreadyExists)
}

// uniqueMarker is the message fragment the storage engine emits for unique
// violations, e.g. "UNIQUE constraint failed: user.name".
const uniqueMarker = "UNIQUE constraint failed"

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), uniqueMarker)
}

// uniqueColumn extracts the first violated column name from a unique
// violation message, or "" if none can be found.
func uniqueColumn(err error) string {
	if err == nil {
		return ""
	}
	_, rest, ok := strings.Cut(err.Error(), uniqueMarker+": ")
	if !ok {
		return ""
	}
	col, _, _ := strings.Cut(rest, ",")
	if i := strings.IndexByte(col, ' '); i >= 0 {
		col = col[:i]
	}
	if _, c, ok := strings.Cut(col, "."); ok {
		col = c
	}
	return col
}

// DeclarationError represents an invalid entity or field declaration. It is
// reported the first time the entity is used, not at declaration time.
type DeclarationError struct {
	Entity string // Entity name, if known
	Err    error  // Underlying declaration error
}

// Error returns the error string.
func (e *DeclarationError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("levis: declaring %q: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("levis: declaration: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *DeclarationError) Unwrap() error {
	return e.Err
}

// NewDeclarationError returns a new DeclarationError for the given entity.
func NewDeclarationError(entity string, err error) *DeclarationError {
	return &DeclarationError{Entity: entity, Err: err}
}

// IsDeclarationError returns true if the error is a DeclarationError.
func IsDeclarationError(err error) bool {
	if err == nil {
		return false
	}
	var e *DeclarationError
	return errors.As(err, &e)
}

// ValidationError represents a value rejected during construction,
// assignment, or save.
type ValidationError struct {
	Name string // Field or entity name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("levis: invalid value for field %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("levis: invalid value: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// ConsistencyError represents a handle or stored state that no longer
// matches the database: a stale handle being used, a referenced row that is
// missing, or a stored value that no longer decodes.
type ConsistencyError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *ConsistencyError) Error() string {
	return "levis: " + e.msg
}

// Unwrap returns the underlying error.
func (e *ConsistencyError) Unwrap() error {
	return e.wrap
}

// NewConsistencyError returns a new ConsistencyError with the given message.
func NewConsistencyError(msg string, wrap error) *ConsistencyError {
	return &ConsistencyError{msg: msg, wrap: wrap}
}

// IsConsistencyError returns true if the error is a ConsistencyError.
func IsConsistencyError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConsistencyError
	return errors.As(err, &e)
}

// StartupError represents a failure to reach a usable database: a missing
// file, an engine built without serialized threading, or a connection that
// cannot be opened.
type StartupError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e *StartupError) Error() string {
	if e.wrap != nil {
		return fmt.Sprintf("levis: %s: %v", e.msg, e.wrap)
	}
	return "levis: " + e.msg
}

// Unwrap returns the underlying error.
func (e *StartupError) Unwrap() error {
	return e.wrap
}

// NewStartupError returns a new StartupError with the given message.
func NewStartupError(msg string, wrap error) *StartupError {
	return &StartupError{msg: msg, wrap: wrap}
}

// IsStartupError returns true if the error is a StartupError.
func IsStartupError(err error) bool {
	if err == nil {
		return false
	}
	var e *StartupError
	return errors.As(err, &e)
}

// QueryError wraps a query failure with the entity and operation it
// happened in. Builder misuse, such as filtering twice on one field, also
// surfaces as a QueryError when the query runs.
type QueryError struct {
	Entity string // Entity being queried
	Op     string // Operation (e.g. "all", "count", "delete")
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("levis: querying %s (%s): %v", e.Entity, e.Op, e.Err)
	}
	return fmt.Sprintf("levis: querying %s: %v", e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
