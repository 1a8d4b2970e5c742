// Package levis is a small runtime ORM over one embedded SQLite database.
// Entities are declared at runtime with the schema/field builders instead
// of being generated: an Engine holds the declarations, derives each table
// schema lazily on first use, and hands out row instances whose whole
// lifecycle (create, load, save, cascade delete) runs through one shared
// serialized connection.
package levis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/syssam/levis/dialect"
	"github.com/syssam/levis/dialect/sql"
)

// EnvPath is the environment variable consulted when no explicit database
// path has been set.
const EnvPath = "DB_PATH"

// An Engine owns one embedded database: the declared entities, the single
// shared connection, and the initialization hooks. Engines are independent
// of each other; there is no package-global instance.
//
// The connection opens lazily on the first operation that needs it and is
// shared by all goroutines for the engine's lifetime. Every statement runs
// on its own; there is no transaction surface.
type Engine struct {
	mu       sync.RWMutex
	entities map[string]*Entity
	order    []string

	pathMu      sync.Mutex
	path        string
	defaultPath string

	debug        bool
	statsEnabled bool
	log          *slog.Logger

	// connMu guards the lazy open so concurrent callers cannot create two
	// connections to the same file.
	connMu sync.RWMutex
	drv    dialect.Driver
	qstats *sql.QueryStats

	hookMu sync.Mutex
	hooks  []initHook
}

// An Option configures an Engine at construction.
type Option func(*Engine)

// Debug makes the engine log every statement with its arguments.
func Debug() Option {
	return func(e *Engine) { e.debug = true }
}

// CollectStats makes the engine count statements and durations, readable
// through Stats.
func CollectStats() Option {
	return func(e *Engine) { e.statsEnabled = true }
}

// WithLogger sets the logger used for statement logging. The default is
// slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New returns a new Engine with no database path configured. Set one with
// SetPath or SetDefaultPath, or through the DB_PATH environment variable.
func New(opts ...Option) *Engine {
	e := &Engine{
		entities: make(map[string]*Entity),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetDefaultPath sets the fallback database path. It is meant to be called
// once at startup; the DB_PATH environment variable and SetPath both
// override it.
func (e *Engine) SetDefaultPath(path string) error {
	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	if e.path != "" {
		return NewStartupError(fmt.Sprintf("database path already set to %q", e.path), nil)
	}
	if e.defaultPath != "" {
		return NewStartupError(fmt.Sprintf("default database path already set to %q", e.defaultPath), nil)
	}
	e.defaultPath = path
	return nil
}

// SetPath sets the database path, overriding the default path and the
// DB_PATH environment variable. It can only be called before the path has
// been resolved by a database operation.
func (e *Engine) SetPath(path string) error {
	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	if e.path != "" {
		return NewStartupError(fmt.Sprintf("database path already set to %q", e.path), nil)
	}
	if path == "" {
		return NewStartupError("invalid empty database path", nil)
	}
	e.path = path
	return nil
}

// dbPath resolves the database path: explicit SetPath first, then the
// DB_PATH environment variable, then the default path. The resolved value
// sticks for the engine's lifetime.
func (e *Engine) dbPath() (string, error) {
	e.pathMu.Lock()
	defer e.pathMu.Unlock()
	if e.path != "" {
		return e.path, nil
	}
	if p := os.Getenv(EnvPath); p != "" {
		e.path = p
		return e.path, nil
	}
	if e.defaultPath != "" {
		e.path = e.defaultPath
		return e.path, nil
	}
	return "", NewStartupError("no database path was set", nil)
}

// dbFileExists reports whether the database file exists and is accessible
// for reading and writing.
func dbFileExists(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		f.Close()
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, NewStartupError("unable to access the database", err)
	}
}

// conn returns the shared connection, opening it on first use. The database
// file must already exist; only Init creates it.
func (e *Engine) conn(ctx context.Context) (dialect.Driver, error) {
	e.connMu.RLock()
	drv := e.drv
	e.connMu.RUnlock()
	if drv != nil {
		return drv, nil
	}
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.drv != nil {
		return e.drv, nil
	}
	path, err := e.dbPath()
	if err != nil {
		return nil, err
	}
	exists, err := dbFileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NewStartupError(fmt.Sprintf(
			"the database at %s has not been created yet; run Init to create it, or set another path with the %s environment variable", path, EnvPath), nil)
	}
	drv, err = e.openConn(ctx, path)
	if err != nil {
		return nil, err
	}
	e.drv = drv
	return drv, nil
}

// openConn opens the database file, verifies the storage engine runs in
// serialized threading mode, and applies the configured driver wrappers.
func (e *Engine) openConn(ctx context.Context, path string) (dialect.Driver, error) {
	base, err := sql.Open(path)
	if err != nil {
		return nil, NewStartupError(fmt.Sprintf("opening database %s; check that the path is valid", path), err)
	}
	if err := base.VerifySerialized(ctx); err != nil {
		base.Close()
		return nil, NewStartupError("insufficient thread safety guarantees", err)
	}
	var drv dialect.Driver = base
	if e.statsEnabled {
		sd := sql.NewStatsDriver(drv, sql.WithSlowQueryLog())
		e.qstats = sd.QueryStats()
		drv = sd
	}
	if e.debug {
		log := e.log
		drv = sql.NewDebugDriver(drv, sql.DebugWithLog(func(ctx context.Context, v ...any) {
			log.InfoContext(ctx, fmt.Sprint(v...))
		}))
	}
	return drv, nil
}

// An InitHook runs during Init, after the database file has been created.
// Hooks run in ascending priority order. Priority 0 is reserved for the
// built-in hook that creates the tables, so hooks with negative priorities
// run before the tables exist and the rest run after.
type InitHook func(ctx context.Context, e *Engine) error

type initHook struct {
	priority int
	fn       InitHook
}

// OnInit registers a hook to run during Init with the given priority.
// Typical use is seeding reference rows at a positive priority.
func (e *Engine) OnInit(priority int, fn InitHook) {
	e.hookMu.Lock()
	defer e.hookMu.Unlock()
	e.hooks = append(e.hooks, initHook{priority: priority, fn: fn})
}

// An InitOption configures Init.
type InitOption func(*initConfig)

type initConfig struct {
	force bool
}

// Force makes Init erase an existing database file instead of failing.
func Force() InitOption {
	return func(c *initConfig) { c.force = true }
}

// Init creates the database file and runs the registered init hooks,
// including the built-in hook that creates one table per declared entity.
// Init fails if the engine is already connected, or if the file exists and
// Force was not given.
func (e *Engine) Init(ctx context.Context, opts ...InitOption) error {
	var cfg initConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	e.connMu.Lock()
	if e.drv != nil {
		e.connMu.Unlock()
		return NewStartupError("database is already loaded, cannot re-init", nil)
	}
	path, err := e.dbPath()
	if err != nil {
		e.connMu.Unlock()
		return err
	}
	exists, err := dbFileExists(path)
	if err != nil {
		e.connMu.Unlock()
		return err
	}
	if exists {
		if !cfg.force {
			e.connMu.Unlock()
			return NewStartupError(fmt.Sprintf(
				"the database %s already exists; pass Force to re-initialize it", path), nil)
		}
		if err := os.Remove(path); err != nil {
			e.connMu.Unlock()
			return NewStartupError(fmt.Sprintf("erasing database %s", path), err)
		}
	}
	drv, err := e.openConn(ctx, path)
	if err != nil {
		e.connMu.Unlock()
		return err
	}
	e.drv = drv
	e.connMu.Unlock()

	e.hookMu.Lock()
	hooks := make([]initHook, 0, len(e.hooks)+1)
	hooks = append(hooks, initHook{priority: 0, fn: createTables})
	hooks = append(hooks, e.hooks...)
	e.hookMu.Unlock()
	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].priority < hooks[j].priority })
	for _, h := range hooks {
		if err := h.fn(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// createTables is the built-in priority-0 init hook. It derives the schema
// of every declared entity and creates its table.
func createTables(ctx context.Context, e *Engine) error {
	ents, err := e.resolveAll()
	if err != nil {
		return err
	}
	drv, err := e.conn(ctx)
	if err != nil {
		return err
	}
	for _, ent := range ents {
		s, err := ent.resolve()
		if err != nil {
			return err
		}
		if err := sql.CreateTable(ctx, drv, s.tableSpec()); err != nil {
			return fmt.Errorf("creating table %q: %w", s.table, err)
		}
	}
	return nil
}

// Exec runs a single raw mutating statement against the shared connection.
// It returns the last inserted row id, or -1 when the statement did not
// insert anything. It is the escape hatch under the typed layer; values
// must always be bound as parameters, never interpolated.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	drv, err := e.conn(ctx)
	if err != nil {
		return -1, err
	}
	var res sql.Result
	if err := drv.Exec(ctx, query, args, &res); err != nil {
		return -1, err
	}
	id, err := res.LastInsertId()
	if err != nil || id == 0 {
		return -1, nil
	}
	return id, nil
}

// Fetch runs a raw read statement against the shared connection. The caller
// owns the returned rows and must close them.
func (e *Engine) Fetch(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	drv, err := e.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows := &sql.Rows{}
	if err := drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Stats returns a snapshot of statement statistics. The second return is
// false when the engine was built without CollectStats.
func (e *Engine) Stats() (sql.StatsSnapshot, bool) {
	if !e.statsEnabled {
		return sql.StatsSnapshot{}, false
	}
	e.connMu.RLock()
	qs := e.qstats
	e.connMu.RUnlock()
	if qs == nil {
		return sql.StatsSnapshot{}, true
	}
	return qs.Stats(), true
}

// Close closes the shared connection if it was opened. The engine cannot be
// used afterwards.
func (e *Engine) Close() error {
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.drv == nil {
		return nil
	}
	err := e.drv.Close()
	e.drv = nil
	return err
}
