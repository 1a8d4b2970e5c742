// Package sql is the connection and statement layer of levis.
//
// It owns the single shared SQLite connection (Open caps the pool at one
// connection and VerifySerialized checks the engine's threading mode once at
// open time) and the parameterized statement helpers the engine builds every
// operation from: CreateTable, Select, SelectCount, Insert, UpdateByKey,
// DeleteByKey and DeleteMatching. DML statements are composed with squirrel;
// values are always bound, never interpolated, and identifiers are validated
// before they reach statement text.
//
// The Driver can be wrapped for observability: DebugDriver logs every
// statement through slog, StatsDriver keeps atomic counters and flags slow
// statements. Both wrappers implement dialect.Driver and can be stacked.
package sql
