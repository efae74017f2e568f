// Package session houses concrete implementations of core.SessionStore: a
// volatile in-memory store and a SQLite store built on modernc.org/sqlite.
//
// Both implement Update as an atomic read-modify-write: the callback sees the
// latest committed session and its changes are stored only when it returns
// nil. Callers never write back a stale snapshot.
package session
