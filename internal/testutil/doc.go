// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing sessions, transcripts and profiles. They are
// not intended for production usage.
package testutil
