// Package turn implements per-participant turn tracking and the phase
// detector. All functions are pure: they return new values and never mutate
// their inputs.
package turn
