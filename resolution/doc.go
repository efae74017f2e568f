// Package resolution turns a closed conversation into a package of follow-up
// work items and drives them through approval and execution.
//
// Generation issues one extraction request and parses a strict JSON block
// into typed items. Items then move pending -> approved|rejected and
// approved -> created; created and rejected are terminal. Execution is per
// item and re-runnable: failures stay approved with an error attached, and
// every executor call is keyed by the item ID.
//
// CRM actions are never approved at generation time, whatever the mode.
package resolution
