// Package pipeline drives a catalog extraction run.
//
// A Driver fetches each configured department, filters its courses against
// the allow-list and normalizes the survivors into course records, which are
// handed to a caller-supplied emit function. Departments may be fetched in
// parallel, but records are always emitted in department order and, within a
// department, in feed order.
package pipeline
