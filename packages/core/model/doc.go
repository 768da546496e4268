// Package model defines the data shared by the testforge execution engine.
//
// Suites and steps are read-only inputs, assertions and extractors are the
// declarative checks attached to a step, and executions, step results and
// summaries are what a run produces.
package model
