// Package execution drives a suite run from PENDING to a terminal status.
//
// The Orchestrator runs the steps of one execution strictly in order, folding
// each step's extracted variables into the context before the next step and
// persisting every step result as it completes. The Dispatcher creates
// execution records and hands them to a fixed pool of workers so that callers
// get an execution ID back without waiting for the run.
package execution
