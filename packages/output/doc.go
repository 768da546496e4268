// Package output renders execution reports.
//
// Supported output formats:
//   - console: colored terminal output with latency percentiles
//   - json: the execution and its step results as one JSON document
//   - junit: JUnit XML for CI systems
//
// Progress prints one line per step while an execution is still running.
package output
