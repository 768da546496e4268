// Package runner executes a single test step: it substitutes variables into
// the request, sends it, evaluates the step's assertions and extracts the
// variables later steps will see.
//
// The recorded request snapshot passes through a redaction policy so that
// credential headers are not persisted in clear text.
package runner
