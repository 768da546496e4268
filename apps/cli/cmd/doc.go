// Package cmd implements the testforge CLI commands using Cobra.
//
// Available commands:
//   - run: Execute a suite file and record the execution
//   - validate: Check suite files without executing them
//   - history: List recorded executions or show one of them
//   - init: Create an example suite and config file
//   - version: Show testforge version information
//
// Flags fall back to TESTFORGE_* environment variables, then to the config
// file, then to built-in defaults.
package cmd
