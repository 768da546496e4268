package cmd

// Exit codes for testforge CLI
const (
	// ExitSuccess indicates the execution passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more steps failed
	ExitTestFailure = 1

	// ExitParseError indicates an invalid suite file
	ExitParseError = 2

	// ExitConfigError indicates a configuration or storage error
	ExitConfigError = 3

	// ExitExecutionError indicates the execution could not run to completion
	ExitExecutionError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)
