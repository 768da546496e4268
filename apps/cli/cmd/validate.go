package cmd

import (
	"fmt"
	"io"

	"github.com/abdul-hamid-achik/testforge/packages/suitefile"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <suite-file>...",
	Short: "Validate suite files without running them",
	Long: `Validate suite files against the suite schema and step rules without
sending any requests.

Examples:
  testforge validate login.suite.yaml
  testforge validate suites/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
	return validateFiles(args, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func validateFiles(files []string, stdout, stderr io.Writer) error {
	hasErrors := false
	for _, file := range files {
		if _, err := suitefile.Load(file); err != nil {
			fmt.Fprintf(stderr, "Error in %s: %v\n", file, err)
			hasErrors = true
		} else {
			fmt.Fprintf(stdout, "Valid: %s\n", file)
		}
	}

	if hasErrors {
		return &ExitError{Code: ExitParseError, Err: fmt.Errorf("validation failed")}
	}
	return nil
}
