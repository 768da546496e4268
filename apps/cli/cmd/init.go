package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/abdul-hamid-achik/testforge/packages/core/config"
	"github.com/spf13/cobra"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new testforge project",
	Long: `Initialize a new testforge project in the current directory.

This creates:
  - .testforge.json     - Configuration file recording runs in testforge.db
  - example.suite.yaml  - Example suite file

Examples:
  testforge init
  testforge init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const exampleSuite = `name: example
baseUrl: https://httpbin.org
variables:
  username: testforge
steps:
  - name: create resource
    method: POST
    endpoint: /anything
    headers:
      Content-Type: application/json
    body:
      name: "{{username}}"
      requestId: "{{uuid()}}"
    assertions:
      - type: status
        operator: equals
        value: 200
      - type: jsonPath
        field: $.json.name
        operator: equals
        value: "{{username}}"
      - type: responseTime
        operator: lessThan
        value: 5000
    extractVariables:
      - name: requestId
        source: jsonPath
        path: $.json.requestId

  - name: fetch with extracted value
    method: GET
    endpoint: /anything/{{requestId}}
    assertions:
      - type: status
        operator: equals
        value: 200
      - type: header
        field: Content-Type
        operator: contains
        value: json
      - type: jsonPath
        field: $.url
        operator: contains
        value: "{{requestId}}"
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	return initProject(cwd, forceInit, cmd.OutOrStdout())
}

func initProject(dir string, force bool, w io.Writer) error {
	configFile := filepath.Join(dir, config.ConfigFilenames[0])
	exampleFile := filepath.Join(dir, "example.suite.yaml")

	if !force {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.Database = "sqlite://testforge.db"
	cfg.Headers = map[string]string{"User-Agent": "testforge/" + version}
	if err := cfg.SaveConfig(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(w, "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(exampleSuite), 0644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(w, "Created: %s\n", exampleFile)

	fmt.Fprintf(w, "\ntestforge project initialized!\n")
	fmt.Fprintf(w, "Run 'testforge run example.suite.yaml' to execute the example suite.\n")

	return nil
}
