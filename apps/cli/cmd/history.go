package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/output"
	"github.com/abdul-hamid-achik/testforge/packages/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag     string
	historyLimitFlag  int
	historyOutputFlag string
	historyVerbose    bool
)

var historyCmd = &cobra.Command{
	Use:   "history [execution-id]",
	Short: "List recorded executions or show one of them",
	Long: `List the most recent executions recorded in a database, or show the
step results of a single execution.

Examples:
  testforge history --db sqlite://testforge.db
  testforge history --db sqlite://testforge.db --limit 5
  testforge history 0b6c... --db sqlite://testforge.db -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("TESTFORGE_DB", ""), "Database holding the executions (env: TESTFORGE_DB)")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Maximum number of executions to list")
	historyCmd.Flags().StringVarP(&historyOutputFlag, "output", "o", "console", "Output format for a single execution: console, json, junit")
	historyCmd.Flags().BoolVarP(&historyVerbose, "verbose", "v", false, "Show passed assertions and extracted variables")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	id := ""
	if len(args) == 1 {
		id = args[0]
	}
	return showHistory(ctx, historyDBFlag, id, historyLimitFlag, historyOutputFlag, historyVerbose, cmd.OutOrStdout())
}

func showHistory(ctx context.Context, db, id string, limit int, format string, verbose bool, w io.Writer) error {
	if db == "" || db == store.MemoryDSN {
		return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("history needs a persistent database (use --db sqlite://<file>)")}
	}

	st, err := store.Open(ctx, db)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	defer st.Close()

	if id == "" {
		return listExecutions(ctx, st, limit, w)
	}
	return showExecution(ctx, st, id, format, verbose, w)
}

func listExecutions(ctx context.Context, st *store.Store, limit int, w io.Writer) error {
	execs, err := st.ListExecutions(ctx, limit)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	if len(execs) == 0 {
		fmt.Fprintln(w, "No executions recorded.")
		return nil
	}

	names := map[string]string{}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "SUITE", "STATUS", "STEPS", "DURATION", "CREATED"})
	for _, exec := range execs {
		name, ok := names[exec.SuiteID]
		if !ok {
			name = suiteName(ctx, st, exec.SuiteID)
			names[exec.SuiteID] = name
		}
		steps := "-"
		if exec.Summary != nil {
			steps = fmt.Sprintf("%d/%d", exec.Summary.Passed, exec.Summary.Total)
		}
		if err := table.Append([]string{
			exec.ID,
			name,
			string(exec.Status),
			steps,
			strconv.FormatInt(exec.Duration, 10) + "ms",
			exec.CreatedAt.Local().Format(time.DateTime),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func showExecution(ctx context.Context, st *store.Store, id, format string, verbose bool, w io.Writer) error {
	exec, err := st.GetExecution(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return &ExitError{Code: ExitUsageError, Err: fmt.Errorf("execution not found: %s", id)}
	}
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	steps, err := st.ListStepResults(ctx, id)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}

	formatter, err := output.New(strings.ToLower(format), w, verbose, false)
	if err != nil {
		return &ExitError{Code: ExitUsageError, Err: err}
	}
	return formatter.Format(&output.Report{
		SuiteName: suiteName(ctx, st, exec.SuiteID),
		Execution: exec,
		Steps:     steps,
	})
}

// suiteName falls back to the ID when the suite row is gone.
func suiteName(ctx context.Context, st *store.Store, suiteID string) string {
	suite, err := st.LoadSuiteWithSteps(ctx, suiteID)
	if err != nil || suite.Name == "" {
		return suiteID
	}
	return suite.Name
}
