package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating or summarizing large values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case []any:
		return fmt.Sprintf("[array with %d items]", len(val))
	case map[string]any:
		return fmt.Sprintf("{object with %d keys}", len(val))
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		if w != nil {
			f.writer = w
		}
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) Format(report *Report) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+report.SuiteName))

	for _, r := range report.Steps {
		if r.Error != "" {
			fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), r.StepName, red(fmt.Sprintf("(%s)", r.Error)))
			continue
		}

		symbol := green("✓")
		if r.Status != model.StepPassed {
			symbol = red("✗")
		}
		fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, r.StepName, cyan(fmt.Sprintf("(%dms)", r.Duration)))

		if f.verbose {
			fmt.Fprintf(f.writer, "    %s %s\n", r.Request.Method, r.Request.URL)
			if r.Response != nil {
				fmt.Fprintf(f.writer, "    Status: %d\n", r.Response.Status)
			}
		}

		for _, a := range r.Assertions {
			if a.Passed {
				if f.verbose {
					fmt.Fprintf(f.writer, "    %s\n", green(a.Message))
				}
				continue
			}
			fmt.Fprintf(f.writer, "    %s %s\n", red("→"), a.Message)
			if a.Expected != nil || a.Actual != nil {
				fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(a.Expected, 100))
				fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
			}
		}

		if f.verbose && len(r.ExtractedVariables) > 0 {
			fmt.Fprintf(f.writer, "    Extracted:\n")
			for _, name := range sortedKeys(r.ExtractedVariables) {
				fmt.Fprintf(f.writer, "      %s = %s\n", name, formatValue(display(r.ExtractedVariables[name]), 100))
			}
		}
	}

	summary := report.Summary()
	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Steps: ")
	if summary.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", summary.Passed)))
	}
	if summary.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", summary.Failed)))
	}
	if summary.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", summary.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", summary.Total)
	fmt.Fprintf(f.writer, "Time:  %dms\n", summary.Duration)
	if lat, ok := StepLatency(report.Steps); ok {
		fmt.Fprintf(f.writer, "Latency: p50 %dms, p95 %dms, p99 %dms, max %dms\n", lat.P50, lat.P95, lat.P99, lat.Max)
	}

	status := string(report.Status())
	switch report.Status() {
	case model.ExecutionPassed:
		status = green(status)
	case model.ExecutionFailed:
		status = red(status)
	case model.ExecutionError:
		status = yellow(status)
	}
	if status != "" {
		fmt.Fprintf(f.writer, "Status: %s\n", status)
	}
	if report.Execution != nil && report.Execution.Error != "" {
		fmt.Fprintf(f.writer, "%s %s\n", red("Error:"), report.Execution.Error)
	}
	fmt.Fprintf(f.writer, "\n")
	return nil
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// display renders nested values as compact JSON.
func display(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return v
}
