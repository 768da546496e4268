package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one execution
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	ID        string          `xml:"id,attr,omitempty"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
	SystemErr string          `xml:"system-err,omitempty"`
}

// JUnitTestCase is one step
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
}

type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitFormatter formats execution reports as JUnit XML. A step with a
// transport error is reported as <error>, failed assertions as <failure>.
type JUnitFormatter struct {
	writer io.Writer
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		if w != nil {
			f.writer = w
		}
	}
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}

func (f *JUnitFormatter) Format(report *Report) error {
	summary := report.Summary()
	suite := JUnitTestSuite{
		Name:      report.SuiteName,
		Tests:     len(report.Steps),
		Time:      msToSeconds(summary.Duration),
		TestCases: make([]JUnitTestCase, 0, len(report.Steps)),
	}
	if exec := report.Execution; exec != nil {
		suite.ID = exec.ID
		if exec.StartedAt != nil {
			suite.Timestamp = exec.StartedAt.UTC().Format(time.RFC3339)
		}
		if exec.Error != "" {
			suite.Errors++
			suite.SystemErr = exec.Error
		}
	}

	for _, r := range report.Steps {
		tc := JUnitTestCase{
			Name:      r.StepName,
			ClassName: report.SuiteName,
			Time:      msToSeconds(r.Duration),
		}

		switch {
		case r.Error != "":
			suite.Errors++
			tc.Error = &JUnitError{
				Message: r.Error,
				Type:    "Error",
			}
		case r.Status != model.StepPassed:
			suite.Failures++
			var failureMsg strings.Builder
			for _, a := range r.Assertions {
				if !a.Passed {
					fmt.Fprintf(&failureMsg, "%s\n", a.Message)
				}
			}
			tc.Failure = &JUnitFailure{
				Message: "Assertion failed",
				Type:    "AssertionError",
				Content: failureMsg.String(),
			}
		}

		suite.TestCases = append(suite.TestCases, tc)
	}

	suites := JUnitTestSuites{
		Name:       "testforge",
		Tests:      suite.Tests,
		Failures:   suite.Failures,
		Errors:     suite.Errors,
		Time:       suite.Time,
		TestSuites: []JUnitTestSuite{suite},
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}

func (f *JUnitFormatter) FormatError(err error) {
	suites := JUnitTestSuites{
		Name:   "testforge",
		Errors: 1,
		TestSuites: []JUnitTestSuite{{
			Name:      "testforge",
			Errors:    1,
			SystemErr: err.Error(),
		}},
	}
	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	_ = encoder.Encode(suites)
	fmt.Fprintln(f.writer)
}
