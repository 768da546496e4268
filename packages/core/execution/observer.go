package execution

import "github.com/abdul-hamid-achik/testforge/packages/core/model"

// Observers fans every event out to each observer in order.
type Observers []Observer

func (obs Observers) ExecutionStarted(executionID string, suite *model.TestSuite) {
	for _, o := range obs {
		o.ExecutionStarted(executionID, suite)
	}
}

func (obs Observers) StepCompleted(executionID string, index int, result *model.StepExecutionResult) {
	for _, o := range obs {
		o.StepCompleted(executionID, index, result)
	}
}

func (obs Observers) ExecutionFinished(executionID string, status model.ExecutionStatus, summary *model.ExecutionSummary, err error) {
	for _, o := range obs {
		o.ExecutionFinished(executionID, status, summary, err)
	}
}
