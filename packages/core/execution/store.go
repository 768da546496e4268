package execution

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
)

type SuiteStore interface {
	// LoadSuiteWithSteps returns the suite with its steps ordered by Order,
	// ties in insertion order.
	LoadSuiteWithSteps(ctx context.Context, suiteID string) (*model.TestSuite, error)
}

type EnvironmentStore interface {
	LoadEnvironment(ctx context.Context, environmentID string) (*model.Environment, error)
}

type CredentialResolver interface {
	// ResolveCredential returns the credential with its decrypted payload.
	ResolveCredential(ctx context.Context, credentialID string) (*model.Credential, error)
}

// ExecutionStore is the persistence sink for execution progress.
type ExecutionStore interface {
	GetExecution(ctx context.Context, executionID string) (*model.Execution, error)
	UpdateExecutionStatus(ctx context.Context, executionID string, status model.ExecutionStatus, at time.Time) error
	CreateStepResult(ctx context.Context, executionID string, result *model.StepExecutionResult) error
	FinalizeExecution(ctx context.Context, executionID string, status model.ExecutionStatus, summary *model.ExecutionSummary, completedAt time.Time) error
	FailExecution(ctx context.Context, executionID string, reason string, completedAt time.Time) error
}

// TriggerStore is what the Dispatcher needs on top of ExecutionStore.
type TriggerStore interface {
	ExecutionStore
	CreateExecution(ctx context.Context, exec *model.Execution) error
	ListUnfinished(ctx context.Context) ([]*model.Execution, error)
}

// TokenSource obtains an access token for an OAUTH2 credential payload that
// has no accessToken. ok is false when the payload does not describe a token
// endpoint. *oauth2.Provider satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context, data map[string]any) (token string, ok bool, err error)
}

// StepRunner executes a single step. *runner.Runner satisfies it.
type StepRunner interface {
	RunStep(ctx context.Context, step *model.TestStep, execCtx *model.ExecutionContext) *model.StepExecutionResult
}

// Observer receives lifecycle events of a run. Calls happen on the run's
// goroutine and should return quickly.
type Observer interface {
	ExecutionStarted(executionID string, suite *model.TestSuite)
	StepCompleted(executionID string, index int, result *model.StepExecutionResult)
	ExecutionFinished(executionID string, status model.ExecutionStatus, summary *model.ExecutionSummary, err error)
}
