package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/abdul-hamid-achik/testforge/packages/core/runner"
	"github.com/abdul-hamid-achik/testforge/packages/credential"
	"go.uber.org/zap"
)

var ErrNoCredentialResolver = errors.New("execution references a credential but no resolver is configured")

type Orchestrator struct {
	suites       SuiteStore
	environments EnvironmentStore
	credentials  CredentialResolver
	tokens       TokenSource
	executions   ExecutionStore
	runner       StepRunner
	observer     Observer
	logger       *zap.Logger
	now          func() time.Time
}

type OrchestratorOption func(*Orchestrator)

func WithCredentialResolver(r CredentialResolver) OrchestratorOption {
	return func(o *Orchestrator) {
		o.credentials = r
	}
}

func WithTokenSource(ts TokenSource) OrchestratorOption {
	return func(o *Orchestrator) {
		o.tokens = ts
	}
}

func WithStepRunner(r StepRunner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.runner = r
	}
}

func WithObserver(obs Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		o.observer = obs
	}
}

func WithLogger(logger *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func NewOrchestrator(suites SuiteStore, environments EnvironmentStore, executions ExecutionStore, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		suites:       suites,
		environments: environments,
		executions:   executions,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.runner == nil {
		o.runner = runner.NewRunner(&runner.Config{Logger: o.logger})
	}
	return o
}

// Run executes one execution to completion. Step failures roll up into a
// FAILED status; a load or persistence failure marks the execution ERROR and
// is returned. Run must be called at most once per execution.
func (o *Orchestrator) Run(ctx context.Context, executionID string) error {
	logger := o.logger.With(zap.String("executionID", executionID))

	status, summary, err := o.run(ctx, executionID, logger)
	if err != nil {
		logger.Error("execution errored", zap.Error(err))
		// the run context may be cancelled; the failure still has to be recorded
		if ferr := o.executions.FailExecution(context.WithoutCancel(ctx), executionID, err.Error(), o.now()); ferr != nil {
			logger.Error("failed to mark execution as errored", zap.Error(ferr))
		}
		o.finished(executionID, model.ExecutionError, nil, err)
		return err
	}

	logger.Info("execution finished",
		zap.String("status", string(status)),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int64("durationMs", summary.Duration))
	o.finished(executionID, status, summary, nil)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, executionID string, logger *zap.Logger) (model.ExecutionStatus, *model.ExecutionSummary, error) {
	exec, err := o.executions.GetExecution(ctx, executionID)
	if err != nil {
		return "", nil, fmt.Errorf("load execution: %w", err)
	}

	suite, err := o.suites.LoadSuiteWithSteps(ctx, exec.SuiteID)
	if err != nil {
		return "", nil, fmt.Errorf("load suite %s: %w", exec.SuiteID, err)
	}
	steps := append([]*model.TestStep(nil), suite.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	environment, err := o.environments.LoadEnvironment(ctx, exec.EnvironmentID)
	if err != nil {
		return "", nil, fmt.Errorf("load environment %s: %w", exec.EnvironmentID, err)
	}

	if err := o.executions.UpdateExecutionStatus(ctx, executionID, model.ExecutionRunning, o.now()); err != nil {
		return "", nil, fmt.Errorf("mark execution running: %w", err)
	}
	if o.observer != nil {
		o.observer.ExecutionStarted(executionID, suite)
	}
	logger.Info("execution started", zap.String("suite", suite.Name), zap.Int("steps", len(steps)))

	execCtx := &model.ExecutionContext{
		ExecutionID:   executionID,
		SuiteID:       exec.SuiteID,
		EnvironmentID: exec.EnvironmentID,
		CredentialID:  exec.CredentialID,
		BaseURL:       environment.BaseURL,
		Variables:     make(map[string]any, len(exec.Variables)),
		Headers:       map[string]string{},
	}
	execCtx.Merge(exec.Variables)

	if exec.CredentialID != "" {
		headers, err := o.credentialHeaders(ctx, exec.CredentialID)
		if err != nil {
			return "", nil, err
		}
		execCtx.Headers = headers
	}

	summary := &model.ExecutionSummary{Total: len(steps)}
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", nil, fmt.Errorf("execution interrupted: %w", err)
		}

		result := o.runStep(ctx, step, execCtx, logger)
		execCtx.Merge(result.ExtractedVariables)

		if err := o.executions.CreateStepResult(ctx, executionID, result); err != nil {
			return "", nil, fmt.Errorf("persist result of step %q: %w", step.Name, err)
		}

		switch result.Status {
		case model.StepPassed:
			summary.Passed++
		case model.StepFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
		summary.Duration += result.Duration

		if o.observer != nil {
			o.observer.StepCompleted(executionID, i, result)
		}
	}

	status := model.ExecutionPassed
	if summary.Failed > 0 {
		status = model.ExecutionFailed
	}
	if err := o.executions.FinalizeExecution(ctx, executionID, status, summary, o.now()); err != nil {
		return "", nil, fmt.Errorf("finalize execution: %w", err)
	}
	return status, summary, nil
}

func (o *Orchestrator) credentialHeaders(ctx context.Context, credentialID string) (map[string]string, error) {
	if o.credentials == nil {
		return nil, ErrNoCredentialResolver
	}
	cred, err := o.credentials.ResolveCredential(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential %s: %w", credentialID, err)
	}
	data := cred.Data
	if cred.Type == model.CredentialOAuth2 && o.tokens != nil && !hasValue(data, "accessToken") {
		token, ok, err := o.tokens.AccessToken(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("credential %s: fetch access token: %w", credentialID, err)
		}
		if ok {
			data = withField(data, "accessToken", token)
		}
	}
	headers, err := credential.Headers(cred.Type, data)
	if err != nil {
		return nil, fmt.Errorf("credential %s: %w", credentialID, err)
	}
	return headers, nil
}

func hasValue(data map[string]any, key string) bool {
	v, ok := data[key]
	return ok && v != nil && v != ""
}

// withField copies data with key set; the resolved credential is not modified.
func withField(data map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[key] = value
	return out
}

// runStep shields the run from a step runner that panics or returns nothing.
func (o *Orchestrator) runStep(ctx context.Context, step *model.TestStep, execCtx *model.ExecutionContext, logger *zap.Logger) (result *model.StepExecutionResult) {
	start := o.now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("step runner panicked", zap.String("step", step.Name), zap.Any("panic", p))
			result = runner.FailedResult(step, start, fmt.Sprint(p))
		}
	}()

	result = o.runner.RunStep(ctx, step, execCtx)
	if result == nil {
		result = runner.FailedResult(step, start, "step runner returned no result")
	}
	return result
}

func (o *Orchestrator) finished(executionID string, status model.ExecutionStatus, summary *model.ExecutionSummary, err error) {
	if o.observer != nil {
		o.observer.ExecutionFinished(executionID, status, summary, err)
	}
}
