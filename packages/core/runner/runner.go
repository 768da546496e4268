package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/assertions"
	"github.com/abdul-hamid-achik/testforge/packages/capture"
	"github.com/abdul-hamid-achik/testforge/packages/core/env"
	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/abdul-hamid-achik/testforge/packages/http"
	"github.com/abdul-hamid-achik/testforge/packages/redact"
	"go.uber.org/zap"
)

// Sender performs one HTTP exchange. *http.Client satisfies it.
type Sender interface {
	Send(ctx context.Context, req *http.Request) (*http.Response, error)
}

type Runner struct {
	client Sender
	redact redact.Policy
	logger *zap.Logger
}

type Config struct {
	// Client overrides the sender built from ClientOptions.
	Client        Sender
	ClientOptions []http.ClientOption
	// Redact defaults to redact.DefaultPolicy when nil.
	Redact *redact.Policy
	Logger *zap.Logger
}

func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}

	r := &Runner{
		client: cfg.Client,
		redact: redact.DefaultPolicy(),
		logger: cfg.Logger,
	}
	if r.client == nil {
		r.client = http.NewClient(cfg.ClientOptions...)
	}
	if cfg.Redact != nil {
		r.redact = *cfg.Redact
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// RunStep executes one step against the current context. It never returns an
// error: transport failures and panics become a FAILED result. The context's
// variables are read, never written.
func (r *Runner) RunStep(ctx context.Context, step *model.TestStep, execCtx *model.ExecutionContext) (result *model.StepExecutionResult) {
	start := time.Now()
	result = &model.StepExecutionResult{
		StepID:             step.ID,
		StepName:           step.Name,
		StartedAt:          start,
		Request:            model.RequestSnapshot{Method: strings.ToUpper(step.Method), Headers: map[string]string{}},
		Assertions:         []*model.AssertionResult{},
		ExtractedVariables: map[string]any{},
	}

	logger := r.logger.With(zap.String("step", step.Name), zap.String("executionID", execCtx.ExecutionID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("step runner panicked", zap.Any("panic", p))
			result.Status = model.StepFailed
			result.Response = nil
			result.Error = fmt.Sprintf("panic: %v", p)
		}
		finish(result, start)
	}()

	resolver := env.NewResolver(execCtx.Variables, env.WithWarnFunc(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	endpoint := resolver.Resolve(step.Endpoint)
	headers := http.MergeHeaders(execCtx.Headers, resolver.ResolveAll(step.Headers))
	body := resolver.Substitute(step.Body)
	url := http.BuildURL(execCtx.BaseURL, endpoint)

	result.Request = r.redact.Request(model.RequestSnapshot{
		Method:  strings.ToUpper(step.Method),
		URL:     url,
		Headers: headers,
		Body:    body,
	}, execCtx.Headers)

	req := http.NewRequest(step.Method, url)
	req.Headers = headers
	req.Body = body

	logger.Debug("sending request", zap.String("method", req.Method), zap.String("url", result.Request.URL))
	resp, err := r.client.Send(ctx, req)
	if err != nil {
		logger.Info("request failed", zap.Error(err))
		result.Status = model.StepFailed
		result.Error = err.Error()
		return result
	}

	if len(resp.RequestHeaders) > 0 {
		result.Request = r.redact.Request(model.RequestSnapshot{
			Method:  strings.ToUpper(step.Method),
			URL:     url,
			Headers: sentHeaders(headers, resp.RequestHeaders),
			Body:    body,
		}, execCtx.Headers)
	}

	result.Response = &model.ResponseSnapshot{
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Headers:    resp.Headers,
		Body:       resp.Body,
		Time:       resp.DurationMs(),
	}
	result.Assertions = assertions.EvaluateAll(resolveAssertions(resolver, step.Assertions), resp)
	result.ExtractedVariables = capture.ExtractAll(step.ExtractVariables, resp, logger)

	result.Status = model.StepPassed
	for _, a := range result.Assertions {
		if !a.Passed {
			result.Status = model.StepFailed
			break
		}
	}
	return result
}

// sentHeaders adds the headers the client set on its own, such as defaults and
// User-Agent, to the step's resolved headers. Names already present keep their
// spelling and value.
func sentHeaders(resolved, sent map[string]string) map[string]string {
	out := make(map[string]string, len(sent))
	for k, v := range resolved {
		out[k] = v
	}
	for k, v := range sent {
		if !hasHeader(resolved, k) {
			out[k] = v
		}
	}
	return out
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// resolveAssertions returns copies of the step's assertions with placeholders in
// Field and Value substituted. The step itself is left untouched.
func resolveAssertions(resolver *env.Resolver, list []*model.Assertion) []*model.Assertion {
	resolved := make([]*model.Assertion, 0, len(list))
	for _, a := range list {
		if a == nil {
			resolved = append(resolved, nil)
			continue
		}
		c := *a
		c.Field = resolver.Resolve(a.Field)
		c.Value = resolver.Substitute(a.Value)
		resolved = append(resolved, &c)
	}
	return resolved
}

// FailedResult builds the result recorded for a step whose runner did not
// return normally.
func FailedResult(step *model.TestStep, startedAt time.Time, reason string) *model.StepExecutionResult {
	result := &model.StepExecutionResult{
		StepID:             step.ID,
		StepName:           step.Name,
		Status:             model.StepFailed,
		StartedAt:          startedAt,
		Request:            model.RequestSnapshot{Method: strings.ToUpper(step.Method), Headers: map[string]string{}},
		Assertions:         []*model.AssertionResult{},
		ExtractedVariables: map[string]any{},
		Error:              reason,
	}
	finish(result, startedAt)
	return result
}

func finish(result *model.StepExecutionResult, start time.Time) {
	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(start).Milliseconds()
}
