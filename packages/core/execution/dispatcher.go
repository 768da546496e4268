package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testforge/packages/core/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

var (
	ErrQueueFull        = errors.New("dispatch queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is shut down")
)

const interruptedReason = "interrupted: the process stopped before the execution completed"

// Runner runs one execution to completion. *Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, executionID string) error
}

type TriggerRequest struct {
	SuiteID       string
	EnvironmentID string
	CredentialID  string
	Variables     map[string]any
}

// DispatcherConfig wires a Dispatcher. Runner is required.
type DispatcherConfig struct {
	Workers      int
	QueueSize    int
	Suites       SuiteStore
	Environments EnvironmentStore
	Credentials  CredentialResolver
	Executions   TriggerStore
	Runner       Runner
	Logger       *zap.Logger
}

// Dispatcher owns a bounded queue of execution IDs and a fixed worker pool.
// Distinct executions run concurrently; each one is run by a single worker.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *zap.Logger
	queue  chan string

	mu      sync.RWMutex
	closed  bool
	started bool
	waiters map[string]chan struct{}

	group  *errgroup.Group
	cancel context.CancelFunc
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan string, cfg.QueueSize),
		waiters: make(map[string]chan struct{}),
	}
}

// Start launches the workers. Executions triggered before Start wait in the
// queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	ctx, d.cancel = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		worker := i
		d.group.Go(func() error {
			d.work(ctx, worker)
			return nil
		})
	}
	d.logger.Debug("dispatcher started", zap.Int("workers", d.cfg.Workers), zap.Int("queueSize", d.cfg.QueueSize))
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	for id := range d.queue {
		logger := d.logger.With(zap.Int("worker", worker), zap.String("executionID", id))
		logger.Debug("picked up execution")
		if err := d.cfg.Runner.Run(ctx, id); err != nil {
			logger.Warn("execution ended with an error", zap.Error(err))
		}
		d.release(id)
	}
}

// Trigger creates a PENDING execution and enqueues it. It returns as soon as
// the record exists; the run proceeds on a worker. When the queue is full the
// record is marked ERROR and ErrQueueFull is returned with its ID.
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (string, error) {
	if d.isClosed() {
		return "", ErrDispatcherClosed
	}
	if _, err := d.cfg.Suites.LoadSuiteWithSteps(ctx, req.SuiteID); err != nil {
		return "", fmt.Errorf("suite %s: %w", req.SuiteID, err)
	}
	if _, err := d.cfg.Environments.LoadEnvironment(ctx, req.EnvironmentID); err != nil {
		return "", fmt.Errorf("environment %s: %w", req.EnvironmentID, err)
	}
	if req.CredentialID != "" && d.cfg.Credentials != nil {
		if _, err := d.cfg.Credentials.ResolveCredential(ctx, req.CredentialID); err != nil {
			return "", fmt.Errorf("credential %s: %w", req.CredentialID, err)
		}
	}

	exec := &model.Execution{
		ID:            uuid.NewString(),
		SuiteID:       req.SuiteID,
		EnvironmentID: req.EnvironmentID,
		CredentialID:  req.CredentialID,
		Status:        model.ExecutionPending,
		Variables:     req.Variables,
		CreatedAt:     time.Now(),
	}
	if err := d.cfg.Executions.CreateExecution(ctx, exec); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.reject(ctx, exec.ID, "dispatcher shut down before the execution was queued")
		return exec.ID, ErrDispatcherClosed
	}
	done := make(chan struct{})
	select {
	case d.queue <- exec.ID:
		d.waiters[exec.ID] = done
	default:
		d.reject(ctx, exec.ID, ErrQueueFull.Error())
		return exec.ID, ErrQueueFull
	}

	d.logger.Debug("execution queued", zap.String("executionID", exec.ID), zap.String("suiteID", req.SuiteID))
	return exec.ID, nil
}

func (d *Dispatcher) reject(ctx context.Context, id, reason string) {
	if err := d.cfg.Executions.FailExecution(ctx, id, reason, time.Now()); err != nil {
		d.logger.Error("failed to mark rejected execution", zap.String("executionID", id), zap.Error(err))
	}
}

// Wait blocks until the execution triggered through this dispatcher has been
// run, then returns its stored record.
func (d *Dispatcher) Wait(ctx context.Context, executionID string) (*model.Execution, error) {
	d.mu.RLock()
	done, ok := d.waiters[executionID]
	d.mu.RUnlock()

	if ok {
		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return d.cfg.Executions.GetExecution(ctx, executionID)
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	done, ok := d.waiters[id]
	delete(d.waiters, id)
	d.mu.Unlock()
	if ok {
		close(done)
	}
}

// Shutdown stops accepting triggers, lets the workers drain the queue and
// waits for in-flight runs. If ctx expires first, running executions are
// cancelled and ctx's error is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		// nothing will drain the queue; record what was left behind
		for id := range d.queue {
			d.reject(ctx, id, interruptedReason)
			d.release(id)
		}
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- d.group.Wait() }()

	select {
	case err := <-done:
		d.cancel()
		return err
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// RecoverStale marks executions left PENDING or RUNNING by a previous process
// as ERROR. Runs are not resumed.
func (d *Dispatcher) RecoverStale(ctx context.Context) (int, error) {
	stale, err := d.cfg.Executions.ListUnfinished(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unfinished executions: %w", err)
	}

	recovered := 0
	for _, exec := range stale {
		d.mu.RLock()
		_, ours := d.waiters[exec.ID]
		d.mu.RUnlock()
		if ours {
			continue
		}
		if err := d.cfg.Executions.FailExecution(ctx, exec.ID, interruptedReason, time.Now()); err != nil {
			return recovered, fmt.Errorf("mark execution %s: %w", exec.ID, err)
		}
		recovered++
	}
	if recovered > 0 {
		d.logger.Info("marked interrupted executions as errored", zap.Int("count", recovered))
	}
	return recovered, nil
}
