/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"k8s.io/klog/v2"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/backoff"
)

const (
	stepRetryCount    = 3
	stepRetryInterval = 500 * time.Millisecond
)

// HandlerFunc is the body of one workflow kind.
type HandlerFunc func(wc *Context) error

// TriggerFunc consumes an event that starts workflows rather than resuming
// a waiting one.
type TriggerFunc func(ctx context.Context, event *Event)

// Options tune one engine instance.
type Options struct {
	// OrgConcurrencyLimit caps in-flight runs per org key. Zero means 100.
	OrgConcurrencyLimit int
	// PollInterval is the journal poll period backing event waits and
	// delayed delivery. Zero means one second.
	PollInterval time.Duration
}

// Engine executes durable workflows over a journal Store. Steps memoize,
// event waits survive restarts and runs resume on any process.
type Engine struct {
	store    Store
	opts     Options
	handlers map[string]HandlerFunc
	triggers map[string]TriggerFunc

	mu         sync.Mutex
	sems       map[string]chan struct{}
	waiters    map[string][]chan struct{}
	activeRuns map[string]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEngine(store Store, opts Options) *Engine {
	if opts.OrgConcurrencyLimit <= 0 {
		opts.OrgConcurrencyLimit = 100
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	return &Engine{
		store:      store,
		opts:       opts,
		handlers:   make(map[string]HandlerFunc),
		triggers:   make(map[string]TriggerFunc),
		sems:       make(map[string]chan struct{}),
		waiters:    make(map[string][]chan struct{}),
		activeRuns: make(map[string]bool),
	}
}

// RegisterWorkflow binds a workflow kind to its handler. Must precede Start.
func (e *Engine) RegisterWorkflow(kind string, fn HandlerFunc) {
	e.handlers[kind] = fn
}

// RegisterTrigger binds an event name to a trigger. Due events with this
// name are claimed by the poller and handed to fn.
func (e *Engine) RegisterTrigger(eventName string, fn TriggerFunc) {
	e.triggers[eventName] = fn
}

// Start resumes pending runs and launches the delayed-event poller.
func (e *Engine) Start(ctx context.Context) error {
	e.ctx, e.cancel = context.WithCancel(ctx)
	if err := e.ResumePending(e.ctx); err != nil {
		return err
	}
	e.wg.Add(1)
	go e.pollLoop()
	return nil
}

// Close stops the poller and waits for in-flight runs to settle. Runs
// suspended in an event wait stay journaled and resume after restart.
func (e *Engine) Close() error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return e.store.Close()
}

// StartRun creates and launches a run. Creating is idempotent by runId, so
// replaying a trigger does not spawn a second run.
func (e *Engine) StartRun(ctx context.Context, kind, runId, orgKey string, input []byte) (bool, error) {
	if _, ok := e.handlers[kind]; !ok {
		return false, relayerrors.NewInternalError("unknown workflow kind " + kind)
	}
	run := &Run{
		RunId:  runId,
		Kind:   kind,
		OrgKey: orgKey,
		State:  RunRunning,
		Input:  input,
	}
	created, err := e.store.CreateRun(ctx, run)
	if err != nil {
		return false, err
	}
	if !created {
		klog.V(4).Infof("run %s already exists, skipping", runId)
		return false, nil
	}
	e.launch(run)
	return true, nil
}

// Send emits an event, optionally delayed to deliverAt. Waiting runs on
// this process wake immediately; others find it on their next poll.
func (e *Engine) Send(ctx context.Context, name, key string, payload []byte, deliverAt time.Time) error {
	event := &Event{
		Name:      name,
		Key:       key,
		Payload:   payload,
		DeliverAt: deliverAt,
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		return err
	}
	if deliverAt.IsZero() || !deliverAt.After(time.Now()) {
		e.wake(name, key)
	}
	return nil
}

// ResumePending relaunches runs that were in flight when a process died.
func (e *Engine) ResumePending(ctx context.Context) error {
	runs, err := e.store.ListRunsByState(ctx, RunRunning)
	if err != nil {
		return err
	}
	for _, run := range runs {
		e.launch(run)
	}
	if len(runs) > 0 {
		klog.Infof("resumed %d pending workflow runs", len(runs))
	}
	return nil
}

func (e *Engine) launch(run *Run) {
	e.mu.Lock()
	if e.activeRuns[run.RunId] {
		e.mu.Unlock()
		return
	}
	e.activeRuns[run.RunId] = true
	sem, ok := e.sems[run.OrgKey]
	if !ok {
		sem = make(chan struct{}, e.opts.OrgConcurrencyLimit)
		e.sems[run.OrgKey] = sem
	}
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.activeRuns, run.RunId)
			e.mu.Unlock()
		}()

		ctx := e.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			// Still journaled as RUNNING; the next process resumes it.
			return
		}

		wc := &Context{ctx: ctx, engine: e, run: run}
		err := e.handlers[run.Kind](wc)
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown interrupted the run; leave it resumable.
				return
			}
			klog.ErrorS(err, "workflow run failed", "runId", run.RunId, "kind", run.Kind)
			if stateErr := e.store.SetRunState(context.Background(), run.RunId, RunFailed, err.Error()); stateErr != nil {
				klog.ErrorS(stateErr, "failed to record run failure", "runId", run.RunId)
			}
			return
		}
		if stateErr := e.store.SetRunState(context.Background(), run.RunId, RunCompleted, ""); stateErr != nil {
			klog.ErrorS(stateErr, "failed to record run completion", "runId", run.RunId)
		}
	}()
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.dispatchTriggers()
			e.wakeAll()
		}
	}
}

func (e *Engine) dispatchTriggers() {
	now := time.Now()
	for name, fn := range e.triggers {
		for {
			event, err := e.store.ClaimTriggerEvent(e.ctx, name, now)
			if err != nil {
				klog.ErrorS(err, "failed to claim trigger event", "name", name)
				break
			}
			if event == nil {
				break
			}
			fn(e.ctx, event)
		}
	}
}

func waiterKey(name, key string) string {
	return name + "\x00" + key
}

func (e *Engine) wake(name, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.waiters[waiterKey(name, key)] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// wakeAll nudges every waiter so delayed events are noticed without a
// targeted wake.
func (e *Engine) wakeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, chans := range e.waiters {
		for _, ch := range chans {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (e *Engine) addWaiter(name, key string, ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := waiterKey(name, key)
	e.waiters[k] = append(e.waiters[k], ch)
}

func (e *Engine) removeWaiter(name, key string, ch chan struct{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	k := waiterKey(name, key)
	chans := e.waiters[k]
	for i, c := range chans {
		if c == ch {
			e.waiters[k] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(e.waiters[k]) == 0 {
		delete(e.waiters, k)
	}
}

// Context is handed to workflow handlers. All durability primitives hang
// off it.
type Context struct {
	ctx    context.Context
	engine *Engine
	run    *Run
}

func (c *Context) Ctx() context.Context {
	return c.ctx
}

func (c *Context) RunId() string {
	return c.run.RunId
}

func (c *Context) Input() []byte {
	return c.run.Input
}

// Step runs fn exactly once per run per name and memoizes its JSON-encoded
// result. A replay after a crash returns the stored value without calling
// fn. Transient failures of fn retry up to three times; fn must be
// idempotent at the durable-store layer.
func (c *Context) Step(name string, out interface{}, fn func(ctx context.Context) (interface{}, error)) error {
	stored, err := c.engine.store.GetStep(c.ctx, c.run.RunId, name)
	if err != nil {
		return err
	}
	if stored != nil {
		if out == nil || len(stored.Output) == 0 {
			return nil
		}
		return json.Unmarshal(stored.Output, out)
	}

	var result interface{}
	err = backoff.TransientRetry(func() error {
		var fnErr error
		result, fnErr = fn(c.ctx)
		return fnErr
	}, stepRetryCount, stepRetryInterval)
	if err != nil {
		return err
	}

	var output []byte
	if result != nil {
		if output, err = json.Marshal(result); err != nil {
			return fmt.Errorf("failed to marshal step %s result: %v", name, err)
		}
	}
	if err = c.engine.store.PutStep(c.ctx, &Step{
		RunId:  c.run.RunId,
		Name:   name,
		Output: output,
	}); err != nil {
		return err
	}
	if out != nil && len(output) > 0 {
		return json.Unmarshal(output, out)
	}
	return nil
}

// WaitForEvent suspends the run until an event matching name and key is
// due, or until timeout. Returns nil on timeout. The wait consumes no
// journal state, so a restarted process re-enters it transparently.
func (c *Context) WaitForEvent(name, key string, timeout time.Duration) (*Event, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	wakeCh := make(chan struct{}, 1)
	c.engine.addWaiter(name, key, wakeCh)
	defer c.engine.removeWaiter(name, key, wakeCh)

	poll := time.NewTicker(c.engine.opts.PollInterval)
	defer poll.Stop()

	for {
		event, err := c.engine.store.ClaimEvent(c.ctx, name, key, time.Now())
		if err != nil {
			return nil, err
		}
		if event != nil {
			return event, nil
		}
		select {
		case <-c.ctx.Done():
			return nil, c.ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-wakeCh:
		case <-poll.C:
		}
	}
}

// Send emits an event from inside a workflow.
func (c *Context) Send(name, key string, payload []byte, deliverAt time.Time) error {
	return c.engine.Send(c.ctx, name, key, payload, deliverAt)
}
