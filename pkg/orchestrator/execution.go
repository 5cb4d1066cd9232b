/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/backoff"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/jsonutil"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/timeutil"
	"github.com/AMD-AIG-AIMA/relay/pkg/workflow"
)

const (
	defaultInitialDelay = time.Second
	// redeliverDelay postpones an event handed back to another attempt's
	// run so the two waiters do not trade it in a tight loop.
	redeliverDelay = 100 * time.Millisecond
)

// ExecutionOrchestrator drives the state machine of one execution: durable
// record, cluster selection, queueing and the wait for completion.
type ExecutionOrchestrator struct {
	store     Store
	selector  ClusterSelector
	queue     WorkQueue
	engine    *workflow.Engine
	waitGrace time.Duration
}

func NewExecutionOrchestrator(store Store, sel ClusterSelector, queue WorkQueue,
	engine *workflow.Engine, waitGrace time.Duration) *ExecutionOrchestrator {
	o := &ExecutionOrchestrator{
		store:     store,
		selector:  sel,
		queue:     queue,
		engine:    engine,
		waitGrace: waitGrace,
	}
	engine.RegisterWorkflow(KindExecution, o.runExecution)
	engine.RegisterTrigger(EventExecutionRequested, o.onExecutionRequested)
	engine.RegisterTrigger(EventExecutionFailed, o.onExecutionFailed)
	return o
}

// Request emits an execution.requested event for a fresh execution.
func (o *ExecutionOrchestrator) Request(ctx context.Context, req *ExecutionRequest) error {
	if req.Attempt <= 0 {
		req.Attempt = 1
	}
	if req.Priority == "" {
		req.Priority = types.PriorityNormal
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return o.engine.Send(ctx, EventExecutionRequested, req.ExecutionId, payload, time.Time{})
}

// HandleCompletion routes an execution_status frame from a relayer into the
// workflow engine. Frames are idempotent per executionId.
func (o *ExecutionOrchestrator) HandleCompletion(ctx context.Context, completion *CompletionEvent) error {
	if completion == nil || completion.ExecutionId == "" {
		return relayerrors.NewBadRequest("the input is empty")
	}
	switch completion.Status {
	case types.ExecutionRunning:
		// RUNNING is advisory. Record startedAt when first seen, never
		// rely on it for completion.
		_, err := o.store.UpdateExecutionStatus(ctx, completion.ExecutionId,
			[]string{types.ExecutionQueued}, types.ExecutionRunning,
			map[string]interface{}{"started_at": time.Now().UTC()})
		return err
	case types.ExecutionFailed:
		payload, err := json.Marshal(&FailureEvent{
			ExecutionId: completion.ExecutionId,
			Error:       completion.Error,
		})
		if err != nil {
			return err
		}
		return o.engine.Send(ctx, EventExecutionFailed, completion.ExecutionId, payload, time.Time{})
	default:
		completion.Status = CompletionCompleted
		payload, err := json.Marshal(completion)
		if err != nil {
			return err
		}
		return o.engine.Send(ctx, EventExecutionCompleted, completion.ExecutionId, payload, time.Time{})
	}
}

func (o *ExecutionOrchestrator) onExecutionRequested(ctx context.Context, event *workflow.Event) {
	req := &ExecutionRequest{}
	if err := json.Unmarshal(event.Payload, req); err != nil {
		klog.ErrorS(err, "malformed execution request event")
		return
	}
	runId := fmt.Sprintf("execution:%s:%d", req.ExecutionId, req.Attempt)
	if _, err := o.engine.StartRun(ctx, KindExecution, runId, req.OrganizationId, event.Payload); err != nil {
		klog.ErrorS(err, "failed to start execution run", "executionId", req.ExecutionId)
	}
}

// agentSnapshot memoizes the agent config resolved for one run.
type agentSnapshot struct {
	AgentId              string            `json:"agentId"`
	Name                 string            `json:"name"`
	Image                string            `json:"image"`
	Status               string            `json:"status"`
	Resources            types.Resources   `json:"resources"`
	RetryPolicy          types.RetryPolicy `json:"retryPolicy"`
	UseAgentSandbox      bool              `json:"useAgentSandbox"`
	WarmPoolSize         int               `json:"warmPoolSize"`
	NetworkPolicy        string            `json:"networkPolicy"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
}

func (o *ExecutionOrchestrator) runExecution(wc *workflow.Context) error {
	req := &ExecutionRequest{}
	if err := json.Unmarshal(wc.Input(), req); err != nil {
		return err
	}

	// Create/validate record. Idempotent by execution id; a replayed
	// request never creates a second row.
	agent := &agentSnapshot{}
	if err := wc.Step("resolve-agent", agent, func(ctx context.Context) (interface{}, error) {
		row, err := o.store.GetAgentByName(ctx, req.OrganizationId, req.AgentName)
		if err != nil {
			if relayerrors.IsNotFound(err) {
				return &agentSnapshot{}, nil
			}
			return nil, err
		}
		return snapshotFromRow(row)
	}); err != nil {
		return err
	}

	if err := wc.Step("create-record", nil, func(ctx context.Context) (interface{}, error) {
		maxAttempts := agent.RetryPolicy.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 1
		}
		execution := &dbclient.Execution{
			ExecutionId: req.ExecutionId,
			AgentId:     agent.AgentId,
			Status:      types.ExecutionPending,
			Input:       dbutils.NullString(string(req.Input)),
			Priority:    req.Priority,
			Attempt:     req.Attempt,
			MaxAttempts: maxAttempts,
			CreatedAt:   dbutils.NullTime(time.Now().UTC()),
		}
		if err := o.store.InsertExecution(ctx, execution); err != nil {
			return nil, err
		}
		o.audit(ctx, req.OrganizationId, "execution.requested", req.ExecutionId,
			fmt.Sprintf(`{"agent":%q,"attempt":%d}`, req.AgentName, req.Attempt))
		return nil, nil
	}); err != nil {
		return err
	}

	if agent.AgentId == "" {
		return o.failTerminal(wc, req, types.ErrCodeExecutionFailed,
			fmt.Sprintf("agent %s not found", req.AgentName))
	}
	if agent.Status != types.StatusActive {
		return o.failTerminal(wc, req, types.ErrCodeExecutionFailed,
			fmt.Sprintf("agent %s is not active", req.AgentName))
	}

	// Select cluster. The caller's preferred cluster wins when it is
	// ACTIVE and owned by the same org; the selector covers the rest.
	var clusterId string
	if err := wc.Step("select-cluster", &clusterId, func(ctx context.Context) (interface{}, error) {
		if req.PreferredClusterId != "" {
			cluster, err := o.store.GetClusterById(ctx, req.PreferredClusterId)
			if err == nil && cluster.OrganizationId == req.OrganizationId &&
				cluster.Status == types.StatusActive {
				return cluster.ClusterId, nil
			}
			if err != nil && !relayerrors.IsNotFound(err) {
				return nil, err
			}
		}
		prefs := types.SelectionPreferences{
			RequireGpu:     requiresGpu(agent.Resources),
			RequireSandbox: agent.UseAgentSandbox,
		}
		cluster, err := o.selector.Select(ctx, req.OrganizationId, prefs)
		if err != nil {
			if relayerrors.IsNoEligibleCluster(err) {
				return "", nil
			}
			return nil, err
		}
		return cluster.ClusterId, nil
	}); err != nil {
		return err
	}
	if clusterId == "" {
		return o.failTerminal(wc, req, types.ErrCodeNoEligibleCluster,
			"no eligible cluster for execution")
	}

	// Queue work. The CAS to QUEUED also pins clusterId so it is non-null
	// from QUEUED onward.
	if err := wc.Step("queue-work", nil, func(ctx context.Context) (interface{}, error) {
		advanced, err := o.store.UpdateExecutionStatus(ctx, req.ExecutionId,
			[]string{types.ExecutionPending}, types.ExecutionQueued,
			map[string]interface{}{
				"queued_at":  time.Now().UTC(),
				"cluster_id": clusterId,
			})
		if err != nil {
			return nil, err
		}
		if !advanced {
			klog.V(4).Infof("execution %s already left PENDING, skipping enqueue", req.ExecutionId)
			return nil, nil
		}
		message := &types.QueueMessage{
			Type: types.MessageWork,
			Work: &types.WorkItem{
				ExecutionId:          req.ExecutionId,
				AgentId:              agent.AgentId,
				AgentName:            agent.Name,
				Image:                agent.Image,
				Input:                req.Input,
				Resources:            agent.Resources,
				RetryPolicy:          agent.RetryPolicy,
				UseAgentSandbox:      agent.UseAgentSandbox,
				NetworkPolicy:        agent.NetworkPolicy,
				WarmPoolSize:         agent.WarmPoolSize,
				EnvironmentVariables: agent.EnvironmentVariables,
			},
		}
		if err = o.queue.Enqueue(ctx, req.OrganizationId, clusterId, message, req.Priority); err != nil {
			return nil, err
		}
		queued, _ := json.Marshal(map[string]string{"executionId": req.ExecutionId, "clusterId": clusterId})
		if err = wc.Send(EventExecutionQueued, req.ExecutionId, queued, time.Time{}); err != nil {
			klog.ErrorS(err, "failed to emit queued event", "executionId", req.ExecutionId)
		}
		return nil, nil
	}); err != nil {
		return err
	}

	// Wait for completion bounded by the agent timeout plus grace.
	timeout, err := timeutil.ParseDuration(agent.Resources.Timeout)
	if err != nil {
		timeout = 5 * time.Minute
	}
	deadline := time.Now().Add(timeout + o.waitGrace)
	for {
		event, err := wc.WaitForEvent(EventExecutionCompleted, req.ExecutionId, time.Until(deadline))
		if err != nil {
			return err
		}
		if event == nil {
			return o.failTimeout(wc, req)
		}

		completion := &CompletionEvent{}
		if err = json.Unmarshal(event.Payload, completion); err != nil {
			return err
		}
		// A release stamped for another attempt belongs to that attempt's
		// run. Hand it back and keep waiting.
		if completion.Attempt != 0 && completion.Attempt != req.Attempt {
			if err = wc.Send(EventExecutionCompleted, req.ExecutionId, event.Payload,
				time.Now().Add(redeliverDelay)); err != nil {
				return err
			}
			continue
		}
		switch completion.Status {
		case CompletionRetrying, CompletionFailed:
			// The failure path owns the row; this attempt's run just exits.
			return nil
		default:
			return o.complete(wc, req, completion)
		}
	}
}

func (o *ExecutionOrchestrator) complete(wc *workflow.Context, req *ExecutionRequest,
	completion *CompletionEvent) error {
	return wc.Step("complete", nil, func(ctx context.Context) (interface{}, error) {
		fields := map[string]interface{}{
			"completed_at": time.Now().UTC(),
		}
		if completion.DurationMs > 0 {
			fields["duration_ms"] = completion.DurationMs
		}
		if len(completion.Result) > 0 {
			fields["result"] = string(completion.Result)
		}
		if completion.ResourceUsage != nil {
			fields["resource_usage"] = string(jsonutil.MarshalSilently(completion.ResourceUsage))
		}
		_, err := o.store.UpdateExecutionStatus(ctx, req.ExecutionId,
			[]string{types.ExecutionQueued, types.ExecutionRunning},
			types.ExecutionCompleted, fields)
		if err != nil {
			return nil, err
		}
		klog.Infof("execution completed, id: %s, attempt: %d", req.ExecutionId, req.Attempt)
		return nil, nil
	})
}

func (o *ExecutionOrchestrator) failTimeout(wc *workflow.Context, req *ExecutionRequest) error {
	return wc.Step("fail-timeout", nil, func(ctx context.Context) (interface{}, error) {
		// A rescheduled attempt owns the row now; never fail it from here.
		current, err := o.store.GetExecutionById(ctx, req.ExecutionId)
		if err == nil && current.Attempt != req.Attempt {
			return nil, nil
		}
		execErr := &types.ExecutionError{
			Code:    types.ErrCodeExecutionTimeout,
			Message: "timed out waiting for completion",
		}
		_, err = o.store.UpdateExecutionStatus(ctx, req.ExecutionId,
			[]string{types.ExecutionQueued, types.ExecutionRunning},
			types.ExecutionFailed, map[string]interface{}{
				"completed_at": time.Now().UTC(),
				"error":        string(jsonutil.MarshalSilently(execErr)),
			})
		if err != nil {
			return nil, err
		}
		klog.Infof("execution timed out, id: %s, attempt: %d", req.ExecutionId, req.Attempt)
		return nil, nil
	})
}

func (o *ExecutionOrchestrator) failTerminal(wc *workflow.Context, req *ExecutionRequest,
	code, message string) error {
	return wc.Step("fail-terminal", nil, func(ctx context.Context) (interface{}, error) {
		execErr := &types.ExecutionError{Code: code, Message: message}
		_, err := o.store.UpdateExecutionStatus(ctx, req.ExecutionId,
			[]string{types.ExecutionPending, types.ExecutionQueued, types.ExecutionRunning},
			types.ExecutionFailed, map[string]interface{}{
				"completed_at": time.Now().UTC(),
				"error":        string(jsonutil.MarshalSilently(execErr)),
			})
		if err != nil {
			return nil, err
		}
		klog.Infof("execution failed, id: %s, code: %s", req.ExecutionId, code)
		return nil, nil
	})
}

// onExecutionFailed is the companion failure trigger. It either schedules a
// retry with backoff or writes the terminal failure.
func (o *ExecutionOrchestrator) onExecutionFailed(ctx context.Context, event *workflow.Event) {
	failure := &FailureEvent{}
	if err := json.Unmarshal(event.Payload, failure); err != nil {
		klog.ErrorS(err, "malformed execution failure event")
		return
	}
	execution, err := o.store.GetExecutionById(ctx, failure.ExecutionId)
	if err != nil {
		klog.ErrorS(err, "failed to load failed execution", "executionId", failure.ExecutionId)
		return
	}

	if execution.Attempt >= execution.MaxAttempts {
		execErr := failure.Error
		if execErr == nil {
			execErr = &types.ExecutionError{Code: types.ErrCodeExecutionFailed, Message: "execution failed"}
		}
		if execErr.Code == "" {
			execErr.Code = types.ErrCodeExecutionFailed
		}
		if _, err = o.store.UpdateExecutionStatus(ctx, failure.ExecutionId,
			[]string{types.ExecutionPending, types.ExecutionQueued, types.ExecutionRunning},
			types.ExecutionFailed, map[string]interface{}{
				"completed_at": time.Now().UTC(),
				"error":        string(jsonutil.MarshalSilently(execErr)),
			}); err != nil {
			klog.ErrorS(err, "failed to write terminal failure", "executionId", failure.ExecutionId)
			return
		}
		o.release(ctx, failure.ExecutionId, execution.Attempt, CompletionFailed)
		klog.Infof("execution failed terminally, id: %s, attempt: %d", failure.ExecutionId, execution.Attempt)
		return
	}

	delay := o.retryDelay(ctx, execution)
	nextRetryAt := time.Now().UTC().Add(delay)
	if err = o.store.SetExecutionAttempt(ctx, failure.ExecutionId, execution.Attempt+1,
		map[string]interface{}{
			"status":        types.ExecutionPending,
			"next_retry_at": nextRetryAt,
		}); err != nil {
		klog.ErrorS(err, "failed to reschedule execution", "executionId", failure.ExecutionId)
		return
	}

	agent, err := o.store.GetAgentById(ctx, execution.AgentId)
	organizationId := ""
	agentName := ""
	if err == nil {
		organizationId = agent.OrganizationId
		agentName = agent.Name
	}
	retry := &ExecutionRequest{
		ExecutionId:    failure.ExecutionId,
		OrganizationId: organizationId,
		AgentName:      agentName,
		Input:          json.RawMessage(dbutils.ParseNullString(execution.Input)),
		Priority:       execution.Priority,
		Attempt:        execution.Attempt + 1,
	}
	payload, _ := json.Marshal(retry)
	if err = o.engine.Send(ctx, EventExecutionRequested, failure.ExecutionId, payload, nextRetryAt); err != nil {
		klog.ErrorS(err, "failed to schedule retry", "executionId", failure.ExecutionId)
		return
	}
	o.release(ctx, failure.ExecutionId, execution.Attempt, CompletionRetrying)
	klog.Infof("execution retry scheduled, id: %s, attempt: %d, delay: %s",
		failure.ExecutionId, execution.Attempt+1, delay)
}

// release wakes the run of the given attempt so it exits without a terminal
// write of its own. Stamping the attempt keeps a replayed release from being
// claimed by a later attempt's run.
func (o *ExecutionOrchestrator) release(ctx context.Context, executionId string, attempt int, status string) {
	payload, _ := json.Marshal(&CompletionEvent{ExecutionId: executionId, Attempt: attempt, Status: status})
	if err := o.engine.Send(ctx, EventExecutionCompleted, executionId, payload, time.Time{}); err != nil {
		klog.ErrorS(err, "failed to release waiting run", "executionId", executionId)
	}
}

func (o *ExecutionOrchestrator) retryDelay(ctx context.Context, execution *dbclient.Execution) time.Duration {
	policy := types.RetryPolicy{Backoff: types.BackoffConstant}
	if agent, err := o.store.GetAgentById(ctx, execution.AgentId); err == nil {
		raw := dbutils.ParseNullString(agent.RetryPolicy)
		if raw != "" {
			if err = json.Unmarshal([]byte(raw), &policy); err != nil {
				klog.ErrorS(err, "malformed retry policy", "agentId", execution.AgentId)
			}
		}
	}
	initialDelay := defaultInitialDelay
	if policy.InitialDelay != "" {
		if parsed, err := timeutil.ParseDuration(policy.InitialDelay); err == nil {
			initialDelay = parsed
		}
	}
	return backoff.Delay(policy.Backoff, initialDelay, execution.Attempt)
}

func (o *ExecutionOrchestrator) audit(ctx context.Context, organizationId, action, resource, detail string) {
	err := o.store.InsertAuditLog(ctx, &dbclient.AuditLog{
		OrganizationId: organizationId,
		Actor:          "control-plane",
		Action:         action,
		Resource:       resource,
		Detail:         dbutils.NullString(detail),
		CreatedAt:      dbutils.NullTime(time.Now().UTC()),
	})
	if err != nil {
		klog.ErrorS(err, "failed to write audit log", "action", action, "resource", resource)
	}
}

func snapshotFromRow(row *dbclient.Agent) (*agentSnapshot, error) {
	snapshot := &agentSnapshot{
		AgentId:       row.AgentId,
		Name:          row.Name,
		Image:         row.Image,
		Status:        row.Status,
		NetworkPolicy: row.NetworkPolicy,
		WarmPoolSize:  row.WarmPoolSize,
	}
	snapshot.UseAgentSandbox = row.UseAgentSandbox
	if raw := dbutils.ParseNullString(row.Resources); raw != "" {
		if err := json.Unmarshal([]byte(raw), &snapshot.Resources); err != nil {
			return nil, fmt.Errorf("malformed agent resources: %v", err)
		}
	}
	if raw := dbutils.ParseNullString(row.RetryPolicy); raw != "" {
		if err := json.Unmarshal([]byte(raw), &snapshot.RetryPolicy); err != nil {
			return nil, fmt.Errorf("malformed agent retry policy: %v", err)
		}
	}
	if raw := dbutils.ParseNullString(row.EnvironmentVariables); raw != "" {
		if err := json.Unmarshal([]byte(raw), &snapshot.EnvironmentVariables); err != nil {
			return nil, fmt.Errorf("malformed agent environment: %v", err)
		}
	}
	return snapshot, nil
}

func requiresGpu(resources types.Resources) bool {
	return resources.Gpu != "" && resources.Gpu != "0"
}
