/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/workflow"
)

type executionFixture struct {
	store    *fakeStore
	selector *fakeSelector
	queue    *fakeQueue
	engine   *workflow.Engine
	orch     *ExecutionOrchestrator
}

func newExecutionFixture(t *testing.T) *executionFixture {
	f := &executionFixture{
		store:    newFakeStore(),
		selector: &fakeSelector{},
		queue:    &fakeQueue{},
	}
	f.engine = workflow.NewEngine(workflow.NewMemoryStore(),
		workflow.Options{PollInterval: 20 * time.Millisecond})
	f.orch = NewExecutionOrchestrator(f.store, f.selector, f.queue, f.engine, 500*time.Millisecond)
	require.NoError(t, f.engine.Start(context.Background()))
	t.Cleanup(func() { _ = f.engine.Close() })
	return f
}

func seedActiveAgent(f *executionFixture, agentId, name string, maxAttempts int, backoffPolicy string) {
	retryPolicy, _ := json.Marshal(types.RetryPolicy{
		MaxAttempts:  maxAttempts,
		Backoff:      backoffPolicy,
		InitialDelay: "1s",
	})
	resources, _ := json.Marshal(types.Resources{Cpu: "500m", Memory: "512Mi", Timeout: "5s"})
	f.store.seedAgent(&dbclient.Agent{
		AgentId:        agentId,
		OrganizationId: "o1",
		Name:           name,
		Image:          "registry.io/acme/" + name + ":v1",
		Status:         types.StatusActive,
		Resources:      dbutils.NullString(string(resources)),
		RetryPolicy:    dbutils.NullString(string(retryPolicy)),
		NetworkPolicy:  types.NetworkRestricted,
	})
}

func seedActiveCluster(f *executionFixture, clusterId string) *dbclient.Cluster {
	cluster := &dbclient.Cluster{
		ClusterId:      clusterId,
		OrganizationId: "o1",
		Name:           clusterId,
		Status:         types.StatusActive,
	}
	f.store.seedCluster(cluster)
	return cluster
}

func awaitExecution(t *testing.T, f *executionFixture, executionId string,
	condition func(e *dbclient.Execution) bool, message string) *dbclient.Execution {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if execution := f.store.execution(executionId); execution != nil && condition(execution) {
			return execution
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
	return nil
}

func TestExecutionQueuedAndCompleted(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 1, types.BackoffConstant)
	f.selector.cluster = seedActiveCluster(f, "c1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "summarizer",
		Input:          json.RawMessage(`{"text":"hello"}`),
	}))

	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "execution not queued")
	assert.Equal(t, "c1", dbutils.ParseNullString(execution.ClusterId))
	assert.Equal(t, 1, execution.Attempt)
	assert.Equal(t, 1, execution.MaxAttempts)

	items := f.queue.all()
	require.Len(t, items, 1)
	assert.Equal(t, types.PriorityNormal, items[0].Priority)
	require.NotNil(t, items[0].Message.Work)
	assert.Equal(t, "e1", items[0].Message.Work.ExecutionId)
	assert.Equal(t, "registry.io/acme/summarizer:v1", items[0].Message.Work.Image)

	// RUNNING is advisory and recorded in place.
	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionRunning,
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionRunning && e.StartedAt.Valid
	}, "running not recorded")

	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionCompleted,
		Result:      json.RawMessage(`{"summary":"hi"}`),
		DurationMs:  1200,
	}))
	execution = awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionCompleted
	}, "execution not completed")
	assert.JSONEq(t, `{"summary":"hi"}`, dbutils.ParseNullString(execution.Result))
	assert.Equal(t, int64(1200), execution.DurationMs.Int64)
	assert.True(t, execution.CompletedAt.Valid)
	assert.Contains(t, f.store.auditActions(), "execution.requested")
}

func TestExecutionAgentNotFound(t *testing.T) {
	f := newExecutionFixture(t)

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "missing",
	}))

	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionFailed
	}, "execution not failed")
	assert.Contains(t, dbutils.ParseNullString(execution.Error), types.ErrCodeExecutionFailed)
	assert.Empty(t, f.queue.all())
}

func TestExecutionNoEligibleCluster(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 1, types.BackoffConstant)
	f.selector.err = relayerrors.NewNoEligibleCluster("no eligible cluster for organization o1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "summarizer",
	}))

	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionFailed
	}, "execution not failed")
	assert.Contains(t, dbutils.ParseNullString(execution.Error), types.ErrCodeNoEligibleCluster)
	assert.Empty(t, f.queue.all())
}

func TestExecutionPreferredClusterWins(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 1, types.BackoffConstant)
	f.selector.cluster = seedActiveCluster(f, "c-default")
	seedActiveCluster(f, "c-preferred")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:        "e1",
		OrganizationId:     "o1",
		AgentName:          "summarizer",
		PreferredClusterId: "c-preferred",
	}))

	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "execution not queued")
	assert.Equal(t, "c-preferred", dbutils.ParseNullString(execution.ClusterId))
}

func TestExecutionPreferredClusterForeignOrgIgnored(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 1, types.BackoffConstant)
	f.selector.cluster = seedActiveCluster(f, "c-default")
	f.store.seedCluster(&dbclient.Cluster{
		ClusterId:      "c-foreign",
		OrganizationId: "o2",
		Status:         types.StatusActive,
	})

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:        "e1",
		OrganizationId:     "o1",
		AgentName:          "summarizer",
		PreferredClusterId: "c-foreign",
	}))

	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "execution not queued")
	assert.Equal(t, "c-default", dbutils.ParseNullString(execution.ClusterId))
}

func TestExecutionRetriesThenFailsTerminally(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 2, types.BackoffConstant)
	f.selector.cluster = seedActiveCluster(f, "c1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "summarizer",
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "first attempt not queued")

	// First failure reschedules with attempt 2.
	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionFailed,
		Error:       &types.ExecutionError{Code: "oom", Message: "container killed"},
	}))
	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Attempt == 2
	}, "retry not scheduled")
	assert.True(t, execution.NextRetryAt.Valid)

	// The delayed execution.requested fires after the backoff and requeues.
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Attempt == 2 && e.Status == types.ExecutionQueued
	}, "second attempt not queued")
	assert.Len(t, f.queue.all(), 2)

	// Second failure is terminal: attempt == maxAttempts.
	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionFailed,
		Error:       &types.ExecutionError{Code: "oom", Message: "container killed"},
	}))
	execution = awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionFailed
	}, "terminal failure not recorded")
	assert.Contains(t, dbutils.ParseNullString(execution.Error), "oom")
}

func TestExecutionRetryThenSucceeds(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 3, types.BackoffConstant)
	f.selector.cluster = seedActiveCluster(f, "c1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "summarizer",
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "first attempt not queued")

	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionFailed,
		Error:       &types.ExecutionError{Code: "oom", Message: "container killed"},
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Attempt == 2 && e.Status == types.ExecutionQueued
	}, "second attempt not queued")
	assert.Len(t, f.queue.all(), 2)

	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionCompleted,
		Result:      json.RawMessage(`{"summary":"recovered"}`),
	}))
	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionCompleted
	}, "second attempt not completed")
	assert.Equal(t, 2, execution.Attempt)
	assert.JSONEq(t, `{"summary":"recovered"}`, dbutils.ParseNullString(execution.Result))
	assert.True(t, execution.CompletedAt.Valid)
}

func TestExecutionStaleReleaseDoesNotEndWait(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 3, types.BackoffConstant)
	f.selector.cluster = seedActiveCluster(f, "c1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "summarizer",
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "first attempt not queued")

	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionFailed,
		Error:       &types.ExecutionError{Code: "oom", Message: "container killed"},
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Attempt == 2 && e.Status == types.ExecutionQueued
	}, "second attempt not queued")

	// A replayed release addressed to attempt 1, as after a crash-restart,
	// must not satisfy attempt 2's wait.
	payload, err := json.Marshal(&CompletionEvent{
		ExecutionId: "e1",
		Attempt:     1,
		Status:      CompletionRetrying,
	})
	require.NoError(t, err)
	require.NoError(t, f.engine.Send(context.Background(), EventExecutionCompleted, "e1", payload, time.Time{}))
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{
		ExecutionId: "e1",
		Status:      types.ExecutionCompleted,
		Result:      json.RawMessage(`{"summary":"late"}`),
	}))
	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionCompleted
	}, "completion lost after stale release")
	assert.Equal(t, 2, execution.Attempt)
	assert.JSONEq(t, `{"summary":"late"}`, dbutils.ParseNullString(execution.Result))
}

func TestExecutionTimeoutFails(t *testing.T) {
	f := newExecutionFixture(t)
	seedActiveAgent(f, "a1", "summarizer", 1, types.BackoffConstant)
	// Shrink the agent timeout so the wait expires quickly.
	resources, _ := json.Marshal(types.Resources{Cpu: "500m", Memory: "512Mi", Timeout: "1s"})
	agent := f.store.agent("a1")
	agent.Resources = dbutils.NullString(string(resources))
	f.store.seedAgent(agent)
	f.selector.cluster = seedActiveCluster(f, "c1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "summarizer",
	}))

	execution := awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionFailed
	}, "timeout not recorded")
	assert.Contains(t, dbutils.ParseNullString(execution.Error), types.ErrCodeExecutionTimeout)
}

func TestExecutionGpuRequirementForwarded(t *testing.T) {
	f := newExecutionFixture(t)
	resources, _ := json.Marshal(types.Resources{Cpu: "500m", Memory: "512Mi", Gpu: "1", Timeout: "5s"})
	f.store.seedAgent(&dbclient.Agent{
		AgentId:        "a1",
		OrganizationId: "o1",
		Name:           "trainer",
		Image:          "registry.io/acme/trainer:v1",
		Status:         types.StatusActive,
		Resources:      dbutils.NullString(string(resources)),
	})
	f.selector.cluster = seedActiveCluster(f, "c1")

	require.NoError(t, f.orch.Request(context.Background(), &ExecutionRequest{
		ExecutionId:    "e1",
		OrganizationId: "o1",
		AgentName:      "trainer",
	}))
	awaitExecution(t, f, "e1", func(e *dbclient.Execution) bool {
		return e.Status == types.ExecutionQueued
	}, "execution not queued")

	f.selector.mu.Lock()
	defer f.selector.mu.Unlock()
	require.Len(t, f.selector.prefs, 1)
	assert.True(t, f.selector.prefs[0].RequireGpu)
}

func TestHandleCompletionBadInput(t *testing.T) {
	f := newExecutionFixture(t)
	assert.Error(t, f.orch.HandleCompletion(context.Background(), nil))
	assert.Error(t, f.orch.HandleCompletion(context.Background(), &CompletionEvent{}))
}
