/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package orchestrator

import (
	"encoding/json"

	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

// Event names of the execution lifecycle.
const (
	EventExecutionRequested = "execution.requested"
	EventExecutionQueued    = "execution.queued"
	EventExecutionCompleted = "execution.completed"
	EventExecutionFailed    = "execution.failed"
)

// Workflow kinds.
const (
	KindExecution = "execution"
)

// Completion statuses carried inside an execution.completed event. RETRYING
// releases the waiting run of a failed attempt without a terminal write.
const (
	CompletionCompleted = "COMPLETED"
	CompletionFailed    = "FAILED"
	CompletionRetrying  = "RETRYING"
)

// ExecutionRequest is the payload of an execution.requested event and the
// input of one execution workflow run.
type ExecutionRequest struct {
	ExecutionId        string          `json:"executionId"`
	OrganizationId     string          `json:"organizationId"`
	AgentName          string          `json:"agentName"`
	Input              json.RawMessage `json:"input,omitempty"`
	Priority           string          `json:"priority,omitempty"`
	PreferredClusterId string          `json:"preferredClusterId,omitempty"`
	Attempt            int             `json:"attempt"`
}

// CompletionEvent is the payload of an execution.completed event. Attempt
// addresses a release to one attempt's waiting run; zero matches any attempt.
type CompletionEvent struct {
	ExecutionId   string                `json:"executionId"`
	Attempt       int                   `json:"attempt,omitempty"`
	Status        string                `json:"status"`
	Result        json.RawMessage       `json:"result,omitempty"`
	Error         *types.ExecutionError `json:"error,omitempty"`
	DurationMs    int64                 `json:"durationMs,omitempty"`
	ResourceUsage *types.ResourceUsage  `json:"resourceUsage,omitempty"`
}

// FailureEvent is the payload of an execution.failed event.
type FailureEvent struct {
	ExecutionId string                `json:"executionId"`
	Error       *types.ExecutionError `json:"error,omitempty"`
}
