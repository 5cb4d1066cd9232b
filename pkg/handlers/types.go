/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"database/sql"
	"encoding/json"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	"github.com/AMD-AIG-AIMA/relay/pkg/orchestrator"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

// RegisterAgentsRequest is the batch form of POST /api/agents/register.
type RegisterAgentsRequest struct {
	Agents []*types.AgentConfig `json:"agents"`
}

// RegisterAgentsResponse acknowledges an accepted registration batch.
type RegisterAgentsResponse struct {
	Accepted  bool                              `json:"accepted"`
	RequestId string                            `json:"requestId"`
	Agents    []*orchestrator.AgentRegistration `json:"agents"`
}

// ExecuteRequest is the body of POST /api/execute.
type ExecuteRequest struct {
	Agent    string          `json:"agent"`
	Input    json.RawMessage `json:"input,omitempty"`
	Priority string          `json:"priority,omitempty"`
	Cluster  string          `json:"cluster,omitempty"`
}

// ExecuteResponse acknowledges an accepted execution.
type ExecuteResponse struct {
	ExecutionId string `json:"executionId"`
	Status      string `json:"status"`
}

// RegisterClusterRequest is the body of POST /api/clusters/register.
type RegisterClusterRequest struct {
	Name           string              `json:"name"`
	RelayerVersion string              `json:"relayerVersion,omitempty"`
	Capabilities   *types.Capabilities `json:"capabilities,omitempty"`
}

// AgentDoc is the API view of one agent row.
type AgentDoc struct {
	AgentId       string          `json:"agentId"`
	Name          string          `json:"name"`
	Image         string          `json:"image"`
	ConfigHash    string          `json:"configHash"`
	Status        string          `json:"status"`
	Resources     json.RawMessage `json:"resources,omitempty"`
	RetryPolicy   json.RawMessage `json:"retryPolicy,omitempty"`
	NetworkPolicy string          `json:"networkPolicy,omitempty"`
	WarmPoolSize  int             `json:"warmPoolSize"`
	Sandbox       bool            `json:"useAgentSandbox"`
	Clusters      json.RawMessage `json:"clusters,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	UpdatedAt     string          `json:"updatedAt,omitempty"`
}

// ExecutionDoc is the API view of one execution row.
type ExecutionDoc struct {
	ExecutionId   string          `json:"executionId"`
	AgentId       string          `json:"agentId"`
	Agent         string          `json:"agent,omitempty"`
	ClusterId     string          `json:"clusterId,omitempty"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	Attempt       int             `json:"attempt"`
	MaxAttempts   int             `json:"maxAttempts"`
	Input         json.RawMessage `json:"input,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Error         json.RawMessage `json:"error,omitempty"`
	ResourceUsage json.RawMessage `json:"resourceUsage,omitempty"`
	DurationMs    int64           `json:"durationMs,omitempty"`
	CreatedAt     string          `json:"createdAt,omitempty"`
	QueuedAt      string          `json:"queuedAt,omitempty"`
	StartedAt     string          `json:"startedAt,omitempty"`
	CompletedAt   string          `json:"completedAt,omitempty"`
	NextRetryAt   string          `json:"nextRetryAt,omitempty"`
}

func toAgentDoc(agent *dbclient.Agent) *AgentDoc {
	return &AgentDoc{
		AgentId:       agent.AgentId,
		Name:          agent.Name,
		Image:         agent.Image,
		ConfigHash:    agent.ConfigHash,
		Status:        agent.Status,
		Resources:     rawOrNil(agent.Resources),
		RetryPolicy:   rawOrNil(agent.RetryPolicy),
		NetworkPolicy: agent.NetworkPolicy,
		WarmPoolSize:  agent.WarmPoolSize,
		Sandbox:       agent.UseAgentSandbox,
		Clusters:      rawOrNil(agent.RegistrationReport),
		CreatedAt:     dbutils.ParseNullTimeToString(agent.CreatedAt),
		UpdatedAt:     dbutils.ParseNullTimeToString(agent.UpdatedAt),
	}
}

func toExecutionDoc(execution *dbclient.Execution, agentName string) *ExecutionDoc {
	doc := &ExecutionDoc{
		ExecutionId:   execution.ExecutionId,
		AgentId:       execution.AgentId,
		Agent:         agentName,
		ClusterId:     dbutils.ParseNullString(execution.ClusterId),
		Status:        execution.Status,
		Priority:      execution.Priority,
		Attempt:       execution.Attempt,
		MaxAttempts:   execution.MaxAttempts,
		Input:         rawOrNil(execution.Input),
		Result:        rawOrNil(execution.Result),
		Error:         rawOrNil(execution.Error),
		ResourceUsage: rawOrNil(execution.ResourceUsage),
		CreatedAt:     dbutils.ParseNullTimeToString(execution.CreatedAt),
		QueuedAt:      dbutils.ParseNullTimeToString(execution.QueuedAt),
		StartedAt:     dbutils.ParseNullTimeToString(execution.StartedAt),
		CompletedAt:   dbutils.ParseNullTimeToString(execution.CompletedAt),
		NextRetryAt:   dbutils.ParseNullTimeToString(execution.NextRetryAt),
	}
	if execution.DurationMs.Valid {
		doc.DurationMs = execution.DurationMs.Int64
	}
	return doc
}

func rawOrNil(str sql.NullString) json.RawMessage {
	if !str.Valid || str.String == "" {
		return nil
	}
	return json.RawMessage(str.String)
}
