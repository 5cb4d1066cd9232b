/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package orchestrator

import (
	"context"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

// Store is the slice of the durable store the orchestrators depend on.
// *dbclient.Client satisfies it.
type Store interface {
	InsertExecution(ctx context.Context, execution *dbclient.Execution) error
	GetExecutionById(ctx context.Context, executionId string) (*dbclient.Execution, error)
	UpdateExecutionStatus(ctx context.Context, executionId string,
		fromStatuses []string, toStatus string, fields map[string]interface{}) (bool, error)
	SetExecutionAttempt(ctx context.Context, executionId string,
		attempt int, fields map[string]interface{}) error

	UpsertAgent(ctx context.Context, agent *dbclient.Agent) (dbclient.UpsertResult, error)
	GetAgentByName(ctx context.Context, organizationId, name string) (*dbclient.Agent, error)
	GetAgentById(ctx context.Context, agentId string) (*dbclient.Agent, error)
	SetAgentStatus(ctx context.Context, agentId, status, report string) error
	UpsertAgentClusterStatus(ctx context.Context, status *dbclient.AgentClusterStatus) error
	SelectAgentClusterStatuses(ctx context.Context, agentId string) ([]*dbclient.AgentClusterStatus, error)

	GetClusterById(ctx context.Context, clusterId string) (*dbclient.Cluster, error)
	ListActiveClusters(ctx context.Context, organizationId string) ([]*dbclient.Cluster, error)

	InsertAuditLog(ctx context.Context, auditLog *dbclient.AuditLog) error
}

// ClusterSelector picks the best eligible cluster for one execution.
type ClusterSelector interface {
	Select(ctx context.Context, organizationId string,
		prefs types.SelectionPreferences) (*dbclient.Cluster, error)
}

// WorkQueue is the slice of the queue the orchestrators depend on.
type WorkQueue interface {
	Enqueue(ctx context.Context, organizationId, clusterId string,
		message *types.QueueMessage, priority string) error
}
