/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package orchestrator

import (
	"context"
	"database/sql"
	"sync"
	"time"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

// fakeStore is an in-memory Store for orchestrator tests.
type fakeStore struct {
	mu         sync.Mutex
	executions map[string]*dbclient.Execution
	agents     map[string]*dbclient.Agent
	clusters   map[string]*dbclient.Cluster
	agentRows  map[string]map[string]*dbclient.AgentClusterStatus
	audits     []*dbclient.AuditLog
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		executions: make(map[string]*dbclient.Execution),
		agents:     make(map[string]*dbclient.Agent),
		clusters:   make(map[string]*dbclient.Cluster),
		agentRows:  make(map[string]map[string]*dbclient.AgentClusterStatus),
	}
}

func (s *fakeStore) InsertExecution(_ context.Context, execution *dbclient.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[execution.ExecutionId]; ok {
		return nil
	}
	clone := *execution
	s.executions[execution.ExecutionId] = &clone
	return nil
}

func (s *fakeStore) GetExecutionById(_ context.Context, executionId string) (*dbclient.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	execution, ok := s.executions[executionId]
	if !ok {
		return nil, relayerrors.NewNotFound("Execution", executionId)
	}
	clone := *execution
	return &clone, nil
}

func (s *fakeStore) UpdateExecutionStatus(_ context.Context, executionId string,
	fromStatuses []string, toStatus string, fields map[string]interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	execution, ok := s.executions[executionId]
	if !ok {
		return false, nil
	}
	matched := false
	for _, status := range fromStatuses {
		if execution.Status == status {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	execution.Status = toStatus
	applyExecutionFields(execution, fields)
	return true, nil
}

func (s *fakeStore) SetExecutionAttempt(_ context.Context, executionId string,
	attempt int, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	execution, ok := s.executions[executionId]
	if !ok {
		return relayerrors.NewNotFound("Execution", executionId)
	}
	execution.Attempt = attempt
	if status, ok := fields["status"].(string); ok {
		execution.Status = status
	}
	if at, ok := fields["next_retry_at"].(time.Time); ok {
		execution.NextRetryAt = dbutils.NullTime(at)
	}
	return nil
}

func applyExecutionFields(execution *dbclient.Execution, fields map[string]interface{}) {
	for name, value := range fields {
		switch name {
		case "cluster_id":
			execution.ClusterId = dbutils.NullString(value.(string))
		case "queued_at":
			execution.QueuedAt = dbutils.NullTime(value.(time.Time))
		case "started_at":
			execution.StartedAt = dbutils.NullTime(value.(time.Time))
		case "completed_at":
			execution.CompletedAt = dbutils.NullTime(value.(time.Time))
		case "error":
			execution.Error = dbutils.NullString(value.(string))
		case "result":
			execution.Result = dbutils.NullString(value.(string))
		case "resource_usage":
			execution.ResourceUsage = dbutils.NullString(value.(string))
		case "duration_ms":
			execution.DurationMs = sql.NullInt64{Int64: value.(int64), Valid: true}
		}
	}
}

func (s *fakeStore) UpsertAgent(_ context.Context, agent *dbclient.Agent) (dbclient.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.agents {
		if existing.OrganizationId == agent.OrganizationId && existing.Name == agent.Name {
			if existing.ConfigHash == agent.ConfigHash {
				agent.AgentId = existing.AgentId
				return dbclient.UpsertUnchanged, nil
			}
			agent.AgentId = existing.AgentId
			clone := *agent
			clone.Status = types.StatusPending
			s.agents[existing.AgentId] = &clone
			return dbclient.UpsertUpdated, nil
		}
	}
	clone := *agent
	s.agents[agent.AgentId] = &clone
	return dbclient.UpsertCreated, nil
}

func (s *fakeStore) GetAgentByName(_ context.Context, organizationId, name string) (*dbclient.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, agent := range s.agents {
		if agent.OrganizationId == organizationId && agent.Name == name {
			clone := *agent
			return &clone, nil
		}
	}
	return nil, relayerrors.NewNotFound("Agent", name)
}

func (s *fakeStore) GetAgentById(_ context.Context, agentId string) (*dbclient.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentId]
	if !ok {
		return nil, relayerrors.NewNotFound("Agent", agentId)
	}
	clone := *agent
	return &clone, nil
}

func (s *fakeStore) SetAgentStatus(_ context.Context, agentId, status, report string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentId]
	if !ok {
		return relayerrors.NewNotFound("Agent", agentId)
	}
	agent.Status = status
	agent.RegistrationReport = dbutils.NullString(report)
	return nil
}

func (s *fakeStore) UpsertAgentClusterStatus(_ context.Context, status *dbclient.AgentClusterStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.agentRows[status.AgentId]
	if !ok {
		rows = make(map[string]*dbclient.AgentClusterStatus)
		s.agentRows[status.AgentId] = rows
	}
	clone := *status
	rows[status.ClusterId] = &clone
	return nil
}

func (s *fakeStore) SelectAgentClusterStatuses(_ context.Context, agentId string) ([]*dbclient.AgentClusterStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var statuses []*dbclient.AgentClusterStatus
	for _, row := range s.agentRows[agentId] {
		clone := *row
		statuses = append(statuses, &clone)
	}
	return statuses, nil
}

func (s *fakeStore) GetClusterById(_ context.Context, clusterId string) (*dbclient.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cluster, ok := s.clusters[clusterId]
	if !ok {
		return nil, relayerrors.NewNotFound("Cluster", clusterId)
	}
	clone := *cluster
	return &clone, nil
}

func (s *fakeStore) ListActiveClusters(_ context.Context, organizationId string) ([]*dbclient.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var clusters []*dbclient.Cluster
	for _, cluster := range s.clusters {
		if cluster.OrganizationId == organizationId && cluster.Status == types.StatusActive {
			clone := *cluster
			clusters = append(clusters, &clone)
		}
	}
	return clusters, nil
}

func (s *fakeStore) InsertAuditLog(_ context.Context, auditLog *dbclient.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *auditLog
	s.audits = append(s.audits, &clone)
	return nil
}

func (s *fakeStore) seedAgent(agent *dbclient.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.AgentId] = agent
}

func (s *fakeStore) seedCluster(cluster *dbclient.Cluster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clusters[cluster.ClusterId] = cluster
}

func (s *fakeStore) execution(executionId string) *dbclient.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	execution, ok := s.executions[executionId]
	if !ok {
		return nil
	}
	clone := *execution
	return &clone
}

func (s *fakeStore) agent(agentId string) *dbclient.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[agentId]
	if !ok {
		return nil
	}
	clone := *agent
	return &clone
}

func (s *fakeStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	actions := make([]string, 0, len(s.audits))
	for _, audit := range s.audits {
		actions = append(actions, audit.Action)
	}
	return actions
}

// fakeSelector returns a fixed cluster or error.
type fakeSelector struct {
	mu      sync.Mutex
	cluster *dbclient.Cluster
	err     error
	prefs   []types.SelectionPreferences
}

func (f *fakeSelector) Select(_ context.Context, organizationId string,
	prefs types.SelectionPreferences) (*dbclient.Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = append(f.prefs, prefs)
	if f.err != nil {
		return nil, f.err
	}
	return f.cluster, nil
}

type enqueued struct {
	OrganizationId string
	ClusterId      string
	Priority       string
	Message        *types.QueueMessage
}

// fakeQueue records enqueued messages.
type fakeQueue struct {
	mu    sync.Mutex
	items []enqueued
}

func (f *fakeQueue) Enqueue(_ context.Context, organizationId, clusterId string,
	message *types.QueueMessage, priority string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, enqueued{
		OrganizationId: organizationId,
		ClusterId:      clusterId,
		Priority:       priority,
		Message:        message,
	})
	return nil
}

func (f *fakeQueue) all() []enqueued {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]enqueued(nil), f.items...)
}
