/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	dbutils "github.com/AMD-AIG-AIMA/relay/pkg/database/utils"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/jsonutil"
	"github.com/AMD-AIG-AIMA/relay/pkg/validation"
)

// AgentRegistration is the outcome for one agent in a registration batch.
type AgentRegistration struct {
	AgentId    string `json:"agentId"`
	Name       string `json:"name"`
	ConfigHash string `json:"configHash"`
	Outcome    string `json:"outcome"`
}

// RegistrationOrchestrator fans declarative agent configs out to every
// active cluster of the org and folds per-cluster reports back into one
// aggregate agent status.
type RegistrationOrchestrator struct {
	store     Store
	queue     WorkQueue
	validator *validation.Validator
}

func NewRegistrationOrchestrator(store Store, queue WorkQueue) (*RegistrationOrchestrator, error) {
	validator, err := validation.NewValidator()
	if err != nil {
		return nil, err
	}
	return &RegistrationOrchestrator{
		store:     store,
		queue:     queue,
		validator: validator,
	}, nil
}

// RegisterAgents validates and upserts a batch of agent configs. Unchanged
// configs short-circuit with no fan-out. Changed and new ones are pushed to
// every ACTIVE cluster as REGISTRATION messages.
func (o *RegistrationOrchestrator) RegisterAgents(ctx context.Context, organizationId string,
	configs []*types.AgentConfig) (string, []*AgentRegistration, error) {
	if organizationId == "" || len(configs) == 0 {
		return "", nil, relayerrors.NewBadRequest("the input is empty")
	}
	for _, config := range configs {
		if err := o.validator.ValidateAgentConfig(config); err != nil {
			return "", nil, err
		}
	}

	clusters, err := o.store.ListActiveClusters(ctx, organizationId)
	if err != nil {
		return "", nil, err
	}

	requestId := crypto.NewId()
	results := make([]*AgentRegistration, 0, len(configs))
	for _, config := range configs {
		registration, err := o.registerAgent(ctx, organizationId, config, clusters)
		if err != nil {
			return "", nil, err
		}
		results = append(results, registration)
	}

	o.audit(ctx, organizationId, "agents.register", requestId,
		fmt.Sprintf(`{"agents":%d,"clusters":%d}`, len(configs), len(clusters)))
	return requestId, results, nil
}

func (o *RegistrationOrchestrator) registerAgent(ctx context.Context, organizationId string,
	config *types.AgentConfig, clusters []*dbclient.Cluster) (*AgentRegistration, error) {
	configHash, err := config.ConfigHash()
	if err != nil {
		return nil, relayerrors.NewInternalError(fmt.Sprintf("failed to hash agent config: %v", err))
	}

	agent := &dbclient.Agent{
		AgentId:              crypto.NewId(),
		OrganizationId:       organizationId,
		Name:                 config.Name,
		Image:                config.Image,
		Resources:            dbutils.NullString(string(jsonutil.MarshalSilently(config.Resources))),
		RetryPolicy:          dbutils.NullString(string(jsonutil.MarshalSilently(config.RetryPolicy))),
		UseAgentSandbox:      config.UseAgentSandbox,
		WarmPoolSize:         config.WarmPoolSize,
		NetworkPolicy:        config.NetworkPolicy,
		EnvironmentVariables: dbutils.NullString(string(jsonutil.MarshalSilently(config.EnvironmentVariables))),
		ConfigHash:           configHash,
		Status:               types.StatusPending,
		CreatedAt:            dbutils.NullTime(time.Now().UTC()),
		UpdatedAt:            dbutils.NullTime(time.Now().UTC()),
	}
	result, err := o.store.UpsertAgent(ctx, agent)
	if err != nil {
		return nil, err
	}
	registration := &AgentRegistration{
		AgentId:    agent.AgentId,
		Name:       config.Name,
		ConfigHash: configHash,
		Outcome:    string(result),
	}
	if result == dbclient.UpsertUnchanged {
		klog.V(4).Infof("agent %s config unchanged, skipping fan-out", config.Name)
		return registration, nil
	}

	message := &types.QueueMessage{
		Type: types.MessageRegistration,
		Registration: &types.RegistrationItem{
			AgentId:     agent.AgentId,
			AgentConfig: *config,
			ConfigHash:  configHash,
		},
	}
	for _, cluster := range clusters {
		if err = o.queue.Enqueue(ctx, organizationId, cluster.ClusterId, message, types.PriorityHigh); err != nil {
			return nil, err
		}
		if err = o.store.UpsertAgentClusterStatus(ctx, &dbclient.AgentClusterStatus{
			AgentId:   agent.AgentId,
			ClusterId: cluster.ClusterId,
			Status:    types.StatusPending,
			UpdatedAt: dbutils.NullTime(time.Now().UTC()),
		}); err != nil {
			return nil, err
		}
	}
	klog.Infof("agent %s registration fanned out to %d clusters, hash: %s",
		config.Name, len(clusters), configHash)
	return registration, nil
}

// HandleRegistrationStatus folds one cluster's registration report into the
// per-cluster row and recomputes the aggregate agent status. Any FAILED
// cluster fails the agent; all ACTIVE activates it; otherwise it stays
// PENDING.
func (o *RegistrationOrchestrator) HandleRegistrationStatus(ctx context.Context,
	clusterId, agentId, status, errMsg string) error {
	if clusterId == "" || agentId == "" || status == "" {
		return relayerrors.NewBadRequest("the input is empty")
	}
	if err := o.store.UpsertAgentClusterStatus(ctx, &dbclient.AgentClusterStatus{
		AgentId:   agentId,
		ClusterId: clusterId,
		Status:    status,
		Error:     dbutils.NullString(errMsg),
		UpdatedAt: dbutils.NullTime(time.Now().UTC()),
	}); err != nil {
		return err
	}

	statuses, err := o.store.SelectAgentClusterStatuses(ctx, agentId)
	if err != nil {
		return err
	}
	aggregate := types.StatusActive
	report := make(map[string]string, len(statuses))
	for _, row := range statuses {
		report[row.ClusterId] = row.Status
		switch row.Status {
		case types.StatusFailed:
			aggregate = types.StatusFailed
		case types.StatusPending:
			if aggregate != types.StatusFailed {
				aggregate = types.StatusPending
			}
		}
	}
	if err = o.store.SetAgentStatus(ctx, agentId, aggregate,
		string(jsonutil.MarshalSilently(report))); err != nil {
		return err
	}
	klog.V(4).Infof("agent %s registration status from cluster %s: %s, aggregate: %s",
		agentId, clusterId, status, aggregate)
	return nil
}

func (o *RegistrationOrchestrator) audit(ctx context.Context, organizationId, action, resource, detail string) {
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
