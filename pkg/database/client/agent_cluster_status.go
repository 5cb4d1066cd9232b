/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package client

import (
	"context"
	"fmt"

	sqrl "github.com/Masterminds/squirrel"
	"k8s.io/klog/v2"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

var (
	getAgentClusterStatusCmd = fmt.Sprintf(
		`SELECT * FROM %s WHERE agent_id = $1 AND cluster_id = $2 LIMIT 1`, TAgentClusterStatus)
	insertAgentClusterStatusFormat = `INSERT INTO ` + TAgentClusterStatus + ` (%s) VALUES (%s)`
	updateAgentClusterStatusCmd    = fmt.Sprintf(`UPDATE %s
		SET status = :status,
		    error = :error,
		    updated_at = :updated_at
		WHERE agent_id = :agent_id AND cluster_id = :cluster_id`, TAgentClusterStatus)
)

// UpsertAgentClusterStatus inserts or updates the per-cluster provisioning
// state of an agent, keyed by (agent_id, cluster_id).
func (c *Client) UpsertAgentClusterStatus(ctx context.Context, status *AgentClusterStatus) error {
	if status == nil {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	var existing []*AgentClusterStatus
	if err = db.SelectContext(ctx, &existing, getAgentClusterStatusCmd, status.AgentId, status.ClusterId); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to select agent cluster status: %v", err))
	}
	if len(existing) > 0 && existing[0] != nil {
		if _, err = db.NamedExecContext(ctx, updateAgentClusterStatusCmd, status); err != nil {
			klog.ErrorS(err, "failed to update agent cluster status",
				"agentId", status.AgentId, "clusterId", status.ClusterId)
			return relayerrors.NewTransient(fmt.Sprintf("failed to update agent cluster status: %v", err))
		}
		return nil
	}
	if _, err = db.NamedExecContext(ctx,
		generateCommand(*status, insertAgentClusterStatusFormat, "id"), status); err != nil {
		klog.ErrorS(err, "failed to insert agent cluster status",
			"agentId", status.AgentId, "clusterId", status.ClusterId)
		return relayerrors.NewTransient(fmt.Sprintf("failed to insert agent cluster status: %v", err))
	}
	return nil
}

// SelectAgentClusterStatuses retrieves the per-cluster rows of one agent.
func (c *Client) SelectAgentClusterStatuses(ctx context.Context, agentId string) ([]*AgentClusterStatus, error) {
	if agentId == "" {
		return nil, relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	sql, args, err := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TAgentClusterStatus).
		Where(sqrl.Eq{"agent_id": agentId}).ToSql()
	if err != nil {
		return nil, err
	}
	var statuses []*AgentClusterStatus
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &statuses, sql, args...); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select agent cluster statuses: %v", err))
	}
	return statuses, nil
}
