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

// UpsertResult reports the effect of an agent upsert.
type UpsertResult string

const (
	UpsertCreated   UpsertResult = "created"
	UpsertUpdated   UpsertResult = "updated"
	UpsertUnchanged UpsertResult = "unchanged"
)

var (
	getAgentByNameCmd = fmt.Sprintf(
		`SELECT * FROM %s WHERE organization_id = $1 AND name = $2 LIMIT 1`, TAgent)
	getAgentByIdCmd   = fmt.Sprintf(`SELECT * FROM %s WHERE agent_id = $1 LIMIT 1`, TAgent)
	insertAgentFormat = `INSERT INTO ` + TAgent + ` (%s) VALUES (%s)`
	updateAgentCmd    = fmt.Sprintf(`UPDATE %s
		SET image = :image,
		    resources = :resources,
		    retry_policy = :retry_policy,
		    use_agent_sandbox = :use_agent_sandbox,
		    warm_pool_size = :warm_pool_size,
		    network_policy = :network_policy,
		    environment_variables = :environment_variables,
		    config_hash = :config_hash,
		    status = :status,
		    updated_at = :updated_at
		WHERE organization_id = :organization_id AND name = :name`, TAgent)
)

// UpsertAgent inserts or updates an agent keyed by (organization_id, name).
// The configHash decides the outcome: a matching hash leaves the row alone
// so no downstream side effects are emitted for no-op registrations.
func (c *Client) UpsertAgent(ctx context.Context, agent *Agent) (UpsertResult, error) {
	if agent == nil {
		return "", relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return "", err
	}

	var existing []*Agent
	if err = db.SelectContext(ctx, &existing, getAgentByNameCmd, agent.OrganizationId, agent.Name); err != nil {
		return "", relayerrors.NewTransient(fmt.Sprintf("failed to select agent: %v", err))
	}
	if len(existing) > 0 && existing[0] != nil {
		if existing[0].ConfigHash == agent.ConfigHash {
			agent.AgentId = existing[0].AgentId
			return UpsertUnchanged, nil
		}
		agent.AgentId = existing[0].AgentId
		if _, err = db.NamedExecContext(ctx, updateAgentCmd, agent); err != nil {
			klog.ErrorS(err, "failed to update agent", "name", agent.Name)
			return "", relayerrors.NewTransient(fmt.Sprintf("failed to update agent: %v", err))
		}
		return UpsertUpdated, nil
	}
	if _, err = db.NamedExecContext(ctx, generateCommand(*agent, insertAgentFormat, "id"), agent); err != nil {
		klog.ErrorS(err, "failed to insert agent", "name", agent.Name)
		return "", relayerrors.NewTransient(fmt.Sprintf("failed to insert agent: %v", err))
	}
	return UpsertCreated, nil
}

// GetAgentByName retrieves one agent of an organization by name.
func (c *Client) GetAgentByName(ctx context.Context, organizationId, name string) (*Agent, error) {
	if organizationId == "" || name == "" {
		return nil, relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var agents []*Agent
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	if err = db.SelectContext(ctx2, &agents, getAgentByNameCmd, organizationId, name); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select agent: %v", err))
	}
	if len(agents) == 0 || agents[0] == nil {
		return nil, relayerrors.NewNotFound("Agent", name)
	}
	return agents[0], nil
}

// GetAgentById retrieves one agent by its id.
func (c *Client) GetAgentById(ctx context.Context, agentId string) (*Agent, error) {
	if agentId == "" {
		return nil, relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	var agents []*Agent
	if err = db.SelectContext(ctx, &agents, getAgentByIdCmd, agentId); err != nil {
		return nil, relayerrors.NewTransient(fmt.Sprintf("failed to select agent: %v", err))
	}
	if len(agents) == 0 || agents[0] == nil {
		return nil, relayerrors.NewNotFound("Agent", agentId)
	}
	return agents[0], nil
}

// SelectAgents retrieves agents based on query conditions.
func (c *Client) SelectAgents(ctx context.Context, query sqrl.Sqlizer,
	orderBy []string, limit, offset int) ([]*Agent, error) {
	db, err := c.getDB()
	if err != nil {
		return nil, err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Select("*").From(TAgent)
	if query != nil {
		builder = builder.Where(query)
	}
	for _, order := range orderBy {
		builder = builder.OrderBy(order)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	if offset > 0 {
		builder = builder.Offset(uint64(offset))
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select agents query: %v", err)
	}
	var agents []*Agent
	ctx2, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()
	err = db.SelectContext(ctx2, &agents, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select agents from db: %v", err)
	}
	return agents, nil
}

// SetAgentStatus persists the aggregate status of an agent.
func (c *Client) SetAgentStatus(ctx context.Context, agentId, status string, report string) error {
	if agentId == "" || status == "" {
		return relayerrors.NewBadRequest("the input is empty")
	}
	db, err := c.getDB()
	if err != nil {
		return err
	}
	builder := sqrl.StatementBuilder.PlaceholderFormat(sqrl.Dollar).
		Update(TAgent).
		Set("status", status).
		Where(sqrl.Eq{"agent_id": agentId})
	if report != "" {
		builder = builder.Set("registration_report", report)
	}
	sql, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err = db.ExecContext(ctx, sql, args...); err != nil {
		return relayerrors.NewTransient(fmt.Sprintf("failed to update agent status: %v", err))
	}
	return nil
}
