/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"net/http"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/handlers/authority"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/utils/jsonutil"
)

// RegisterAgents handles declarative agent registration.
// POST /api/agents/register
func (h *Handler) RegisterAgents(c *gin.Context) {
	handle(c, h.registerAgents)
}

// ListAgents handles listing the caller's agents.
// GET /api/agents
func (h *Handler) ListAgents(c *gin.Context) {
	handle(c, h.listAgents)
}

func (h *Handler) registerAgents(c *gin.Context) (interface{}, error) {
	organizationId := c.GetString(authority.OrganizationId)
	body, err := c.GetRawData()
	if err != nil {
		return nil, relayerrors.NewBadRequest(fmt.Sprintf("failed to read request body: %v", err))
	}

	// Accept either a batch envelope or a bare config.
	req := RegisterAgentsRequest{}
	if err = jsonutil.UnmarshalWithCheck(body, &req); err != nil || len(req.Agents) == 0 {
		config := &types.AgentConfig{}
		if err = jsonutil.UnmarshalWithCheck(body, config); err != nil {
			return nil, relayerrors.NewBadRequest(fmt.Sprintf("invalid request: %v", err))
		}
		req.Agents = []*types.AgentConfig{config}
	}

	requestId, results, err := h.registrations.RegisterAgents(c.Request.Context(), organizationId, req.Agents)
	if err != nil {
		return nil, err
	}
	c.Status(http.StatusAccepted)
	return &RegisterAgentsResponse{
		Accepted:  true,
		RequestId: requestId,
		Agents:    results,
	}, nil
}

func (h *Handler) listAgents(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	organizationId := c.GetString(authority.OrganizationId)

	if name := c.Query("name"); name != "" {
		agent, err := h.store.GetAgentByName(ctx, organizationId, name)
		if err != nil {
			return nil, err
		}
		return gin.H{"agents": []*AgentDoc{toAgentDoc(agent)}}, nil
	}

	agents, err := h.store.SelectAgents(ctx,
		sqrl.Eq{"organization_id": organizationId}, []string{dbclient.CreatedAt + " " + dbclient.DESC}, 0, 0)
	if err != nil {
		return nil, err
	}
	docs := make([]*AgentDoc, 0, len(agents))
	for _, agent := range agents {
		docs = append(docs, toAgentDoc(agent))
	}
	return gin.H{"agents": docs}, nil
}
