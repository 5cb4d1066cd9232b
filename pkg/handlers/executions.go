/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/handlers/authority"
	"github.com/AMD-AIG-AIMA/relay/pkg/orchestrator"
	"github.com/AMD-AIG-AIMA/relay/pkg/types"
	"github.com/AMD-AIG-AIMA/relay/pkg/validation"
)

// Execute handles submitting one execution.
// POST /api/execute
func (h *Handler) Execute(c *gin.Context) {
	handle(c, h.execute)
}

// GetExecution handles fetching one execution status document.
// GET /api/executions/:id
func (h *Handler) GetExecution(c *gin.Context) {
	handle(c, h.getExecution)
}

func (h *Handler) execute(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	organizationId := c.GetString(authority.OrganizationId)

	req := ExecuteRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, relayerrors.NewBadRequest(fmt.Sprintf("invalid request: %v", err))
	}
	if req.Agent == "" {
		return nil, relayerrors.NewBadRequest("agent is required")
	}
	priority := strings.ToUpper(req.Priority)
	if priority == "" {
		priority = types.PriorityNormal
	}
	if err := validation.ValidatePriority(priority); err != nil {
		return nil, err
	}

	// Reject unknown and inactive agents synchronously; the workflow
	// re-validates before queueing.
	agent, err := h.store.GetAgentByName(ctx, organizationId, req.Agent)
	if err != nil {
		return nil, err
	}
	if agent.Status != types.StatusActive {
		return nil, relayerrors.NewAgentNotActive(req.Agent)
	}

	executionId := crypto.NewId()
	if err = h.executions.Request(ctx, &orchestrator.ExecutionRequest{
		ExecutionId:        executionId,
		OrganizationId:     organizationId,
		AgentName:          req.Agent,
		Input:              req.Input,
		Priority:           priority,
		PreferredClusterId: req.Cluster,
		Attempt:            1,
	}); err != nil {
		return nil, err
	}
	c.Status(http.StatusAccepted)
	return &ExecuteResponse{
		ExecutionId: executionId,
		Status:      "pending",
	}, nil
}

func (h *Handler) getExecution(c *gin.Context) (interface{}, error) {
	ctx := c.Request.Context()
	organizationId := c.GetString(authority.OrganizationId)
	executionId := c.Param("id")

	execution, err := h.store.GetExecutionById(ctx, executionId)
	if err != nil {
		return nil, err
	}
	agentName := ""
	// Ownership runs through the agent. A foreign execution reads as
	// absent, not forbidden.
	if execution.AgentId != "" {
		agent, err := h.store.GetAgentById(ctx, execution.AgentId)
		if err != nil || agent.OrganizationId != organizationId {
			return nil, relayerrors.NewNotFound("Execution", executionId)
		}
		agentName = agent.Name
	}
	return toExecutionDoc(execution, agentName), nil
}
