/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/handlers/authority"
)

// RegisterCluster handles relayer bootstrap.
// POST /api/clusters/register
func (h *Handler) RegisterCluster(c *gin.Context) {
	handle(c, h.registerCluster)
}

func (h *Handler) registerCluster(c *gin.Context) (interface{}, error) {
	organizationId := c.GetString(authority.OrganizationId)

	req := RegisterClusterRequest{}
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, relayerrors.NewBadRequest(fmt.Sprintf("invalid request: %v", err))
	}
	if req.Name == "" {
		return nil, relayerrors.NewBadRequest("cluster name is required")
	}
	registration, err := h.streamServer.RegisterCluster(c.Request.Context(),
		organizationId, req.Name, req.RelayerVersion, req.Capabilities)
	if err != nil {
		return nil, err
	}
	c.Status(http.StatusCreated)
	return registration, nil
}
