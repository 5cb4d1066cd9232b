/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package handlers

import (
	"context"
	"net/http"

	sqrl "github.com/Masterminds/squirrel"
	"github.com/gin-gonic/gin"

	dbclient "github.com/AMD-AIG-AIMA/relay/pkg/database/client"
	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
	"github.com/AMD-AIG-AIMA/relay/pkg/handlers/authority"
	apiutils "github.com/AMD-AIG-AIMA/relay/pkg/handlers/utils"
	"github.com/AMD-AIG-AIMA/relay/pkg/metrics"
	"github.com/AMD-AIG-AIMA/relay/pkg/orchestrator"
	"github.com/AMD-AIG-AIMA/relay/pkg/streams"
)

const jsonContentType = "application/json; charset=utf-8"

// Store is the slice of the durable store the HTTP surface reads from.
// *dbclient.Client satisfies it.
type Store interface {
	SelectAgents(ctx context.Context, query sqrl.Sqlizer,
		orderBy []string, limit, offset int) ([]*dbclient.Agent, error)
	GetAgentByName(ctx context.Context, organizationId, name string) (*dbclient.Agent, error)
	GetAgentById(ctx context.Context, agentId string) (*dbclient.Agent, error)
	GetExecutionById(ctx context.Context, executionId string) (*dbclient.Execution, error)
}

// Handler carries the services behind the tenant-facing API.
type Handler struct {
	store         Store
	executions    *orchestrator.ExecutionOrchestrator
	registrations *orchestrator.RegistrationOrchestrator
	streamServer  *streams.Server
}

func NewHandler(store Store, executions *orchestrator.ExecutionOrchestrator,
	registrations *orchestrator.RegistrationOrchestrator, streamServer *streams.Server) *Handler {
	return &Handler{
		store:         store,
		executions:    executions,
		registrations: registrations,
		streamServer:  streamServer,
	}
}

type handleFunc func(c *gin.Context) (interface{}, error)

func handle(c *gin.Context, fn handleFunc) {
	response, err := fn(c)
	if err != nil {
		apiutils.AbortWithApiError(c, err)
		return
	}
	code := http.StatusOK
	// If a status was previously set, use that status in the response.
	if c.Writer.Status() > 0 {
		code = c.Writer.Status()
	}
	switch responseType := response.(type) {
	case []byte:
		c.Data(code, jsonContentType, responseType)
	case string:
		c.Data(code, jsonContentType, []byte(responseType))
	default:
		c.JSON(code, responseType)
	}
}

// InitHttpHandlers builds the gin engine with all routes mounted.
func InitHttpHandlers(h *Handler, auth *authority.Authenticator) *gin.Engine {
	engine := gin.New()
	engine.Use(apiutils.Logger(), gin.Recovery())
	engine.NoRoute(func(c *gin.Context) {
		apiutils.AbortWithApiError(c, relayerrors.NewNotFoundWithMessage(c.Request.RequestURI+" not found"))
	})

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	group := engine.Group("/api", auth.Middleware())
	{
		group.POST("agents/register", h.RegisterAgents)
		group.GET("agents", h.ListAgents)
		group.POST("execute", h.Execute)
		group.GET("executions/:id", h.GetExecution)
		group.POST("clusters/register", h.RegisterCluster)
	}
	// The relayer stream authenticates with its cluster token, not a
	// tenant api key.
	engine.GET("/api/stream", h.streamServer.HandleStream)
	return engine
}
