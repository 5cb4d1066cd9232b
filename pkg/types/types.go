/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package types

import (
	"github.com/AMD-AIG-AIMA/relay/pkg/crypto"
)

// Execution lifecycle. Transitions are monotone along
// PENDING -> QUEUED -> RUNNING -> (COMPLETED | FAILED).
const (
	ExecutionPending   = "PENDING"
	ExecutionQueued    = "QUEUED"
	ExecutionRunning   = "RUNNING"
	ExecutionCompleted = "COMPLETED"
	ExecutionFailed    = "FAILED"
)

// Priority classes of a work queue.
const (
	PriorityHigh   = "HIGH"
	PriorityNormal = "NORMAL"
	PriorityLow    = "LOW"
)

// Shared provisioning status of clusters, agents and per-cluster agent rows.
const (
	StatusPending = "PENDING"
	StatusActive  = "ACTIVE"
	StatusFailed  = "FAILED"
)

// Backoff policies of a retry policy.
const (
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Network policies of an agent.
const (
	NetworkRestricted   = "restricted"
	NetworkStandard     = "standard"
	NetworkUnrestricted = "unrestricted"
)

// Stable symbolic error codes surfaced on failed executions.
const (
	ErrCodeExecutionFailed   = "execution_failed"
	ErrCodeExecutionTimeout  = "execution_timeout"
	ErrCodeNoEligibleCluster = "no_eligible_cluster"
)

type Resources struct {
	Cpu     string `json:"cpu" validate:"required,cpu"`
	Memory  string `json:"memory" validate:"required,memory"`
	Gpu     string `json:"gpu,omitempty" validate:"omitempty,gpu"`
	Timeout string `json:"timeout" validate:"required,duration"`
}

type RetryPolicy struct {
	MaxAttempts  int    `json:"maxAttempts" validate:"min=1,max=10"`
	Backoff      string `json:"backoff" validate:"oneof=exponential linear constant"`
	InitialDelay string `json:"initialDelay,omitempty" validate:"omitempty,duration"`
}

// AgentConfig is the declarative agent definition accepted by the
// registration surface.
type AgentConfig struct {
	Name                 string            `json:"name" validate:"required,agentname,max=100"`
	Image                string            `json:"image" validate:"required,image"`
	Resources            Resources         `json:"resources" validate:"required"`
	RetryPolicy          RetryPolicy       `json:"retryPolicy" validate:"required"`
	UseAgentSandbox      bool              `json:"useAgentSandbox"`
	WarmPoolSize         int               `json:"warmPoolSize" validate:"min=0,max=100"`
	NetworkPolicy        string            `json:"networkPolicy" validate:"oneof=restricted standard unrestricted"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
}

// ConfigHash digests the behaviorally significant fields of the config.
// Environment variables are excluded; changing them alone does not force a
// re-registration on the edge.
func (c *AgentConfig) ConfigHash() (string, error) {
	return crypto.CanonicalHash(map[string]interface{}{
		"name":            c.Name,
		"image":           c.Image,
		"resources":       c.Resources,
		"retryPolicy":     c.RetryPolicy,
		"useAgentSandbox": c.UseAgentSandbox,
		"warmPoolSize":    c.WarmPoolSize,
		"networkPolicy":   c.NetworkPolicy,
	})
}

// Capabilities advertised by a relayer at cluster registration.
type Capabilities struct {
	Region   string `json:"region,omitempty"`
	GpuNodes int    `json:"gpuNodes,omitempty"`
	Sandbox  bool   `json:"sandbox,omitempty"`
}

// SelectionPreferences narrow cluster selection for one execution.
type SelectionPreferences struct {
	PreferredRegion string
	RequireGpu      bool
	RequireSandbox  bool
}

// ExecutionError is the terminal error document of a failed execution.
type ExecutionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResourceUsage is reported by the relayer with a completed execution.
type ResourceUsage struct {
	CpuSeconds      float64 `json:"cpuSeconds,omitempty"`
	MemoryMbSeconds float64 `json:"memoryMbSeconds,omitempty"`
}
