/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package types

import "encoding/json"

// Queue message kinds.
const (
	MessageWork         = "WORK"
	MessageRegistration = "REGISTRATION"
)

// WorkItem describes one execution handed to a relayer. It lives from
// enqueue until the successful stream write.
type WorkItem struct {
	ExecutionId          string            `json:"executionId"`
	AgentId              string            `json:"agentId"`
	AgentName            string            `json:"agentName"`
	Image                string            `json:"image"`
	Input                json.RawMessage   `json:"input,omitempty"`
	Resources            Resources         `json:"resources"`
	RetryPolicy          RetryPolicy       `json:"retryPolicy"`
	UseAgentSandbox      bool              `json:"useAgentSandbox"`
	NetworkPolicy        string            `json:"networkPolicy"`
	WarmPoolSize         int               `json:"warmPoolSize"`
	EnvironmentVariables map[string]string `json:"environmentVariables,omitempty"`
}

// RegistrationItem conveys enough to materialize an agent on the edge.
type RegistrationItem struct {
	AgentId     string      `json:"agentId"`
	AgentConfig AgentConfig `json:"agentConfig"`
	ConfigHash  string      `json:"configHash"`
}

// QueueMessage is the tagged union carried by the work queue.
type QueueMessage struct {
	Type         string            `json:"type"`
	Work         *WorkItem         `json:"work,omitempty"`
	Registration *RegistrationItem `json:"registration,omitempty"`
}
