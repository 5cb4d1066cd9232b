/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package streams

import (
	"encoding/json"

	"github.com/AMD-AIG-AIMA/relay/pkg/types"
)

// Relayer to control plane frame kinds.
const (
	FrameHeartbeat          = "heartbeat"
	FrameExecutionStatus    = "execution_status"
	FrameRegistrationStatus = "registration_status"
	FrameLogBatch           = "log_batch"
	FrameMetricBatch        = "metric_batch"
	FrameTraceBatch         = "trace_batch"
)

// Control plane to relayer frame kinds.
const (
	FrameWorkItem         = "work_item"
	FrameRegistrationItem = "registration_item"
	FrameConfigUpdate     = "config_update"
)

// InboundFrame is the client-to-server union, tagged by Type. Frames are
// idempotent status updates keyed by ExecutionId, so replays after a
// reconnect are harmless.
type InboundFrame struct {
	Type string `json:"type"`

	// execution_status fields.
	ExecutionId   string               `json:"executionId,omitempty"`
	Status        string               `json:"status,omitempty"`
	Result        json.RawMessage      `json:"result,omitempty"`
	Error         *types.ExecutionError `json:"error,omitempty"`
	DurationMs    int64                `json:"durationMs,omitempty"`
	ResourceUsage *types.ResourceUsage `json:"resourceUsage,omitempty"`

	// agent registration status fields.
	AgentId string `json:"agentId,omitempty"`

	// telemetry batches, forwarded opaquely.
	Batch json.RawMessage `json:"batch,omitempty"`
}

// OutboundFrame is the server-to-client union, tagged by Type.
type OutboundFrame struct {
	Type         string                  `json:"type"`
	Work         *types.WorkItem         `json:"work,omitempty"`
	Registration *types.RegistrationItem `json:"registration,omitempty"`
	Config       json.RawMessage         `json:"config,omitempty"`
}

// OutboundFromQueueMessage converts a dequeued message to its wire frame.
func OutboundFromQueueMessage(msg *types.QueueMessage) *OutboundFrame {
	if msg == nil {
		return nil
	}
	switch msg.Type {
	case types.MessageRegistration:
		return &OutboundFrame{Type: FrameRegistrationItem, Registration: msg.Registration}
	default:
		return &OutboundFrame{Type: FrameWorkItem, Work: msg.Work}
	}
}
