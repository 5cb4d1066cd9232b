/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package workflow

import (
	"context"
	"time"
)

// Run states.
const (
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// Run is the durable identity of one workflow execution. A run can resume
// on any process because everything it needs lives in the journal.
type Run struct {
	RunId     string    `gorm:"column:run_id;primaryKey"`
	Kind      string    `gorm:"column:kind"`
	OrgKey    string    `gorm:"column:org_key"`
	State     string    `gorm:"column:state"`
	Input     []byte    `gorm:"column:input"`
	Error     string    `gorm:"column:error"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Run) TableName() string { return "workflow_run" }

// Step is one memoized step result of a run.
type Step struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunId     string    `gorm:"column:run_id;index:idx_run_step,unique"`
	Name      string    `gorm:"column:name;index:idx_run_step,unique"`
	Output    []byte    `gorm:"column:output"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Step) TableName() string { return "workflow_step" }

// Event is one emitted event, optionally delayed to DeliverAt. Events are
// consumed exactly once by a waiter or a registered trigger.
type Event struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name      string    `gorm:"column:name;index"`
	Key       string    `gorm:"column:key;index"`
	Payload   []byte    `gorm:"column:payload"`
	DeliverAt time.Time `gorm:"column:deliver_at"`
	Delivered bool      `gorm:"column:delivered"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Event) TableName() string { return "workflow_event" }

// Store is the journal behind the engine. All claim operations are atomic;
// two processes never consume the same event or rerun the same step.
type Store interface {
	// CreateRun inserts a run, or reports created=false when the id exists.
	CreateRun(ctx context.Context, run *Run) (created bool, err error)
	SetRunState(ctx context.Context, runId, state, errMsg string) error
	ListRunsByState(ctx context.Context, state string) ([]*Run, error)

	GetStep(ctx context.Context, runId, name string) (*Step, error)
	PutStep(ctx context.Context, step *Step) error

	AppendEvent(ctx context.Context, event *Event) error
	// ClaimEvent atomically consumes the oldest due event matching name and
	// key. Returns nil when none is due.
	ClaimEvent(ctx context.Context, name, key string, now time.Time) (*Event, error)
	// ClaimTriggerEvent atomically consumes the oldest due event with the
	// given name regardless of key.
	ClaimTriggerEvent(ctx context.Context, name string, now time.Time) (*Event, error)

	Close() error
}
