/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonAndCodeForError(t *testing.T) {
	err := NewBadRequest("name is required")
	assert.Equal(t, BadRequest, ReasonForError(err))
	assert.Equal(t, int32(http.StatusBadRequest), CodeForError(err))
	assert.Equal(t, "Bad request. name is required", err.Error())

	assert.Equal(t, "", ReasonForError(fmt.Errorf("plain")))
	assert.Equal(t, int32(0), CodeForError(fmt.Errorf("plain")))
}

func TestIsRelay(t *testing.T) {
	assert.True(t, IsRelay(NewInternalError("boom")))
	assert.False(t, IsRelay(fmt.Errorf("boom")))
	assert.False(t, IsRelay(nil))
}

func TestPredicates(t *testing.T) {
	assert.True(t, IsBadRequest(NewBadRequest("x")))
	assert.True(t, IsInternal(NewInternalError("x")))
	assert.True(t, IsAlreadyExist(NewAlreadyExist("x")))
	assert.True(t, IsForbidden(NewForbidden("x")))
	assert.True(t, IsUnauthorized(NewUnauthorized("x")))
	assert.True(t, IsTransient(NewTransient("x")))
	assert.True(t, IsNoEligibleCluster(NewNoEligibleCluster("x")))

	assert.False(t, IsBadRequest(NewInternalError("x")))
	assert.False(t, IsTransient(fmt.Errorf("x")))
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(NewTimeout("x")))
	assert.True(t, IsTimeout(&StatusError{ErrStatus: Status{Reason: ExecutionTimeout}}))
	assert.False(t, IsTimeout(NewBadRequest("x")))
}

func TestNotFoundByKind(t *testing.T) {
	agent := NewNotFound("Agent", "summarizer")
	assert.Equal(t, AgentNotFound, ReasonForError(agent))
	assert.Equal(t, "Agent summarizer not found.", agent.Error())
	assert.True(t, IsNotFound(agent))

	execution := NewNotFound("Execution", "exec-1")
	assert.Equal(t, ExecutionNotFound, ReasonForError(execution))
	assert.True(t, IsNotFound(execution))

	cluster := NewNotFound("Cluster", "c-1")
	assert.Equal(t, ClusterNotFound, ReasonForError(cluster))
	assert.True(t, IsNotFound(cluster))

	other := NewNotFound("Widget", "w-1")
	assert.Equal(t, NotFound, ReasonForError(other))
	assert.True(t, IsNotFound(other))
}

func TestIgnoreFound(t *testing.T) {
	assert.NoError(t, IgnoreFound(nil))
	assert.NoError(t, IgnoreFound(NewNotFound("Agent", "a")))
	assert.Error(t, IgnoreFound(NewInternalError("x")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, NoEligibleCluster, GetErrorCode(NewNoEligibleCluster("none")))
	assert.Equal(t, "", GetErrorCode(fmt.Errorf("plain")))
	assert.Equal(t, "", GetErrorCode(nil))
}

func TestAgentNotActive(t *testing.T) {
	err := NewAgentNotActive("summarizer")
	assert.Equal(t, AgentNotActive, ReasonForError(err))
	assert.Equal(t, int32(http.StatusConflict), CodeForError(err))
	assert.Equal(t, "agent summarizer is not active", err.Error())
}
