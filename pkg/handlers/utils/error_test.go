/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

func TestConvertStatusError(t *testing.T) {
	rsp := convertToErrResponse(relayerrors.NewNotFound("Agent", "summarizer"))
	assert.Equal(t, http.StatusNotFound, rsp.HttpCode)
	assert.Equal(t, relayerrors.AgentNotFound, rsp.ErrorCode)
	assert.Equal(t, "Agent summarizer not found.", rsp.ErrorMessage)
}

func TestConvertRelayApiErrorPassthrough(t *testing.T) {
	in := &RelayApiError{
		HttpCode:     http.StatusTeapot,
		ErrorCode:    "Relay.99999",
		ErrorMessage: "custom",
	}
	rsp := convertToErrResponse(in)
	assert.Equal(t, *in, rsp)
}

func TestConvertPlainErrorCollapsesToInternal(t *testing.T) {
	rsp := convertToErrResponse(fmt.Errorf("boom"))
	assert.Equal(t, http.StatusInternalServerError, rsp.HttpCode)
	assert.Equal(t, relayerrors.InternalError, rsp.ErrorCode)
	assert.Contains(t, rsp.ErrorMessage, "boom")
}

func TestAbortWithApiError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/executions/x", nil)

	AbortWithApiError(c, relayerrors.NewUnauthorized("missing api key"))

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.JSONEq(t,
		`{"errorCode":"Relay.00007","errorMessage":"missing api key"}`,
		recorder.Body.String())
	assert.Len(t, c.Errors, 1)
}
