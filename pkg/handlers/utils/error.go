/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package utils

import (
	"errors"

	"github.com/gin-gonic/gin"

	relayerrors "github.com/AMD-AIG-AIMA/relay/pkg/errors"
)

// RelayApiError is the unified error response, including HTTP code, error
// code, and error message.
type RelayApiError struct {
	HttpCode     int    `json:"-"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Error returns the error message string.
func (err *RelayApiError) Error() string {
	return err.ErrorMessage
}

// AbortWithApiError converts the error into the standardized error format
// and aborts the request with a JSON error response.
func AbortWithApiError(c *gin.Context, err error) {
	_ = c.Error(err)
	rsp := convertToErrResponse(err)
	c.AbortWithStatusJSON(rsp.HttpCode, rsp)
}

// convertToErrResponse converts an error into the RelayApiError format.
// Errors without a carried status collapse to an internal error.
func convertToErrResponse(err error) RelayApiError {
	var result *RelayApiError
	if errors.As(err, &result) {
		return *result
	}
	var statusErr *relayerrors.StatusError
	if !errors.As(err, &statusErr) {
		statusErr = relayerrors.NewInternalError(err.Error())
	}
	return RelayApiError{
		HttpCode:     int(statusErr.Status().Code),
		ErrorCode:    statusErr.Status().Reason,
		ErrorMessage: statusErr.Error(),
	}
}
