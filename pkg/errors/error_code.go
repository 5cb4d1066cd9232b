/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

import (
	"fmt"
	"net/http"
	"strings"
)

const RelayPrefix = "Relay."

/*
   5-digit Error Code Convention: [xx][yyy]
   [xx] Business ID (00–99), used to distinguish errors from different business interfaces.
   00: General errors
   01: Agent-related errors
   02: Execution-related errors
   03: Cluster-related errors
   [yyy] Error code range (000–999)
*/

// public: 00xxx
const (
	InternalError         = RelayPrefix + "00001"
	BadRequest            = RelayPrefix + "00002"
	Forbidden             = RelayPrefix + "00003"
	AlreadyExist          = RelayPrefix + "00004"
	NotFound              = RelayPrefix + "00005"
	RequestEntityTooLarge = RelayPrefix + "00006"
	Unauthorized          = RelayPrefix + "00007"
	Transient             = RelayPrefix + "00008"
	Timeout               = RelayPrefix + "00009"
)

// agent: 01xxx
const (
	AgentNotFound  = RelayPrefix + "01001"
	AgentNotActive = RelayPrefix + "01002"
)

// execution: 02xxx
const (
	ExecutionNotFound = RelayPrefix + "02001"
	ExecutionTimeout  = RelayPrefix + "02002"
)

// cluster: 03xxx
const (
	ClusterNotFound   = RelayPrefix + "03001"
	NoEligibleCluster = RelayPrefix + "03002"
)

// returns true if the specified error reason is a relay error.
func IsRelay(err error) bool {
	if err == nil {
		return false
	}
	return strings.HasPrefix(ReasonForError(err), RelayPrefix)
}

func IsAlreadyExist(err error) bool {
	return ReasonForError(err) == AlreadyExist
}

func IsBadRequest(err error) bool {
	return ReasonForError(err) == BadRequest
}

func IsInternal(err error) bool {
	return ReasonForError(err) == InternalError
}

func IsUnauthorized(err error) bool {
	return ReasonForError(err) == Unauthorized
}

func IsForbidden(err error) bool {
	return ReasonForError(err) == Forbidden
}

func IsTransient(err error) bool {
	return ReasonForError(err) == Transient
}

func IsTimeout(err error) bool {
	reason := ReasonForError(err)
	return reason == Timeout || reason == ExecutionTimeout
}

func IsNoEligibleCluster(err error) bool {
	return ReasonForError(err) == NoEligibleCluster
}

func IsNotFound(err error) bool {
	reason := ReasonForError(err)
	if reason == NotFound || reason == AgentNotFound || reason == ExecutionNotFound ||
		reason == ClusterNotFound {
		return true
	}
	return false
}

func IgnoreFound(err error) error {
	if err == nil || IsNotFound(err) {
		return nil
	}
	return err
}

func GetErrorCode(err error) string {
	if err == nil || !IsRelay(err) {
		return ""
	}
	return ReasonForError(err)
}

func NewBadRequest(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusBadRequest,
		Reason:  BadRequest,
		Message: fmt.Sprintf("Bad request. %s", message),
	}}
}

func NewInternalError(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusInternalServerError,
		Reason:  InternalError,
		Message: fmt.Sprintf("Internal error. %s", message),
	}}
}

func NewAlreadyExist(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AlreadyExist,
		Message: message,
	}}
}

func NewForbidden(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusForbidden,
		Reason:  Forbidden,
		Message: message,
	}}
}

func NewNotFound(kind, name string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  notFoundErrorCode(kind),
		Message: fmt.Sprintf("%s %s not found.", kind, name),
	}}
}

func notFoundErrorCode(kind string) string {
	switch kind {
	case "Agent":
		return AgentNotFound
	case "Execution":
		return ExecutionNotFound
	case "Cluster":
		return ClusterNotFound
	default:
		return NotFound
	}
}

func NewNotFoundWithMessage(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusNotFound,
		Reason:  NotFound,
		Message: message,
	}}
}

func NewRequestEntityTooLargeError(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusRequestEntityTooLarge,
		Reason:  RequestEntityTooLarge,
		Message: fmt.Sprintf("Request entity is too large: %s", message),
	}}
}

func NewUnauthorized(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusUnauthorized,
		Reason:  Unauthorized,
		Message: message,
	}}
}

func NewTransient(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusServiceUnavailable,
		Reason:  Transient,
		Message: message,
	}}
}

func NewTimeout(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusGatewayTimeout,
		Reason:  Timeout,
		Message: message,
	}}
}

func NewAgentNotActive(name string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusConflict,
		Reason:  AgentNotActive,
		Message: fmt.Sprintf("agent %s is not active", name),
	}}
}

func NewNoEligibleCluster(message string) *StatusError {
	return &StatusError{ErrStatus: Status{
		Status:  StatusFailure,
		Code:    http.StatusConflict,
		Reason:  NoEligibleCluster,
		Message: message,
	}}
}
