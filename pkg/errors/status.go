/*
 * Copyright (c) 2025, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package errors

const StatusFailure = "Failure"

// Status carries the machine-readable description of a failed request.
type Status struct {
	Status  string `json:"status,omitempty"`
	Code    int32  `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// StatusError wraps a Status so it can travel as an error value.
type StatusError struct {
	ErrStatus Status
}

func (e *StatusError) Error() string {
	return e.ErrStatus.Message
}

// Status returns the embedded Status value.
func (e *StatusError) Status() Status {
	return e.ErrStatus
}

// ReasonForError extracts the symbolic reason of an error, or "" when the
// error does not carry one.
func ReasonForError(err error) string {
	if status, ok := err.(*StatusError); ok && status != nil {
		return status.ErrStatus.Reason
	}
	return ""
}

// CodeForError extracts the HTTP status code of an error, or 0.
func CodeForError(err error) int32 {
	if status, ok := err.(*StatusError); ok && status != nil {
		return status.ErrStatus.Code
	}
	return 0
}
