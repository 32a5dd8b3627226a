package milvus

import (
	"errors"
	"fmt"
)

type OperationErrorCode string

const (
	OperationErrorValidation      OperationErrorCode = "validation_failed"
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorNotFound        OperationErrorCode = "not_found"
	OperationErrorOpFailed        OperationErrorCode = "op_failed"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "milvus operation failed"
	}
	if e.Message != "" {
		return fmt.Sprintf(
			"milvus operation failed (op=%s code=%s status=%d): %s",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Message,
		)
	}
	if e.Cause != nil {
		return fmt.Sprintf(
			"milvus operation failed (op=%s code=%s status=%d): %v",
			e.Operation,
			e.Code,
			e.StatusCode,
			e.Cause,
		)
	}
	return fmt.Sprintf(
		"milvus operation failed (op=%s code=%s status=%d)",
		e.Operation,
		e.Code,
		e.StatusCode,
	)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

// IsNotFound reports whether err is an OperationError for a missing collection.
func IsNotFound(err error) bool {
	var oe *OperationError
	return errors.As(err, &oe) && oe.Code == OperationErrorNotFound
}

// IsUnavailable reports whether err indicates the backend could not be
// reached in time; such failures are retryable at the caller's discretion.
func IsUnavailable(err error) bool {
	var oe *OperationError
	if !errors.As(err, &oe) {
		return false
	}
	return oe.Code == OperationErrorTimeout || oe.Code == OperationErrorTransportFailed
}
