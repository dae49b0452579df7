package inventory

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the inventory service.
var (
	ErrInvalidDelta             = errors.New("invalid delta")
	ErrInsufficientAvailability = errors.New("insufficient availability")
	ErrInvalidState             = errors.New("invalid state")
	ErrConflictingSession       = errors.New("conflicting count session")
	ErrReservationExpired       = errors.New("reservation expired")
	ErrSessionFinalized         = errors.New("count session finalized")
	ErrBusy                     = errors.New("stock line busy")
	ErrUnknownReservation       = errors.New("unknown reservation")
	ErrUnknownSession           = errors.New("unknown count session")
	ErrUnknownStockLine         = errors.New("unknown stock line")
	ErrUnresolvedLocator        = errors.New("unresolved item locator")
	ErrInvalidStoreID           = errors.New("invalid store id")
	ErrInvalidVariantID         = errors.New("invalid variant id")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidChannel           = errors.New("invalid channel")
	ErrInvalidRefType           = errors.New("invalid ref type")
	ErrInvalidReasonCode        = errors.New("invalid reason code")
	ErrInvalidScope             = errors.New("invalid count scope")
	ErrInvalidZoneName          = errors.New("invalid zone name")
	ErrEmptyAdjustment          = errors.New("empty adjustment")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
