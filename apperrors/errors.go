package apperrors

import (
	"errors"
	"fmt"
	"time"
)

// Kinds for PaymentSetupError.
const (
	PaymentKindNetwork         = "network"
	PaymentKindDeclined        = "declined"
	PaymentKindAccountNotReady = "account_not_ready"
)

// Kinds for TransferError.
const (
	TransferKindInsufficientBalance = "insufficient_balance"
	TransferKindPayeeNotReady       = "payee_not_ready"
	TransferKindProcessorError      = "processor_error"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

type PaymentSetupError struct {
	Kind    string
	Message string
	Err     error
}

func (e *PaymentSetupError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("payment setup failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("payment setup failed (%s)", e.Kind)
}

func (e *PaymentSetupError) Unwrap() error { return e.Err }

func NewPaymentSetupError(kind, message string, err error) *PaymentSetupError {
	return &PaymentSetupError{Kind: kind, Message: message, Err: err}
}

type TransferError struct {
	Kind    string
	Message string
	Err     error
}

func (e *TransferError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transfer failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("transfer failed (%s)", e.Kind)
}

func (e *TransferError) Unwrap() error { return e.Err }

func NewTransferError(kind, message string, err error) *TransferError {
	return &TransferError{Kind: kind, Message: message, Err: err}
}

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

func IsRateLimited(err error) (*RateLimitedError, bool) {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

func IsPaymentSetup(err error) (*PaymentSetupError, bool) {
	var pe *PaymentSetupError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsTransfer(err error) (*TransferError, bool) {
	var te *TransferError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
