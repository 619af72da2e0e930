package errors

import (
	"fmt"
)

// ErrorCode represents different categories of errors
type ErrorCode string

const (
	// ErrCodeConnection indicates a transport-level failure on one feed
	ErrCodeConnection ErrorCode = "CONNECTION"

	// ErrCodeMalformedSample indicates a feed delivered data missing required fields
	ErrCodeMalformedSample ErrorCode = "MALFORMED_SAMPLE"

	// ErrCodeInvalidInput indicates a non-numeric simulation amount or gas limit
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeInvariant indicates a store mutation that would break an invariant
	ErrCodeInvariant ErrorCode = "INVARIANT"

	// ErrCodeConfig indicates configuration errors
	ErrCodeConfig ErrorCode = "CONFIG"

	// ErrCodeRPC indicates RPC-related errors
	ErrCodeRPC ErrorCode = "RPC"

	// ErrCodeTimeout indicates timeout errors
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeDatabase indicates archive database errors
	ErrCodeDatabase ErrorCode = "DATABASE"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

// ChainError represents an error specific to one chain's pipeline
type ChainError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Chain    string                 `json:"chain,omitempty"`
	Severity Severity               `json:"severity"`
	Cause    error                  `json:"-"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// NewChainError creates a new ChainError
func NewChainError(code ErrorCode, chain, message string, cause error) *ChainError {
	return &ChainError{
		Code:     code,
		Message:  message,
		Chain:    chain,
		Severity: determineSeverity(code),
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *ChainError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	if e.Chain != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Chain, e.Code, e.Severity, msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, msg)
}

// Unwrap returns the underlying cause
func (e *ChainError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *ChainError) WithContext(key string, value interface{}) *ChainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the default severity
func (e *ChainError) WithSeverity(severity Severity) *ChainError {
	e.Severity = severity
	return e
}

// IsRetryable returns true if the error is retryable
func (e *ChainError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRPC, ErrCodeTimeout:
		return true
	case ErrCodeDatabase:
		return e.Severity != SeverityCritical
	default:
		return false
	}
}

// determineSeverity determines the default severity based on error code
func determineSeverity(code ErrorCode) Severity {
	switch code {
	case ErrCodeInvariant:
		return SeverityCritical
	case ErrCodeDatabase:
		return SeverityHigh
	case ErrCodeConnection, ErrCodeRPC, ErrCodeTimeout:
		return SeverityMedium
	case ErrCodeMalformedSample, ErrCodeInvalidInput, ErrCodeConfig:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// NewConnectionError creates a feed transport error
func NewConnectionError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeConnection, chain, message, cause)
}

// NewMalformedSampleError creates an error for a discarded sample
func NewMalformedSampleError(chain, message string) *ChainError {
	return NewChainError(ErrCodeMalformedSample, chain, message, nil)
}

// NewInvalidSimulationInputError creates an error for unusable simulation input
func NewInvalidSimulationInputError(message string, cause error) *ChainError {
	return NewChainError(ErrCodeInvalidInput, "", message, cause)
}

// NewInvariantViolation creates an error for a rejected store mutation
func NewInvariantViolation(chain, message string) *ChainError {
	return NewChainError(ErrCodeInvariant, chain, message, nil)
}

// NewConfigError creates a configuration error
func NewConfigError(chain, message string) *ChainError {
	return NewChainError(ErrCodeConfig, chain, message, nil)
}

// NewRPCError creates an RPC error
func NewRPCError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeRPC, chain, message, cause)
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(chain, message string) *ChainError {
	return NewChainError(ErrCodeTimeout, chain, message, nil)
}

// NewDatabaseError creates an archive database error
func NewDatabaseError(chain, message string, cause error) *ChainError {
	return NewChainError(ErrCodeDatabase, chain, message, cause)
}
