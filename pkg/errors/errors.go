// Package errors provides a structured error system for AMR metadata operations with error codes, categories, and context.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for AMR metadata operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Geometry Errors
	ErrCodeEmptyDataset            ErrorCode = "EMPTY_DATASET"
	ErrCodeConsistency             ErrorCode = "CONSISTENCY_ERROR"
	ErrCodePartialOverlapAmbiguity ErrorCode = "PARTIAL_OVERLAP_AMBIGUITY"

	// Communication Errors
	ErrCodeProtocol        ErrorCode = "PROTOCOL_ERROR"
	ErrCodeCollective      ErrorCode = "COLLECTIVE_FAILED"
	ErrCodeCollectiveOrder ErrorCode = "COLLECTIVE_MISMATCH"

	// Internal System Errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryGeometry      ErrorCategory = "geometry"
	CategoryCommunication ErrorCategory = "communication"
	CategoryInternal      ErrorCategory = "internal"
)

// Sentinels for errors.Is checks. Matching is by code only.
var (
	ErrEmptyDataset            = &AMRError{Code: ErrCodeEmptyDataset}
	ErrProtocol                = &AMRError{Code: ErrCodeProtocol}
	ErrConsistency             = &AMRError{Code: ErrCodeConsistency}
	ErrPartialOverlapAmbiguity = &AMRError{Code: ErrCodePartialOverlapAmbiguity}
	ErrCollective              = &AMRError{Code: ErrCodeCollective}
)

// AMRError represents a structured error with context and metadata.
type AMRError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	// Operational metadata
	Component string `json:"component,omitempty"`
	Operation string `json:"operation,omitempty"`
	Rank      int    `json:"rank"`
}

// Error implements the error interface.
func (e *AMRError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Component != "" {
		if e.Operation != "" {
			msg = fmt.Sprintf("[%s:%s] %s", e.Component, e.Operation, msg)
		} else {
			msg = fmt.Sprintf("[%s] %s", e.Component, msg)
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *AMRError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *AMRError) Is(target error) bool {
	if amrErr, ok := target.(*AMRError); ok {
		return e.Code == amrErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *AMRError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		details := make([]string, 0, len(keys))
		for _, k := range keys {
			details = append(details, fmt.Sprintf("%s:%v", k, e.Details[k]))
		}
		parts = append(parts, fmt.Sprintf("Details={%s}", strings.Join(details, " ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("AMRError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *AMRError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new AMR error with default values.
func NewError(code ErrorCode, message string) *AMRError {
	return &AMRError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
	}
}

// EmptyDataset reports a global reduction over zero blocks.
func EmptyDataset(format string, args ...interface{}) *AMRError {
	return NewError(ErrCodeEmptyDataset, fmt.Sprintf(format, args...))
}

// Protocol reports a malformed or truncated metadata buffer.
func Protocol(format string, args ...interface{}) *AMRError {
	return NewError(ErrCodeProtocol, fmt.Sprintf(format, args...))
}

// Consistency reports invalid AMR geometry.
func Consistency(format string, args ...interface{}) *AMRError {
	return NewError(ErrCodeConsistency, fmt.Sprintf(format, args...))
}

// PartialOverlapAmbiguity reports geometry the ghost overlap test cannot classify.
func PartialOverlapAmbiguity(format string, args ...interface{}) *AMRError {
	return NewError(ErrCodePartialOverlapAmbiguity, fmt.Sprintf(format, args...))
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigValidation, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeEmptyDataset, ErrCodeConsistency, ErrCodePartialOverlapAmbiguity:
		return CategoryGeometry
	case ErrCodeProtocol, ErrCodeCollective, ErrCodeCollectiveOrder:
		return CategoryCommunication
	default:
		return CategoryInternal
	}
}

// CodeOf returns the code carried by err, UNKNOWN_ERROR for foreign errors
// and the empty code for nil.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var amrErr *AMRError
	if stderrors.As(err, &amrErr) {
		return amrErr.Code
	}
	return ErrCodeUnknownError
}

// WithDetail adds detailed information to an error
func (e *AMRError) WithDetail(key string, value interface{}) *AMRError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *AMRError) WithComponent(component string) *AMRError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *AMRError) WithOperation(operation string) *AMRError {
	e.Operation = operation
	return e
}

// WithRank records the process rank that raised the error
func (e *AMRError) WithRank(rank int) *AMRError {
	e.Rank = rank
	return e
}

// WithCause sets the underlying cause
func (e *AMRError) WithCause(cause error) *AMRError {
	e.Cause = cause
	return e
}

// GetRecommendation returns a short hint for fixing the error
func (e *AMRError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeEmptyDataset: "No process owns a block. " +
			"Check that the dataset was populated before generating metadata.",
		ErrCodeProtocol: "A peer sent a malformed metadata buffer. " +
			"All processes must run the same build and share one byte order.",
		ErrCodeConsistency: "The AMR geometry is invalid. " +
			"Verify that spacing shrinks by one integer factor per level on every axis.",
		ErrCodePartialOverlapAmbiguity: "A block has zero width along an axis. " +
			"Remove degenerate blocks before detecting ghost cells.",
		ErrCodeCollective: "A collective operation failed on some rank. " +
			"The pass must be restarted on every process.",
		ErrCodeInvalidConfig: "Configuration validation failed. " +
			"Check your configuration file syntax and required parameters.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details."
}
