package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrorCode classifies a BALSAMIC error.
type ErrorCode string

const (
	ErrUsage              ErrorCode = "USAGE_ERROR"
	ErrResourceNotFound   ErrorCode = "RESOURCE_NOT_FOUND"
	ErrPatternMismatch    ErrorCode = "PATTERN_MISMATCH"
	ErrSchemaValidation   ErrorCode = "SCHEMA_VALIDATION"
	ErrQCThresholdViolate ErrorCode = "QC_THRESHOLD_VIOLATION"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// UsageError reports invalid or conflicting command-line arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUsage, e.Message)
}

// NewUsageError creates a UsageError with a formatted message.
func NewUsageError(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

// ResourceNotFoundError is returned when a required file or directory is missing.
type ResourceNotFoundError struct {
	Resource string
	Paths    []string
}

func (e *ResourceNotFoundError) Error() string {
	return fmt.Sprintf("%s: %s not found: %s", ErrResourceNotFound, e.Resource, strings.Join(e.Paths, ", "))
}

// NewResourceNotFoundError creates a ResourceNotFoundError for one or more paths.
func NewResourceNotFoundError(resource string, paths ...string) *ResourceNotFoundError {
	return &ResourceNotFoundError{Resource: resource, Paths: paths}
}

// PatternMismatchError is returned when a FASTQ file name does not follow
// the expected read-pair naming pattern.
type PatternMismatchError struct {
	File    string
	Pattern string
}

func (e *PatternMismatchError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("%s: no file matches pattern %q", ErrPatternMismatch, e.Pattern)
	}
	return fmt.Sprintf("%s: file %q does not match pattern %q", ErrPatternMismatch, e.File, e.Pattern)
}

// FieldError describes a validation error on a specific field.
type FieldError struct {
	Field   string   `json:"field,omitempty"`
	Value   string   `json:"value,omitempty"`
	Allowed []string `json:"allowed,omitempty"`
	Message string   `json:"message"`
}

func (f FieldError) String() string {
	var b strings.Builder
	if f.Field != "" {
		b.WriteString(f.Field)
		b.WriteString(": ")
	}
	b.WriteString(f.Message)
	if len(f.Allowed) > 0 {
		fmt.Fprintf(&b, " (allowed: %s)", strings.Join(f.Allowed, ", "))
	}
	return b.String()
}

// SchemaValidationError is returned when a configuration field holds a value
// outside its permitted set or violates a structural rule.
type SchemaValidationError struct {
	Message string
	Details []FieldError
}

func (e *SchemaValidationError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", ErrSchemaValidation, e.Message)
	}
	parts := make([]string, len(e.Details))
	for i, d := range e.Details {
		parts[i] = d.String()
	}
	return fmt.Sprintf("%s: %s: %s", ErrSchemaValidation, e.Message, strings.Join(parts, "; "))
}

// NewValidationError creates a SchemaValidationError with field details.
func NewValidationError(msg string, details ...FieldError) *SchemaValidationError {
	return &SchemaValidationError{Message: msg, Details: details}
}

// NewInvalidFieldValueError reports a value outside the permitted set of a field.
func NewInvalidFieldValueError(field, value string, allowed []string) *SchemaValidationError {
	return NewValidationError("invalid field value", FieldError{
		Field:   field,
		Value:   value,
		Allowed: allowed,
		Message: fmt.Sprintf("%q is not a permitted value", value),
	})
}

// QCViolation is a single failed metric condition.
type QCViolation struct {
	Sample    string  `json:"sample,omitempty"`
	Metric    string  `json:"name"`
	Value     float64 `json:"value"`
	Norm      string  `json:"norm"`
	Threshold float64 `json:"threshold"`
}

func (v QCViolation) String() string {
	msg := fmt.Sprintf("QC metric %s: %s validation has failed. (Condition: %s %s)",
		v.Metric, formatFloat(v.Value), v.Norm, formatFloat(v.Threshold))
	if v.Sample != "" {
		return fmt.Sprintf("Sample %s: %s", v.Sample, msg)
	}
	return msg
}

// QCThresholdViolationError aggregates every failed metric condition of a case.
type QCThresholdViolationError struct {
	Violations []QCViolation
}

func (e *QCThresholdViolationError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("%s: %s", ErrQCThresholdViolate, e.Violations[0])
	}
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	return fmt.Sprintf("%s: %d validation errors\n%s", ErrQCThresholdViolate, len(e.Violations), strings.Join(lines, "\n"))
}

// Code returns the ErrorCode of a typed BALSAMIC error, or "" for other errors.
func Code(err error) ErrorCode {
	var (
		usage   *UsageError
		missing *ResourceNotFoundError
		pattern *PatternMismatchError
		schema  *SchemaValidationError
		qc      *QCThresholdViolationError
	)
	switch {
	case errors.As(err, &usage):
		return ErrUsage
	case errors.As(err, &missing):
		return ErrResourceNotFound
	case errors.As(err, &pattern):
		return ErrPatternMismatch
	case errors.As(err, &schema):
		return ErrSchemaValidation
	case errors.As(err, &qc):
		return ErrQCThresholdViolate
	}
	return ""
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if Code(err) == ErrUsage {
		return ExitUsage
	}
	return ExitFailure
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
