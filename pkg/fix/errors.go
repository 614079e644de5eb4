// Package fix implements the plugin reactivation workflow for a managed runtime.
// It defines the fix pipeline: Gate -> Sequence -> Canonical -> Mark -> Verify.
package fix

import (
	"errors"
	"fmt"
)

// FailureClass represents the classification of a fix failure for reporting logic.
type FailureClass string

const (
	// FailureClassOpen indicates a file that could not be opened.
	// Examples: missing config, locked manifest, permission denied.
	FailureClassOpen FailureClass = "open"

	// FailureClassBestEffort indicates a step that is allowed to fail.
	// Examples: unloading a unit that is not loaded, loading a stale path.
	FailureClassBestEffort FailureClass = "best_effort"

	// FailureClassValidation indicates a config document that violates policy.
	// Examples: required setting missing, safe mode blocking unit loads.
	FailureClassValidation FailureClass = "validation"

	// FailureClassVerification indicates a post-fix check that did not hold.
	// Examples: durable flag unset, runtime never reported units loaded.
	FailureClassVerification FailureClass = "verification"
)

// FixError represents a classified fix failure with context. No class is
// fatal: the orchestrator collects these into the run summary and keeps going.
// nolint:revive // FixError is intentionally named to distinguish from standard errors
type FixError struct {
	// Class is the failure classification for reporting logic.
	Class FailureClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Path is the file path involved in the failure, if applicable.
	Path string `json:"path,omitempty"`

	// Step is the sequence step being executed when the failure occurred.
	Step string `json:"step,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface. Validation and verification
// issues often carry no underlying error, so the cause suffix is
// rendered only when one exists.
func (e *FixError) Error() string {
	var head string
	switch {
	case e.Path != "" && e.Step != "":
		head = fmt.Sprintf("[%s] %s (path=%s, step=%s)", e.Class, e.Message, e.Path, e.Step)
	case e.Path != "":
		head = fmt.Sprintf("[%s] %s (path=%s)", e.Class, e.Message, e.Path)
	default:
		head = fmt.Sprintf("[%s] %s", e.Class, e.Message)
	}
	if e.Err != nil {
		return head + ": " + e.Err.Error()
	}
	return head
}

// Unwrap returns the underlying error for error chain inspection.
func (e *FixError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *FixError) Is(target error) bool {
	t, ok := target.(*FixError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewOpenFailure creates a new open failure.
func NewOpenFailure(message string, err error) *FixError {
	return &FixError{
		Class:   FailureClassOpen,
		Message: message,
		Err:     err,
	}
}

// NewBestEffortFailure creates a new best-effort failure.
func NewBestEffortFailure(message string, err error) *FixError {
	return &FixError{
		Class:   FailureClassBestEffort,
		Message: message,
		Err:     err,
	}
}

// NewValidationIssue creates a new validation issue.
func NewValidationIssue(message string, err error) *FixError {
	return &FixError{
		Class:   FailureClassValidation,
		Message: message,
		Err:     err,
	}
}

// NewVerificationFailure creates a new verification failure.
func NewVerificationFailure(message string, err error) *FixError {
	return &FixError{
		Class:   FailureClassVerification,
		Message: message,
		Err:     err,
	}
}

// WithPath adds file path context to an error.
func (e *FixError) WithPath(path string) *FixError {
	e.Path = path
	return e
}

// WithStep adds sequence step context to an error.
func (e *FixError) WithStep(step string) *FixError {
	e.Step = step
	return e
}

// WithCode adds an error code to an error.
func (e *FixError) WithCode(code string) *FixError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *FixError) WithDetail(key string, value interface{}) *FixError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsOpenFailure returns true if the error is classified as an open failure.
func IsOpenFailure(err error) bool {
	var e *FixError
	if errors.As(err, &e) {
		return e.Class == FailureClassOpen
	}
	return false
}

// IsBestEffortFailure returns true if the error is classified as best-effort.
func IsBestEffortFailure(err error) bool {
	var e *FixError
	if errors.As(err, &e) {
		return e.Class == FailureClassBestEffort
	}
	return false
}

// IsValidationIssue returns true if the error is classified as a validation issue.
func IsValidationIssue(err error) bool {
	var e *FixError
	if errors.As(err, &e) {
		return e.Class == FailureClassValidation
	}
	return false
}

// IsVerificationFailure returns true if the error is classified as a verification failure.
func IsVerificationFailure(err error) bool {
	var e *FixError
	if errors.As(err, &e) {
		return e.Class == FailureClassVerification
	}
	return false
}

// IsIssue returns true if the error belongs in the run summary.
// Open, validation, and verification failures are itemized; best-effort
// failures are logged and dropped.
func IsIssue(err error) bool {
	return IsOpenFailure(err) || IsValidationIssue(err) || IsVerificationFailure(err)
}

// Common error codes.
const (
	ErrCodeConfigOpen      = "CONFIG_OPEN_FAILED"
	ErrCodeManifestOpen    = "MANIFEST_OPEN_FAILED"
	ErrCodeCanonicalWrite  = "CANONICAL_WRITE_FAILED"
	ErrCodeSettingPatch    = "SETTING_PATCH_FAILED"
	ErrCodeUnitUnload      = "UNIT_UNLOAD_FAILED"
	ErrCodeUnitLoad        = "UNIT_LOAD_FAILED"
	ErrCodeRequiredMissing = "REQUIRED_SETTING_MISSING"
	ErrCodeSafeModeBlocked = "SAFE_MODE_BLOCKED"
	ErrCodeFlagUnset       = "FLAG_UNSET"
	ErrCodeFlagStore       = "FLAG_STORE_FAILED"
)
