// Package errors maps research failures onto standardized codes for the
// Zeebe workers and the HTTP API.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeSearchFailed          ErrorCode = "SEARCH_ERROR"
	ErrCodeChatTransportFailed   ErrorCode = "CHAT_TRANSPORT_FAILED"
	ErrCodeResearchParseFailed   ErrorCode = "RESEARCH_PARSE_FAILED"
	ErrCodeResearchFailed        ErrorCode = "RESEARCH_FAILED"
	ErrCodeResearchTimeout       ErrorCode = "RESEARCH_TIMEOUT"
	ErrCodeInvalidRequest        ErrorCode = "INVALID_RESEARCH_REQUEST"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternalServiceFailed ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError is what gets thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns the variables attached to a failed or thrown job.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewSearchFailedError(err error) *StandardError {
	return newError(ErrCodeSearchFailed, "Web search failed", err, true)
}

func NewChatTransportError(err error) *StandardError {
	return newError(ErrCodeChatTransportFailed, "Private chat call failed", err, true)
}

func NewResearchParseError(err error) *StandardError {
	return newError(ErrCodeResearchParseFailed, "Could not parse model reply", err, false)
}

func NewResearchFailedError(err error) *StandardError {
	return newError(ErrCodeResearchFailed, "Research cycle aborted", err, false)
}

func NewResearchTimeoutError(err error) *StandardError {
	return newError(ErrCodeResearchTimeout, "Research cycle timed out", err, true)
}

func NewInvalidRequestError(err error) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid research request", err, false)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalServiceFailed, fmt.Sprintf("External service '%s' error", service), err, true)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns how many times the engine should retry a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeSearchFailed,
		ErrCodeChatTransportFailed,
		ErrCodeExternalServiceFailed:
		return 3
	case ErrCodeResearchTimeout:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError. Internal codes
// are used unchanged as BPMN codes.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// Classifier maps a package sentinel onto an error code.
type Classifier struct {
	Sentinel error
	Code     ErrorCode
}

// Classify normalizes any error into a StandardError. Errors that already are
// StandardErrors pass through; otherwise the first matching classifier wins
// and anything unmatched becomes RESEARCH_FAILED.
func Classify(err error, classifiers ...Classifier) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	for _, c := range classifiers {
		if stderrors.Is(err, c.Sentinel) {
			switch c.Code {
			case ErrCodeSearchFailed:
				return NewSearchFailedError(err)
			case ErrCodeChatTransportFailed:
				return NewChatTransportError(err)
			case ErrCodeResearchParseFailed:
				return NewResearchParseError(err)
			case ErrCodeResearchTimeout:
				return NewResearchTimeoutError(err)
			case ErrCodeInvalidRequest:
				return NewInvalidRequestError(err)
			default:
				return newError(c.Code, "Research error", err, IsRetryableErrorCode(c.Code))
			}
		}
	}
	return NewResearchFailedError(err)
}

// ==========================
// 5. Utility Functions
// ==========================

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns a coarse grouping used in log fields.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "CHAT"):
		return "CHAT"
	case strings.Contains(codeStr, "PARSE"), strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	case strings.Contains(codeStr, "RESEARCH"):
		return "RESEARCH"
	default:
		return "OTHER"
	}
}
