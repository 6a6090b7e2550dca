package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents the type of LLM error
type ErrorType string

const (
	ErrorTypeUnknown           ErrorType = "unknown"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
	ErrorTypeAuthentication    ErrorType = "authentication_error"
	ErrorTypePermission        ErrorType = "permission_error"
	ErrorTypeNotFound          ErrorType = "not_found"
	ErrorTypeRateLimit         ErrorType = "rate_limit_exceeded"
	ErrorTypeInsufficientQuota ErrorType = "insufficient_quota"
	ErrorTypeInvalidModel      ErrorType = "invalid_model"
	ErrorTypeModelNotReady     ErrorType = "model_not_ready"
	ErrorTypeContextLength     ErrorType = "context_length_exceeded"
	ErrorTypeContentFilter     ErrorType = "content_filter"
	ErrorTypeServerError       ErrorType = "server_error"
	ErrorTypeTimeout           ErrorType = "timeout"
	ErrorTypeConnectionError   ErrorType = "connection_error"
	ErrorTypeValidationError   ErrorType = "validation_error"
	ErrorTypeJSONParsingError  ErrorType = "json_parsing_error"
)

// LLMError represents an error from an LLM provider
type LLMError struct {
	Type       ErrorType         `json:"type"`
	Message    string            `json:"message"`
	Code       string            `json:"code,omitempty"`
	Provider   Provider          `json:"provider"`
	Model      string            `json:"model,omitempty"`
	HTTPStatus int               `json:"http_status,omitempty"`
	Retryable  bool              `json:"retryable"`
	RetryAfter int               `json:"retry_after,omitempty"` // Seconds to wait before retry
	Details    map[string]string `json:"details,omitempty"`
	Cause      error             `json:"-"`
}

func (e *LLMError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *LLMError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the error is retryable
func (e *LLMError) IsRetryable() bool {
	return e.Retryable
}

// NewLLMError creates a new LLM error
func NewLLMError(provider Provider, errorType ErrorType, message string) *LLMError {
	return &LLMError{
		Type:      errorType,
		Message:   message,
		Provider:  provider,
		Retryable: isRetryableError(errorType),
	}
}

// NewLLMErrorWithCause creates a new LLM error with an underlying cause
func NewLLMErrorWithCause(provider Provider, errorType ErrorType, message string, cause error) *LLMError {
	err := NewLLMError(provider, errorType, message)
	err.Cause = cause
	return err
}

func isRetryableError(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeTimeout, ErrorTypeConnectionError, ErrorTypeModelNotReady:
		return true
	default:
		return false
	}
}

// awsErrorTypes maps Bedrock runtime API error codes onto the shared taxonomy.
var awsErrorTypes = map[string]ErrorType{
	"ThrottlingException":            ErrorTypeRateLimit,
	"TooManyRequestsException":       ErrorTypeRateLimit,
	"ServiceQuotaExceededException":  ErrorTypeInsufficientQuota,
	"ServiceUnavailableException":    ErrorTypeServerError,
	"InternalServerException":        ErrorTypeServerError,
	"ModelTimeoutException":          ErrorTypeTimeout,
	"ModelNotReadyException":         ErrorTypeModelNotReady,
	"ModelErrorException":            ErrorTypeServerError,
	"ModelStreamErrorException":      ErrorTypeServerError,
	"ValidationException":            ErrorTypeInvalidRequest,
	"AccessDeniedException":          ErrorTypePermission,
	"UnrecognizedClientException":    ErrorTypeAuthentication,
	"ExpiredTokenException":          ErrorTypeAuthentication,
	"ResourceNotFoundException":      ErrorTypeInvalidModel,
	"ContentFilteredException":       ErrorTypeContentFilter,
	"GuardrailInterventionException": ErrorTypeContentFilter,
}

// ParseAWSErrorCode converts an AWS API error code (as reported by smithy.APIError)
// into an LLMError. Validation errors that mention the input length are reported
// as context length errors.
func ParseAWSErrorCode(provider Provider, code, message string) *LLMError {
	errorType, ok := awsErrorTypes[code]
	if !ok {
		errorType = ErrorTypeUnknown
	}
	if errorType == ErrorTypeInvalidRequest {
		lower := strings.ToLower(message)
		if strings.Contains(lower, "too long") || strings.Contains(lower, "input length") || strings.Contains(lower, "max tokens") {
			errorType = ErrorTypeContextLength
		}
	}
	err := NewLLMError(provider, errorType, message)
	err.Code = code
	return err
}

// ParseHTTPError parses HTTP status codes into appropriate LLM errors
func ParseHTTPError(provider Provider, statusCode int, body string) *LLMError {
	var errorType ErrorType
	var message string
	retryable := false

	switch statusCode {
	case http.StatusBadRequest:
		errorType = ErrorTypeInvalidRequest
		message = "Invalid request parameters"
	case http.StatusUnauthorized:
		errorType = ErrorTypeAuthentication
		message = "Invalid API key or authentication failed"
	case http.StatusForbidden:
		errorType = ErrorTypePermission
		message = "Permission denied"
	case http.StatusNotFound:
		errorType = ErrorTypeNotFound
		message = "Resource not found"
	case http.StatusTooManyRequests:
		errorType = ErrorTypeRateLimit
		message = "Rate limit exceeded"
		retryable = true
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		errorType = ErrorTypeServerError
		message = "Server error occurred"
		retryable = true
	default:
		errorType = ErrorTypeUnknown
		message = fmt.Sprintf("HTTP %d error", statusCode)
	}

	if body != "" {
		if specificError := extractSpecificError(provider, body); specificError != nil {
			specificError.HTTPStatus = statusCode
			return specificError
		}
		message = fmt.Sprintf("%s: %s", message, truncateBody(body, 200))
	}

	return &LLMError{
		Type:       errorType,
		Message:    message,
		Provider:   provider,
		HTTPStatus: statusCode,
		Retryable:  retryable,
	}
}

// extractSpecificError extracts provider-specific error information
func extractSpecificError(provider Provider, body string) *LLMError {
	lowerBody := strings.ToLower(body)

	switch {
	case strings.Contains(lowerBody, "rate limit") || strings.Contains(lowerBody, "too many requests") || strings.Contains(lowerBody, "throttl"):
		return &LLMError{Type: ErrorTypeRateLimit, Message: "Rate limit exceeded", Provider: provider, Retryable: true}
	case strings.Contains(lowerBody, "insufficient quota") || strings.Contains(lowerBody, "quota exceeded"):
		return &LLMError{Type: ErrorTypeInsufficientQuota, Message: "Insufficient quota or credits", Provider: provider}
	case strings.Contains(lowerBody, "context length") || strings.Contains(lowerBody, "token limit"):
		return &LLMError{Type: ErrorTypeContextLength, Message: "Context length exceeded", Provider: provider}
	case strings.Contains(lowerBody, "content filter") || strings.Contains(lowerBody, "guardrail"):
		return &LLMError{Type: ErrorTypeContentFilter, Message: "Content filtered by safety system", Provider: provider}
	case strings.Contains(lowerBody, "model") && (strings.Contains(lowerBody, "not found") || strings.Contains(lowerBody, "invalid")):
		return &LLMError{Type: ErrorTypeInvalidModel, Message: "Invalid or unavailable model", Provider: provider}
	}
	return nil
}

func truncateBody(body string, maxLength int) string {
	if len(body) <= maxLength {
		return body
	}
	return body[:maxLength] + "..."
}

// IsLLMError reports whether err wraps an LLMError and returns it.
func IsLLMError(err error) (*LLMError, bool) {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr, true
	}
	return nil, false
}

// IsRetryableError checks if an error is retryable
func IsRetryableError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		// Derived from the type so hand-built errors behave the same as constructed ones.
		return isRetryableError(llmErr.Type)
	}
	return false
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		return llmErr.Type == ErrorTypeRateLimit
	}
	return false
}

// IsContextLengthError checks if an error is a context length error
func IsContextLengthError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		return llmErr.Type == ErrorTypeContextLength
	}
	return false
}

// IsAuthenticationError checks if an error is an authentication error
func IsAuthenticationError(err error) bool {
	if llmErr, ok := IsLLMError(err); ok {
		return llmErr.Type == ErrorTypeAuthentication || llmErr.Type == ErrorTypePermission
	}
	return false
}
