package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeServiceUnavailable is used when a backing store cannot be reached
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the token does not cover the requested user
	ErrCodeForbidden = "ERR_FORBIDDEN"
	// ErrCodeTokenExpired is used when the auth token has expired
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	// ErrCodeTokenInvalid is used when the auth token is invalid
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeTaskNotFound is used for unknown task ids
	ErrCodeTaskNotFound = "ERR_TASK_NOT_FOUND"
	// ErrCodeSessionNotFound is used for unknown session tickets
	ErrCodeSessionNotFound = "ERR_SESSION_NOT_FOUND"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeDuplicateSubmission is used when an idempotency key was replayed
	ErrCodeDuplicateSubmission = "ERR_DUPLICATE_SUBMISSION"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeInvalidPayload is used when request_xml is not a well-formed qbXML fragment
	ErrCodeInvalidPayload = "ERR_INVALID_PAYLOAD"
	// ErrCodeInvalidUsername is used when a task has no owner
	ErrCodeInvalidUsername = "ERR_INVALID_USERNAME"
)

// Rate limiting error codes
const (
	// ErrCodeRateLimited is used when rate limit is exceeded
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:            http.StatusInternalServerError,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,
	ErrCodeTokenExpired: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeTaskNotFound:        http.StatusNotFound,
	ErrCodeSessionNotFound:     http.StatusNotFound,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeDuplicateSubmission: http.StatusConflict,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidPayload:  http.StatusBadRequest,
	ErrCodeInvalidUsername: http.StatusBadRequest,

	// Rate limiting -> 429 Too Many Requests
	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps domain error codes to the API codes above
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":            ErrCodeNotFound,
	"ALREADY_EXISTS":       ErrCodeConflict,
	"INVALID_INPUT":        ErrCodeInvalidInput,
	"UNAUTHORIZED":         ErrCodeUnauthorized,
	"CONCURRENCY_CONFLICT": ErrCodeConflict,
	"SERVICE_UNAVAILABLE":  ErrCodeServiceUnavailable,
	"VALIDATION_ERROR":     ErrCodeValidation,
	"BAD_REQUEST":          ErrCodeBadRequest,
	"INTERNAL_ERROR":       ErrCodeInternal,
	"SESSION_NOT_FOUND":    ErrCodeSessionNotFound,
	"SESSION_CLOSED":       ErrCodeConflict,
	"TASK_NOT_FOUND":       ErrCodeTaskNotFound,
	"INVALID_PAYLOAD":      ErrCodeInvalidPayload,
	"INVALID_USERNAME":     ErrCodeInvalidUsername,
	"DUPLICATE_SUBMISSION": ErrCodeDuplicateSubmission,
	"STORE_UNAVAILABLE":    ErrCodeServiceUnavailable,
}

// NormalizeErrorCode converts a domain error code to the standardized format
// If the code is already in the new format or unknown, returns it as-is
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
