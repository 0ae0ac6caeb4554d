package connector

import (
	"errors"

	"github.com/erp/qbconnector/internal/domain/shared"
)

var (
	// ErrSessionNotFound is returned when a ticket was never issued
	ErrSessionNotFound = shared.NewDomainError("SESSION_NOT_FOUND", "Session not found")
	// ErrSessionClosed is returned when a request-serving call arrives on a closed session
	ErrSessionClosed = shared.NewDomainError("SESSION_CLOSED", "Session is closed")
	// ErrTaskNotFound is returned for unknown task ids
	ErrTaskNotFound = shared.NewDomainError("TASK_NOT_FOUND", "Task not found")
	// ErrInvalidPayload is returned when a submitted request is not a well-formed qbXML fragment
	ErrInvalidPayload = shared.NewDomainError("INVALID_PAYLOAD", "Request payload is not well-formed qbXML")
	// ErrInvalidUsername is returned when a task is submitted without an owner
	ErrInvalidUsername = shared.NewDomainError("INVALID_USERNAME", "Username cannot be empty")
	// ErrDuplicateSubmission is returned when an idempotency key was already used
	ErrDuplicateSubmission = shared.NewDomainError("DUPLICATE_SUBMISSION", "Submission with this idempotency key was already accepted")
	// ErrStoreUnavailable wraps any storage-layer failure
	ErrStoreUnavailable = shared.NewDomainError("STORE_UNAVAILABLE", "Task store unavailable")

	// ErrTaskAlreadyClaimed is returned by a guarded claim that lost the race
	ErrTaskAlreadyClaimed = errors.New("connector: task already claimed")
	// ErrInvalidTransition is returned for a status change the lifecycle does not allow
	ErrInvalidTransition = errors.New("connector: invalid state transition")
)
