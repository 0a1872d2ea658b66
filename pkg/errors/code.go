package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Auth & Session errors
// 12000-12999: Attempt & Monitoring errors
// 13000-13999: Realtime channel errors
// 14000-14999: Sandbox & Grading errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Unauthorized        ErrorCode = 10004
	Forbidden           ErrorCode = 10005
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	RequiredFieldEmpty ErrorCode = 10302

	// ========== Auth & Session Errors (11000-11999) ==========

	TokenExpired     ErrorCode = 11000
	TokenInvalid     ErrorCode = 11001
	TokenMissing     ErrorCode = 11002
	RoleNotAllowed   ErrorCode = 11003
	SessionNotOwned  ErrorCode = 11004
	SessionSuspended ErrorCode = 11005

	// ========== Attempt & Monitoring Errors (12000-12999) ==========

	// Attempt lifecycle (12000-12099)
	AttemptNotFound      ErrorCode = 12000
	AttemptNotActive     ErrorCode = 12001
	AttemptAlreadyActive ErrorCode = 12002
	AttemptTerminated    ErrorCode = 12003

	// Event ingestion (12100-12199)
	EventSignatureInvalid  ErrorCode = 12100
	EventSignatureRequired ErrorCode = 12101
	EventInvalid           ErrorCode = 12102
	EventStoreFailed       ErrorCode = 12103
	EventPublishFailed     ErrorCode = 12104

	// Trust scoring (12200-12299)
	DimensionUnknown     ErrorCode = 12200
	OverrideOutOfRange   ErrorCode = 12201
	OverrideNotPermitted ErrorCode = 12202

	// Session preflight (12300-12399)
	SessionNotReady ErrorCode = 12300

	// Audit (12400-12499)
	AuditAssembleFailed ErrorCode = 12400
	AuditArchiveFailed  ErrorCode = 12401

	// ========== Realtime Channel Errors (13000-13999) ==========

	ChannelInvalid     ErrorCode = 13000
	ObserverGone       ErrorCode = 13001
	UpgradeFailed      ErrorCode = 13002
	SessionTypeInvalid ErrorCode = 13003

	// ========== Sandbox & Grading Errors (14000-14999) ==========

	// Execution (14000-14099)
	CodeEmpty            ErrorCode = 14000
	CodeTooLarge         ErrorCode = 14001
	LanguageNotSupported ErrorCode = 14002
	SandboxUnavailable   ErrorCode = 14003
	SandboxSystemError   ErrorCode = 14004
	ExecutionRejected    ErrorCode = 14005

	// Grading (14100-14199)
	QuestionNotFound     ErrorCode = 14100
	TestCaseInvalid      ErrorCode = 14101
	SubmissionFailed     ErrorCode = 14102
	CustomInputTooLarge  ErrorCode = 14103
	SubmitTooFrequently  ErrorCode = 14104
	SubmissionStoreError ErrorCode = 14105
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Unauthorized:        "Unauthorized access",
	Forbidden:           "Access forbidden",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Cache
	CacheError: "Cache operation failed",
	CacheMiss:  "Cache miss",

	// Validation
	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	RequiredFieldEmpty: "Required field is empty",

	// Auth & Session
	TokenExpired:     "Token has expired",
	TokenInvalid:     "Invalid token",
	TokenMissing:     "Missing token",
	RoleNotAllowed:   "Role is not allowed for this operation",
	SessionNotOwned:  "Session does not belong to this user",
	SessionSuspended: "Session has been suspended",

	// Attempt lifecycle
	AttemptNotFound:      "Attempt not found",
	AttemptNotActive:     "Attempt is not active",
	AttemptAlreadyActive: "An active attempt already exists for this exam",
	AttemptTerminated:    "Attempt has been terminated",

	// Event ingestion
	EventSignatureInvalid:  "Event signature verification failed",
	EventSignatureRequired: "Event signature is required for this signal",
	EventInvalid:           "Invalid event",
	EventStoreFailed:       "Failed to store event",
	EventPublishFailed:     "Failed to publish event",

	// Trust scoring
	DimensionUnknown:     "Unknown trust dimension",
	OverrideOutOfRange:   "Override amount is out of range",
	OverrideNotPermitted: "Override is not permitted for this role",

	// Session preflight
	SessionNotReady: "Session environment is not ready",

	// Audit
	AuditAssembleFailed: "Failed to assemble audit report",
	AuditArchiveFailed:  "Failed to archive audit report",

	// Realtime
	ChannelInvalid:     "Invalid channel",
	ObserverGone:       "Observer is no longer connected",
	UpgradeFailed:      "WebSocket upgrade failed",
	SessionTypeInvalid: "Invalid session type",

	// Sandbox & Grading
	CodeEmpty:            "No code provided",
	CodeTooLarge:         "Code is too large",
	LanguageNotSupported: "Programming language not supported",
	SandboxUnavailable:   "Sandbox runtime is unavailable",
	SandboxSystemError:   "Sandbox system error",
	ExecutionRejected:    "Execution rejected by sandbox policy",
	QuestionNotFound:     "Question not found",
	TestCaseInvalid:      "Invalid test case",
	SubmissionFailed:     "Failed to record submission",
	CustomInputTooLarge:  "Custom input is too large",
	SubmitTooFrequently:  "Submitting too frequently, please wait",
	SubmissionStoreError: "Failed to store submission source",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == Unauthorized, c == TokenExpired, c == TokenInvalid, c == TokenMissing:
		return 401
	case c == Forbidden, c == RoleNotAllowed, c == SessionNotOwned, c == OverrideNotPermitted, c == SessionSuspended:
		return 403
	case c == NotFound, c == AttemptNotFound, c == QuestionNotFound:
		return 404
	case c == TooManyRequests, c == SubmitTooFrequently:
		return 429
	case c == ServiceUnavailable, c == SandboxUnavailable:
		return 503
	case c >= 10300 && c < 10400:
		return 400
	case c == InvalidParams, c == EventSignatureInvalid, c == EventSignatureRequired,
		c == EventInvalid, c == CodeEmpty, c == CodeTooLarge, c == LanguageNotSupported,
		c == CustomInputTooLarge, c == OverrideOutOfRange, c == SessionTypeInvalid:
		return 400
	default:
		return 500
	}
}
