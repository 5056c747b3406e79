package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument = 1000
	ErrCodeInvalidJSON     = 1001
	ErrCodeRequestTooLarge = 1002
	ErrCodeInvalidQuery    = 1003
	ErrCodeInvalidPath     = 1004
	ErrCodeInvalidKind     = 1005
	ErrCodeMissingRequired = 1009

	// Domain state (2xxx)
	ErrCodeDocumentNotFound = 2001
	ErrCodeSessionNotFound  = 2002
	ErrCodeConflict         = 2102
	ErrCodeLockConflict     = 2201
	ErrCodeLockOwnership    = 2202
	ErrCodeLockNotHeld      = 2203
	ErrCodeSyncDisabled     = 2301

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003
	ErrCodeSessionRequired   = 3004

	// Internal/system (4xxx)
	ErrCodeInternal        = 4001
	ErrCodeStoreFailure    = 4002
	ErrCodeBlobMissing     = 4003
	ErrCodeRemoteFailure   = 4004
	ErrCodeSyncLockTimeout = 4005
	ErrCodeRemoteStructure = 4006
)

func defaultErrorCodeByStatus(status int) int {
	switch status {
	case 400:
		return ErrCodeInvalidArgument
	case 401:
		return ErrCodeUnauthorized
	case 403:
		return ErrCodeForbidden
	case 404:
		return ErrCodeDocumentNotFound
	case 409:
		return ErrCodeConflict
	case 423:
		return ErrCodeLockConflict
	case 429:
		return ErrCodeResourceExhausted
	case 500:
		return ErrCodeInternal
	case 502:
		return ErrCodeRemoteFailure
	case 503:
		return ErrCodeSyncLockTimeout
	default:
		return 0
	}
}
