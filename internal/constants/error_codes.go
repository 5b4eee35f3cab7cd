package constants

const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeTokenUsed          = "TOKEN_USED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeUpstreamFailure    = "UPSTREAM_FAILURE"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
)
