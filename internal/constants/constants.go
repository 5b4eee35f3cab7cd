package constants

const (
	// IDRandomBytes is the number of random bytes in generated record IDs.
	IDRandomBytes = 12

	ProfileImageMaxBytes = 5 << 20
	RequestBodyMaxBytes  = 1 << 20

	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	WSClientSendBufferSize = 16
)
