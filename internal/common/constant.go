package common

// AuthorizationHeaderName is the HTTP header (and lower-cased gRPC metadata
// key) that carries the bearer access token.
const AuthorizationHeaderName = "Authorization"

// BearerScheme prefixes the token in AuthorizationHeaderName.
const BearerScheme = "Bearer"

// Key namespaces in the key-value store.
const (
	RefreshTokenKeyPrefix = "refresh_token:"
	ResetCodeKeyPrefix    = "RESET_CODE:"
)
