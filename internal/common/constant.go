package common

// AccessTokenQueryParam carries the bearer token on the realtime upgrade
// request for clients that cannot set headers.
const AccessTokenQueryParam = "token"

// AuthorizationHeader and BearerPrefix are used for HTTP and upgrade requests.
const (
	AuthorizationHeader = "Authorization"
	BearerPrefix        = "Bearer "
)
