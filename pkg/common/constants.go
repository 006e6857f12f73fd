package common

const (
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-Id"
)
