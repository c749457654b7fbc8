package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserExists   = errors.New("username already taken")
	ErrNotConnected = errors.New("not connected")
)
