// Package client talks to the chat server on behalf of the CLI: it obtains
// an access token over the HTTP API and then exchanges realtime frames over
// a websocket.
//
// Failures the caller may want to react to are returned as sentinel errors
// (ErrUnavailable, ErrUnauthorized, ErrUserExists, ErrNotConnected) and can
// be matched with errors.Is.
//
// Sends are safe for concurrent use; Receive must be called from a single
// goroutine.
package client
