package realtime

// Conn is one live client connection as seen by the realtime core. Send
// must not block for long: transports queue the frame and drop the
// connection when the client cannot keep up. Close must be idempotent and
// must not call back into the Registry synchronously.
type Conn interface {
	ID() string
	UserID() int64
	Send(frame []byte) error
	Close()
}
