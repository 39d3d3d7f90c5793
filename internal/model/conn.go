package model

// Conn is one participant's live connection as seen by the registry.
//
// Send must never block: implementations queue the payload and report false
// when it was dropped (closed connection or full queue).
type Conn interface {
	ID() string
	Send(payload []byte) bool
	Close(code CloseCode, reason string)
	Live() bool
}
