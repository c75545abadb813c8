package core

// Frame is a serialized outbound event.
type Frame []byte

// ConnID identifies one live transport connection. Assigned at accept,
// invalid after disconnect.
type ConnID string

// Conn abstracts the per-connection messaging transport.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	TrySend(Frame) error
	Close()
}

// VoiceMember is a read-only view of one in-voice connection.
type VoiceMember struct {
	ConnID ConnID
	UserID string
}
