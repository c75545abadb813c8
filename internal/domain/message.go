package domain

// Message is one persisted chat entry. Immutable once appended; the author
// username is a snapshot taken at send time. Text is opaque to the server and
// may carry a small inline image as an encoded payload, so the size cap is
// generous compared to plain chat lines.
type Message struct {
	ID        int64  `json:"id"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// MaxMessageBytes bounds a single message including any inline payload.
const MaxMessageBytes = 64 << 10
