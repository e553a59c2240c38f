package hub

import (
	"encoding/json"
	"time"
)

// Server→client message types. Client→server frames are handled by the
// inbound governor and reuse "subscribe", "unsubscribe" and "ping".
const (
	msgTypeConnection   = "connection"
	msgTypeError        = "error"
	msgTypeSubscribed   = "subscribed"
	msgTypeUnsubscribed = "unsubscribed"
	msgTypePong         = "pong"
)

// Error codes carried in error envelopes.
const (
	errCodeAuthFailed      = "AUTH_FAILED"
	errCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	errCodeServerFull      = "SERVER_FULL"
	errCodeMessageTooLarge = "MESSAGE_TOO_LARGE"
	errCodeInvalidMessage  = "INVALID_MESSAGE"
	errCodeUnknownType     = "UNKNOWN_TYPE"
)

// Envelope is the wire format for every server→client message.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

// NewEnvelope wraps data in an envelope stamped with the current time.
func NewEnvelope(msgType string, data any) Envelope {
	return Envelope{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func (e Envelope) encode() ([]byte, error) {
	return json.Marshal(e)
}

type errorData struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retryAfterMs,omitempty"`
}

func errorEnvelope(code, message string) Envelope {
	return NewEnvelope(msgTypeError, errorData{Code: code, Message: message})
}
