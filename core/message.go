package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the envelope exchanged between actors, locally and over the wire.
//
// Messages are values: a ref stamps addressing fields on its own copy right
// before dispatch, so the sender's value is never changed by the runtime.
type Message struct {
	// ID identifies the message for auditing. It is not used to match replies.
	ID string `json:"messageId"`

	// SenderPath is the path of the sending actor, if any
	SenderPath string `json:"senderPath,omitempty"`

	// ReceiverPath is the path of the target actor
	ReceiverPath string `json:"receiverPath"`

	// Type is the tag handlers dispatch on
	Type string `json:"messageType"`

	// Payload is opaque to the runtime
	Payload any `json:"payload,omitempty"`

	// Timestamp when the message was created
	Timestamp time.Time `json:"timestamp"`

	// RequiresResponse is set for ask-style messages
	RequiresResponse bool `json:"requiresResponse"`
}

// NewMessage creates a fire-and-forget message.
func NewMessage(msgType string, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewRequest creates a message that expects a response.
func NewRequest(msgType string, payload any) Message {
	m := NewMessage(msgType, payload)
	m.RequiresResponse = true
	return m
}

// WithSender returns a copy of m with the sender path set.
func (m Message) WithSender(path string) Message {
	m.SenderPath = path
	return m
}

// String returns a short description used in logs.
func (m Message) String() string {
	return fmt.Sprintf("%s[%s]", m.Type, m.ID)
}

// DecodePayload converts a message payload into T.
//
// Payloads created in-process usually already have type T. Payloads that
// crossed the wire arrive as generic JSON values and are converted through a
// JSON round trip.
func DecodePayload[T any](m Message) (T, error) {
	var out T
	switch v := m.Payload.(type) {
	case T:
		return v, nil
	case nil:
		return out, fmt.Errorf("%w: message %s has no payload", ErrInvalidArgument, m.Type)
	}

	data, err := json.Marshal(m.Payload)
	if err != nil {
		return out, fmt.Errorf("%w: encode payload of %s: %v", ErrInvalidArgument, m.Type, err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: decode payload of %s into %T: %v", ErrInvalidArgument, m.Type, out, err)
	}
	return out, nil
}
