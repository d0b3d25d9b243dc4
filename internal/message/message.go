// Package message defines the routed chat record shared by the broadcast
// channel, the offline queue, and the history store.
package message

import (
	"encoding/json"
	"fmt"
)

// Message kinds. Single chat targets one user; group chat fans out to every
// member of a chat session.
const (
	KindSingle = 1
	KindGroup  = 2
)

// Message is the serialized form a chat travels in once it leaves the
// originating connection.
type Message struct {
	Kind         int    `json:"type"`
	SenderID     int64  `json:"senderId"`
	TargetUserID int64  `json:"targetUserId,omitempty"`
	SessionID    int64  `json:"sessionId,omitempty"`
	Content      string `json:"content,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Encode serializes the message for the broadcast channel or the KV store.
func (m Message) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

// Decode parses a message produced by Encode.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
