// Package protocol implements the length-prefixed binary wire format spoken
// by relay clients: a fixed 17-byte big-endian header followed by a
// serialized body whose shape is selected by the command type.
package protocol

import (
	"encoding/json"
	"fmt"
)

const (
	// Magic is the sentinel every frame must open with.
	Magic uint16 = 0xCAFE
	// HeaderLength is the fixed size of the frame header in bytes.
	HeaderLength = 17
	// MaxFrameSize bounds a single frame (header + body). Anything larger
	// is a protocol violation and the connection is torn down.
	MaxFrameSize = 10 * 1024 * 1024

	// Version is the protocol revision stamped on outbound frames.
	Version byte = 1
	// SerialJSON marks the body as JSON-serialized.
	SerialJSON byte = 1
)

// CmdType selects how a frame body is interpreted.
type CmdType byte

const (
	CmdAuth       CmdType = 1
	CmdHeartbeat  CmdType = 2
	CmdSingleChat CmdType = 3
	CmdGroupChat  CmdType = 4
	CmdAck        CmdType = 5
	CmdError      CmdType = 6
)

// String returns the command name for logging.
func (c CmdType) String() string {
	switch c {
	case CmdAuth:
		return "auth"
	case CmdHeartbeat:
		return "heartbeat"
	case CmdSingleChat:
		return "single_chat"
	case CmdGroupChat:
		return "group_chat"
	case CmdAck:
		return "ack"
	case CmdError:
		return "error"
	default:
		return fmt.Sprintf("cmd(%d)", byte(c))
	}
}

// Header is the fixed portion of every frame.
type Header struct {
	Magic   uint16
	Version byte
	Serial  byte
	Cmd     CmdType
	ReqID   uint64
	Length  uint32
}

// Frame is one complete protocol message: header plus raw serialized body.
type Frame struct {
	Header Header
	Body   []byte
}

// AuthPayload carries the bearer credential presented on the first frame.
type AuthPayload struct {
	Token string `json:"token"`
}

// ChatPayload is the body of single-chat and group-chat frames. TargetID is
// a recipient user id for single chat and a chat session id for group chat.
// Exactly one of Content/EncContent is populated, per the Encrypted flag.
type ChatPayload struct {
	SenderID   int64  `json:"senderId"`
	TargetID   int64  `json:"targetId"`
	Content    string `json:"content,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Encrypted  bool   `json:"encrypted,omitempty"`
	EncContent []byte `json:"encContent,omitempty"`
}

// NewFrame builds a frame around a JSON-serialized body. A nil body yields a
// body-less frame (heartbeats).
func NewFrame(cmd CmdType, reqID uint64, body any) (Frame, error) {
	f := Frame{Header: Header{
		Magic:   Magic,
		Version: Version,
		Serial:  SerialJSON,
		Cmd:     cmd,
		ReqID:   reqID,
	}}
	if body == nil {
		return f, nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s body: %w", cmd, err)
	}
	f.Body = raw
	f.Header.Length = uint32(len(raw))
	return f, nil
}

// ParseAuth decodes the frame body as an AuthPayload.
func ParseAuth(f Frame) (AuthPayload, error) {
	if f.Header.Cmd != CmdAuth {
		return AuthPayload{}, fmt.Errorf("expected auth frame, got %s", f.Header.Cmd)
	}
	var p AuthPayload
	if err := json.Unmarshal(f.Body, &p); err != nil {
		return AuthPayload{}, fmt.Errorf("unmarshal auth body: %w", err)
	}
	return p, nil
}

// ParseChat decodes the frame body as a ChatPayload.
func ParseChat(f Frame) (ChatPayload, error) {
	switch f.Header.Cmd {
	case CmdSingleChat, CmdGroupChat, CmdAck, CmdError:
	default:
		return ChatPayload{}, fmt.Errorf("expected chat frame, got %s", f.Header.Cmd)
	}
	var p ChatPayload
	if err := json.Unmarshal(f.Body, &p); err != nil {
		return ChatPayload{}, fmt.Errorf("unmarshal chat body: %w", err)
	}
	return p, nil
}
