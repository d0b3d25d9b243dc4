package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

func testFrames(t *testing.T) []Frame {
	t.Helper()

	auth, err := NewFrame(CmdAuth, 1, AuthPayload{Token: "user:42"})
	if err != nil {
		t.Fatalf("build auth frame: %v", err)
	}
	chat, err := NewFrame(CmdSingleChat, 2, ChatPayload{
		SenderID:  42,
		TargetID:  7,
		Content:   "hello over a segmented stream",
		Timestamp: 1700000000000,
	})
	if err != nil {
		t.Fatalf("build chat frame: %v", err)
	}
	heartbeat, err := NewFrame(CmdHeartbeat, 3, nil)
	if err != nil {
		t.Fatalf("build heartbeat frame: %v", err)
	}
	return []Frame{auth, chat, heartbeat}
}

func framesEqual(a, b Frame) bool {
	return a.Header == b.Header && bytes.Equal(a.Body, b.Body)
}

func TestFrameRoundTrip(t *testing.T) {
	for _, f := range testFrames(t) {
		dec := NewDecoder()
		out, err := dec.Push(Encode(f))
		if err != nil {
			t.Fatalf("decode %s frame: %v", f.Header.Cmd, err)
		}
		if len(out) != 1 {
			t.Fatalf("expected 1 frame, got %d", len(out))
		}
		if !framesEqual(out[0], f) {
			t.Fatalf("round trip mismatch for %s:\n in: %+v\nout: %+v", f.Header.Cmd, f, out[0])
		}
		if dec.Buffered() != 0 {
			t.Fatalf("expected empty buffer after %s, got %d bytes", f.Header.Cmd, dec.Buffered())
		}
	}
}

func TestDecoderReassemblesArbitrarySegmentation(t *testing.T) {
	frames := testFrames(t)
	var stream []byte
	for _, f := range frames {
		stream = append(stream, Encode(f)...)
	}

	// Every chunk size from byte-at-a-time up to the whole stream must
	// yield the same frame sequence.
	for chunk := 1; chunk <= len(stream); chunk++ {
		dec := NewDecoder()
		var got []Frame
		for off := 0; off < len(stream); off += chunk {
			end := off + chunk
			if end > len(stream) {
				end = len(stream)
			}
			out, err := dec.Push(stream[off:end])
			if err != nil {
				t.Fatalf("chunk size %d: decode error: %v", chunk, err)
			}
			got = append(got, out...)
		}
		if len(got) != len(frames) {
			t.Fatalf("chunk size %d: expected %d frames, got %d", chunk, len(frames), len(got))
		}
		for i := range frames {
			if !framesEqual(got[i], frames[i]) {
				t.Fatalf("chunk size %d: frame %d mismatch", chunk, i)
			}
		}
	}
}

func TestDecoderCoalescedFrames(t *testing.T) {
	frames := testFrames(t)
	var stream []byte
	for _, f := range frames {
		stream = append(stream, Encode(f)...)
	}

	dec := NewDecoder()
	got, err := dec.Push(stream)
	if err != nil {
		t.Fatalf("decode coalesced stream: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("expected %d frames from one push, got %d", len(frames), len(got))
	}
}

func TestDecoderBadMagic(t *testing.T) {
	f, err := NewFrame(CmdSingleChat, 9, ChatPayload{SenderID: 1, TargetID: 2, Content: "x"})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	raw := Encode(f)
	raw[0], raw[1] = 0xDE, 0xAD

	dec := NewDecoder()
	frames, err := dec.Push(raw)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("corrupt stream must emit no frames, got %d", len(frames))
	}
}

func TestDecoderFrameTooLarge(t *testing.T) {
	raw := make([]byte, HeaderLength)
	binary.BigEndian.PutUint16(raw[0:2], Magic)
	raw[2] = Version
	raw[3] = SerialJSON
	raw[4] = byte(CmdSingleChat)
	binary.BigEndian.PutUint32(raw[13:17], MaxFrameSize)

	dec := NewDecoder()
	frames, err := dec.Push(raw)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
	if len(frames) != 0 {
		t.Fatalf("oversized frame must emit nothing, got %d frames", len(frames))
	}
}

func TestDecoderErrorAfterValidFrames(t *testing.T) {
	good, err := NewFrame(CmdHeartbeat, 1, nil)
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	stream := Encode(good)
	garbage := bytes.Repeat([]byte{0xBA}, HeaderLength) // not a frame boundary
	stream = append(stream, garbage...)

	dec := NewDecoder()
	frames, err := dec.Push(stream)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic after valid frame, got %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("the preceding valid frame should still decode, got %d frames", len(frames))
	}
}

func TestParseChatRejectsWrongCommand(t *testing.T) {
	f, err := NewFrame(CmdAuth, 1, AuthPayload{Token: "user:1"})
	if err != nil {
		t.Fatalf("build frame: %v", err)
	}
	if _, err := ParseChat(f); err == nil {
		t.Fatal("expected ParseChat to reject an auth frame")
	}
	if _, err := ParseAuth(f); err != nil {
		t.Fatalf("ParseAuth on auth frame: %v", err)
	}
}

func TestCmdTypeString(t *testing.T) {
	cases := map[CmdType]string{
		CmdAuth:       "auth",
		CmdHeartbeat:  "heartbeat",
		CmdSingleChat: "single_chat",
		CmdGroupChat:  "group_chat",
		CmdAck:        "ack",
		CmdError:      "error",
		CmdType(99):   fmt.Sprintf("cmd(%d)", 99),
	}
	for cmd, want := range cases {
		if got := cmd.String(); got != want {
			t.Fatalf("CmdType(%d).String() = %q, want %q", byte(cmd), got, want)
		}
	}
}
