package network

import (
	"bytes"
	"errors"
	"testing"
)

func TestFrame(t *testing.T) {
	packet, err := Frame(MsgTypeAction, []byte(`{"text":"attacks"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(packet[:4], []byte{0x00, 0xCA, 0x00, 0x12}) {
		t.Errorf("Expected header 00 ca 00 12, got % x", packet[:4])
	}

	p, err := ParseFrame(append(packet, 0xFF))
	if err != nil {
		t.Fatal(err)
	}
	var req TextRequest
	if err := p.Decode(&req); err != nil {
		t.Fatal(err)
	}
	if p.MsgID != MsgTypeAction || req.Text != "attacks" {
		t.Errorf("Expected action 'attacks', got %d %q", p.MsgID, req.Text)
	}
}

func TestFrame_Errors(t *testing.T) {
	if _, err := Frame(1, make([]byte, 70000)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Expected ErrPacketTooLarge, got %v", err)
	}
	if _, err := ParseFrame([]byte{0, 1}); !errors.Is(err, ErrShortPacket) {
		t.Errorf("Expected ErrShortPacket, got %v", err)
	}
	if _, err := ParseFrame([]byte{0, 1, 0, 5, 'a'}); !errors.Is(err, ErrShortPacket) {
		t.Errorf("Expected ErrShortPacket for truncated body, got %v", err)
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	req := TextRequest{Text: "1d20"}
	if err := (&Packet{MsgID: MsgTypeRoll}).Decode(&req); err != nil {
		t.Fatal(err)
	}
	if req.Text != "1d20" {
		t.Errorf("Expected default to survive, got %q", req.Text)
	}
}
