// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package ami

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadBlockBasic(t *testing.T) {
	input := "Event: Newchannel\r\nChannel: SIP/102-00000001\r\nCallerIDNum: 102\r\n\r\n"
	r := NewReader(strings.NewReader(input))

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if block == nil {
		t.Fatal("ReadBlock() returned nil block")
	}
	if got := block.Get("Event"); got != "Newchannel" {
		t.Errorf("Event = %q", got)
	}
	if got := block.Get("Channel"); got != "SIP/102-00000001" {
		t.Errorf("Channel = %q", got)
	}
	if block.Len() != 3 {
		t.Errorf("Len() = %d, want 3", block.Len())
	}
}

func TestReadBlockTrimsAndSplitsOnFirstColon(t *testing.T) {
	input := "  Key  :  value with: colon  \r\n\r\n"
	r := NewReader(strings.NewReader(input))

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if got := block.Get("Key"); got != "value with: colon" {
		t.Errorf("value = %q, want %q", got, "value with: colon")
	}
}

func TestReadBlockCaseInsensitiveLastWriteWins(t *testing.T) {
	input := "Variable: FIRST\r\nvariable: SECOND\r\n\r\n"
	r := NewReader(strings.NewReader(input))

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if got := block.Get("VARIABLE"); got != "SECOND" {
		t.Errorf("duplicate header = %q, want SECOND", got)
	}
	if block.Len() != 1 {
		t.Errorf("Len() = %d, want 1", block.Len())
	}
}

func TestReadBlockSkipsColonlessLines(t *testing.T) {
	input := "garbage line\r\nEvent: Hangup\r\n\r\n"
	r := NewReader(strings.NewReader(input))

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if got := block.Get("Event"); got != "Hangup" {
		t.Errorf("Event = %q", got)
	}
	if block.Len() != 1 {
		t.Errorf("Len() = %d, want 1", block.Len())
	}
}

func TestReadBlockLFOnlyLines(t *testing.T) {
	input := "Event: Hangup\nCause: 16\n\n"
	r := NewReader(strings.NewReader(input))

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if got := block.Get("Cause"); got != "16" {
		t.Errorf("Cause = %q", got)
	}
}

func TestReadBlockEmptyBlockIsNoOp(t *testing.T) {
	input := "\r\nEvent: Hangup\r\n\r\n"
	r := NewReader(strings.NewReader(input))

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("first ReadBlock() error = %v", err)
	}
	if block != nil {
		t.Fatalf("empty block should be nil, got %d headers", block.Len())
	}

	// The caller retries and gets the real block.
	block, err = r.ReadBlock()
	if err != nil {
		t.Fatalf("second ReadBlock() error = %v", err)
	}
	if block == nil || block.Get("Event") != "Hangup" {
		t.Errorf("expected Hangup block after empty block")
	}
}

func TestReadBlockCleanEOF(t *testing.T) {
	r := NewReader(strings.NewReader(""))
	block, err := r.ReadBlock()
	if !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want io.EOF", err)
	}
	if block != nil {
		t.Error("block should be nil at clean EOF")
	}
}

func TestReadBlockEOFMidBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"header then EOF", "Event: Hangup\r\n"},
		{"partial line", "Event: Han"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input))
			_, err := r.ReadBlock()
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("error = %v, want io.ErrUnexpectedEOF wrap", err)
			}
		})
	}
}

func TestDiscardUntilBlank(t *testing.T) {
	input := "Asterisk Call Manager/5.0.2\r\n\r\nResponse: Success\r\n\r\n"
	r := NewReader(strings.NewReader(input))

	if err := r.DiscardUntilBlank(); err != nil {
		t.Fatalf("DiscardUntilBlank() error = %v", err)
	}

	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() after banner error = %v", err)
	}
	if got := block.Get("Response"); got != "Success" {
		t.Errorf("Response = %q", got)
	}
}

func TestDiscardUntilBlankEOF(t *testing.T) {
	r := NewReader(strings.NewReader("banner only\r\n"))
	if err := r.DiscardUntilBlank(); err != nil {
		t.Errorf("EOF before blank should not error, got %v", err)
	}
}

func TestWriteActionOrderAndTerminator(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	action := Action{
		{"Action", "Login"},
		{"Username", "admin"},
		{"Secret", "amp111"},
		{"Events", "on"},
	}
	if err := w.WriteAction(action); err != nil {
		t.Fatalf("WriteAction() error = %v", err)
	}

	want := "Action: Login\r\nUsername: admin\r\nSecret: amp111\r\nEvents: on\r\n\r\n"
	if got := buf.String(); got != want {
		t.Errorf("wire bytes = %q, want %q", got, want)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteAction(Action{{"Action", "Ping"}, {"ActionID", "abc123"}}); err != nil {
		t.Fatalf("WriteAction() error = %v", err)
	}

	r := NewReader(&buf)
	block, err := r.ReadBlock()
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if block.Get("Action") != "Ping" || block.Get("ActionID") != "abc123" {
		t.Errorf("round trip lost headers: %+v", block)
	}
}
