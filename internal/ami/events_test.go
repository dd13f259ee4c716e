// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package ami

import (
	"testing"
	"time"
)

func blockOf(pairs ...string) *AttributeBlock {
	b := NewAttributeBlock()
	for i := 0; i+1 < len(pairs); i += 2 {
		b.Set(pairs[i], pairs[i+1])
	}
	return b
}

func TestExtractExtension(t *testing.T) {
	tests := []struct {
		channel string
		want    string
	}{
		{"SIP/102-00000a1b", "102"},
		{"PJSIP/2001-0000004f", "2001"},
		{"IAX2/55-1", "55"},
		{"Local/301@from-internal-0000;2", "301"},
		{"DAHDI/4-1", "4"},
		// No technology prefix: first digit run wins.
		{"OOH323/777-abc", "777"},
		// Idempotent on bare digits.
		{"1234", "1234"},
		// No digits at all: raw channel unchanged.
		{"Console/dsp", "Console/dsp"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ExtractExtension(tt.channel); got != tt.want {
			t.Errorf("ExtractExtension(%q) = %q, want %q", tt.channel, got, tt.want)
		}
	}
}

func TestExtractExtensionIdempotent(t *testing.T) {
	once := ExtractExtension("SIP/102-00000a1b")
	twice := ExtractExtension(once)
	if once != twice {
		t.Errorf("extraction not idempotent: %q -> %q", once, twice)
	}
}

func TestMapEventBasicFields(t *testing.T) {
	block := blockOf(
		"Event", "Newstate",
		"Channel", "SIP/102-00000a1b",
		"CallerIDNum", "102",
		"CallerIDName", "Alice",
		"ConnectedLineNum", "5551234567",
		"ConnectedLineName", "Bob",
		"Uniqueid", "1735725600.42",
		"Linkedid", "1735725600.41",
		"Context", "from-internal",
	)

	before := time.Now().UTC()
	ev := MapEvent("Newstate", block)
	after := time.Now().UTC()

	if ev.EventType != "Newstate" {
		t.Errorf("EventType = %q", ev.EventType)
	}
	if ev.Channel != "SIP/102-00000a1b" {
		t.Errorf("Channel = %q", ev.Channel)
	}
	if ev.Extension != "102" {
		t.Errorf("Extension = %q", ev.Extension)
	}
	if ev.CallerIdNum != "102" || ev.CallerIdName != "Alice" {
		t.Errorf("caller identity = %q/%q", ev.CallerIdNum, ev.CallerIdName)
	}
	if ev.ConnectedLineNum != "5551234567" || ev.ConnectedLineName != "Bob" {
		t.Errorf("connected line = %q/%q", ev.ConnectedLineNum, ev.ConnectedLineName)
	}
	if ev.UniqueId != "1735725600.42" || ev.LinkedId != "1735725600.41" {
		t.Errorf("ids = %q/%q", ev.UniqueId, ev.LinkedId)
	}
	if ev.Context != "from-internal" {
		t.Errorf("Context = %q", ev.Context)
	}
	if ev.Timestamp.Before(before) || ev.Timestamp.After(after) {
		t.Errorf("Timestamp %v not capture time", ev.Timestamp)
	}
}

func TestMapEventHeaderAliases(t *testing.T) {
	// Alternate spellings resolve to the same fields.
	block := blockOf(
		"Channel", "SIP/103-1",
		"CallerIdNum", "103",
		"CallerIdName", "Carol",
		"ConnectedLineNumber", "104",
		"UniqueId", "id-1",
		"LinkedId", "id-0",
	)

	ev := MapEvent("Newchannel", block)
	if ev.CallerIdNum != "103" {
		t.Errorf("CallerIdNum = %q", ev.CallerIdNum)
	}
	if ev.CallerIdName != "Carol" {
		t.Errorf("CallerIdName = %q", ev.CallerIdName)
	}
	if ev.ConnectedLineNum != "104" {
		t.Errorf("ConnectedLineNum alias = %q", ev.ConnectedLineNum)
	}
	if ev.UniqueId != "id-1" || ev.LinkedId != "id-0" {
		t.Errorf("id aliases = %q/%q", ev.UniqueId, ev.LinkedId)
	}
}

func TestMapEventMissingHeadersKeepZeroValues(t *testing.T) {
	ev := MapEvent("Hangup", blockOf("Event", "Hangup"))
	if ev.Channel != "" || ev.Extension != "" || ev.CallerIdNum != "" {
		t.Errorf("missing headers should stay empty: %+v", ev)
	}
	if ev.EventType != "Hangup" {
		t.Errorf("EventType = %q", ev.EventType)
	}
}

func TestMapEventVarSetRecordingFile(t *testing.T) {
	tests := []struct {
		name     string
		event    string
		variable string
		wantType string
		wantFile string
	}{
		{"monitor", "VarSet", "MONITOR_FILENAME", EventTypeRecordingFile, "/var/spool/asterisk/monitor/out-102.wav"},
		{"mixmonitor", "VarSet", "MIXMONITOR_FILENAME", EventTypeRecordingFile, "/var/spool/asterisk/monitor/out-102.wav"},
		{"case-insensitive event", "varset", "mixmonitor_filename", EventTypeRecordingFile, "/var/spool/asterisk/monitor/out-102.wav"},
		{"other variable untouched", "VarSet", "DIALSTATUS", "VarSet", ""},
		{"non-varset event untouched", "Newexten", "MONITOR_FILENAME", "Newexten", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := blockOf(
				"Channel", "SIP/102-1",
				"Variable", tt.variable,
				"Value", "/var/spool/asterisk/monitor/out-102.wav",
			)
			ev := MapEvent(tt.event, block)
			if ev.EventType != tt.wantType {
				t.Errorf("EventType = %q, want %q", ev.EventType, tt.wantType)
			}
			if ev.RecordingFile != tt.wantFile {
				t.Errorf("RecordingFile = %q, want %q", ev.RecordingFile, tt.wantFile)
			}
		})
	}
}
