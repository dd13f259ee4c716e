// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package ami

import (
	"regexp"
	"strings"
	"time"
)

// EventTypeRecordingFile is the synthetic event type assigned when a
// variable-set notification carries a monitor recording filename. It is the
// only value of EventType that does not come straight off the wire.
const EventTypeRecordingFile = "RecordingFile"

// eventVarSet is the manager event announcing a channel variable change.
const eventVarSet = "VarSet"

// monitorFilenameVars are the channel variables Issabel sets when call
// recording starts, in either Monitor or MixMonitor flavor.
var monitorFilenameVars = []string{"MONITOR_FILENAME", "MIXMONITOR_FILENAME"}

// CallEvent is an immutable snapshot of one manager event, published once to
// the event bus and then owned independently by every subscriber.
type CallEvent struct {
	EventType         string    `json:"eventType"`
	Channel           string    `json:"channel"`
	CallerIdNum       string    `json:"callerIdNum"`
	CallerIdName      string    `json:"callerIdName"`
	ConnectedLineNum  string    `json:"connectedLineNum"`
	ConnectedLineName string    `json:"connectedLineName"`
	Extension         string    `json:"extension"`
	UniqueId          string    `json:"uniqueId"`
	LinkedId          string    `json:"linkedId"`
	Timestamp         time.Time `json:"timestamp"`
	Context           string    `json:"context"`
	RecordingFile     string    `json:"recordingFile"`
}

// Header aliases per logical field, in resolution order. Asterisk has used
// more than one spelling for several of these across releases; block lookup
// is already case-insensitive, so only aliases that differ beyond case are
// listed twice.
var (
	callerNumAliases    = []string{"CallerIDNum"}
	callerNameAliases   = []string{"CallerIDName"}
	connectedNumAliases = []string{"ConnectedLineNum", "ConnectedLineNumber"}
	connectedNameAlias  = []string{"ConnectedLineName"}
	uniqueIDAliases     = []string{"Uniqueid"}
	linkedIDAliases     = []string{"Linkedid"}
)

var (
	// channelTechPattern matches a known channel technology prefix and
	// captures the line number, e.g. "SIP/102-00000a1b" -> "102".
	channelTechPattern = regexp.MustCompile(`(?:SIP|IAX2|Local|PJSIP|DAHDI)/(\d+)`)

	// digitRunPattern is the fallback: the first run of digits anywhere.
	digitRunPattern = regexp.MustCompile(`\d+`)
)

// ExtractExtension derives the internal extension from a channel identifier.
// It prefers the digits following a known technology prefix, then the first
// digit run anywhere in the string, and finally returns the channel
// unchanged. Idempotent on already-bare-digit strings.
func ExtractExtension(channel string) string {
	if channel == "" {
		return ""
	}
	if m := channelTechPattern.FindStringSubmatch(channel); m != nil {
		return m[1]
	}
	if m := digitRunPattern.FindString(channel); m != "" {
		return m
	}
	return channel
}

// MapEvent converts a raw event block into a CallEvent. Every extraction
// rule is independent and tolerant of missing headers: absent fields keep
// their zero value. The timestamp is the capture time; the protocol does not
// supply one at this layer.
func MapEvent(eventName string, block *AttributeBlock) *CallEvent {
	ev := &CallEvent{
		EventType: eventName,
		Timestamp: time.Now().UTC(),
	}

	if channel := block.Get("Channel"); channel != "" {
		ev.Channel = channel
		ev.Extension = ExtractExtension(channel)
	}

	ev.CallerIdNum = firstHeader(block, callerNumAliases)
	ev.CallerIdName = firstHeader(block, callerNameAliases)
	ev.ConnectedLineNum = firstHeader(block, connectedNumAliases)
	ev.ConnectedLineName = firstHeader(block, connectedNameAlias)
	ev.UniqueId = firstHeader(block, uniqueIDAliases)
	ev.LinkedId = firstHeader(block, linkedIDAliases)
	ev.Context = block.Get("Context")

	// Recording correlation: a VarSet for a monitor filename variable is
	// rewritten into a RecordingFile event carrying the file path.
	if strings.EqualFold(eventName, eventVarSet) {
		variable := block.Get("Variable")
		value := block.Get("Value")
		if variable != "" && value != "" {
			for _, known := range monitorFilenameVars {
				if strings.EqualFold(variable, known) {
					ev.EventType = EventTypeRecordingFile
					ev.RecordingFile = value
					break
				}
			}
		}
	}

	return ev
}

// firstHeader returns the first non-empty value among the alias spellings.
func firstHeader(block *AttributeBlock, names []string) string {
	for _, name := range names {
		if v := block.Get(name); v != "" {
			return v
		}
	}
	return ""
}
