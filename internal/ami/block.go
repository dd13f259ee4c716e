// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

// Package ami implements a client for the Asterisk Manager Interface as
// shipped with Issabel: the attribute-block wire codec, the authenticated
// transport session with its background read loop, and the mapping from raw
// event blocks to typed call events.
package ami

import "strings"

// AttributeBlock is one decoded protocol message: an ordered mapping from
// header name to trimmed value. Header lookup is case-insensitive and later
// duplicates override earlier values while keeping the original position.
//
// Blocks are ephemeral: built by the codec, consumed by the login check or
// the event mapper, then discarded.
type AttributeBlock struct {
	keys   []string          // first-seen order, lowercased
	values map[string]string // lowercased name -> trimmed value
}

// NewAttributeBlock returns an empty block.
func NewAttributeBlock() *AttributeBlock {
	return &AttributeBlock{values: make(map[string]string)}
}

// Set stores a header value, trimming both sides. A repeated header keeps
// its first-seen position but takes the new value.
func (b *AttributeBlock) Set(name, value string) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	if _, seen := b.values[key]; !seen {
		b.keys = append(b.keys, key)
	}
	b.values[key] = strings.TrimSpace(value)
}

// Get returns the value for a header name, case-insensitively.
// Missing headers yield "".
func (b *AttributeBlock) Get(name string) string {
	return b.values[strings.ToLower(name)]
}

// Has reports whether the header is present, even with an empty value.
func (b *AttributeBlock) Has(name string) bool {
	_, ok := b.values[strings.ToLower(name)]
	return ok
}

// Len returns the number of distinct headers in the block.
func (b *AttributeBlock) Len() int {
	return len(b.keys)
}
