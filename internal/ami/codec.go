// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package ami

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// lineTerminator is the manager protocol's line ending. The reader also
// tolerates bare "\n" from non-conforming peers.
const lineTerminator = "\r\n"

// Header is one "Name: Value" line of an action.
type Header struct {
	Name  string
	Value string
}

// Action is an ordered list of headers sent to the manager as one block.
// Order is preserved on the wire exactly as given.
type Action []Header

// Reader decodes attribute blocks from a byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps an io.Reader for block decoding.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadBlock reads one attribute block: header lines up to a blank line.
// Lines are split on the first colon with both sides trimmed; lines without
// a colon are ignored.
//
// Returns (nil, io.EOF) on a clean end-of-stream at a block boundary, an
// io.ErrUnexpectedEOF-wrapping error when the stream closes mid-block, and
// (nil, nil) for a block that terminated with zero headers; the caller
// should simply read again.
func (r *Reader) ReadBlock() (*AttributeBlock, error) {
	block := NewAttributeBlock()
	started := false

	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				if !started && line == "" {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("stream closed mid-block: %w", io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("read block: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if block.Len() == 0 {
				return nil, nil
			}
			return block, nil
		}
		started = true

		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		block.Set(line[:idx], line[idx+1:])
	}
}

// DiscardUntilBlank consumes lines up to and including the next blank line.
// Used to skip the greeting banner before login. A clean EOF before the
// blank line is not an error.
func (r *Reader) DiscardUntilBlank() error {
	for {
		line, err := r.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("discard banner: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			return nil
		}
	}
}

// Writer encodes actions onto a byte stream.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps an io.Writer for action encoding.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteAction serializes the headers in the caller's order, appends the
// terminating blank line and flushes. One action is always one flush;
// a partial action never reaches the wire unless the flush itself fails.
func (w *Writer) WriteAction(action Action) error {
	for _, h := range action {
		if _, err := w.w.WriteString(h.Name + ": " + h.Value + lineTerminator); err != nil {
			return fmt.Errorf("write action: %w", err)
		}
	}
	if _, err := w.w.WriteString(lineTerminator); err != nil {
		return fmt.Errorf("write action: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush action: %w", err)
	}
	return nil
}
