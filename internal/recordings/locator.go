// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

// Package recordings locates call recordings on the PBX filesystem.
//
// Issabel's MixMonitor writes recordings under a spool directory with
// names like OUT-1234-20260829-153000-1756481400.1234.wav. The locator
// never keeps an index: every search walks the directory tree and
// derives the extension, caller and duration from the file name and
// size. That keeps it correct even when recordings are written, moved
// or purged by the PBX behind our back.
package recordings

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/issabel-tools/callmonitor/internal/config"
	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/metrics"
)

// Recording describes one recording file found under the spool root.
type Recording struct {
	ID              uuid.UUID `json:"id"`
	FileName        string    `json:"fileName"`
	Extension       string    `json:"extension"`
	CallerID        string    `json:"callerId"`
	Date            time.Time `json:"date"`
	DurationSeconds int       `json:"durationSeconds"`
	SizeBytes       int64     `json:"sizeBytes"`
}

// audioExtensions are the file types MixMonitor and Monitor produce.
var audioExtensions = map[string]bool{
	".wav": true,
	".mp3": true,
	".gsm": true,
	".ogg": true,
}

// bytesPerSecond estimates playback duration from file size for the
// codecs Asterisk records with. 8kHz 16-bit mono WAV dominates.
var bytesPerSecond = map[string]int64{
	".wav": 16000,
	".mp3": 8000,
	".gsm": 4000,
	".ogg": 6000,
}

const defaultBytesPerSecond = 8000

// unknownCallerID is reported when a file name carries no caller token.
const unknownCallerID = "Unknown"

// Duration estimates are clamped to a sane range; a truncated file
// still reports at least one second and a runaway size caps at an hour.
const (
	minDurationSeconds = 1
	maxDurationSeconds = 3600
)

// Locator finds recordings under the configured spool root.
type Locator struct {
	root string
}

// NewLocator creates a locator rooted at cfg.Path.
func NewLocator(cfg config.RecordingsConfig) *Locator {
	return &Locator{root: cfg.Path}
}

// Root returns the spool directory the locator scans.
func (l *Locator) Root() string {
	return l.root
}

// Search walks the spool tree and returns the recordings whose modification
// time falls inside [from, to], newest first. An empty extension matches
// every recording; otherwise only files whose name carries that extension
// are returned.
//
// A `to` bound with a zero time-of-day is widened to the end of that day,
// so from=2026-08-01 to=2026-08-01 covers the whole calendar day.
func (l *Locator) Search(ctx context.Context, from, to time.Time, extension string) ([]Recording, error) {
	start := time.Now()

	from = from.UTC()
	to = to.UTC()
	if h, m, s := to.Clock(); h == 0 && m == 0 && s == 0 {
		to = to.AddDate(0, 0, 1).Add(-time.Second)
	}

	var results []Recording
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtree, skip it rather than fail the search.
			logging.Debug().Err(err).Str("path", path).Msg("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		mtime := info.ModTime().UTC()
		if mtime.Before(from) || mtime.After(to) {
			return nil
		}

		rec := parseFileName(d.Name())
		if rec.Extension == "" {
			// No extension token means the file is not a call recording,
			// announcements and prompts share the spool directory.
			return nil
		}
		if extension != "" && rec.Extension != extension {
			return nil
		}

		rec.ID = uuid.New()
		rec.Date = mtime
		rec.SizeBytes = info.Size()
		rec.DurationSeconds = estimateDuration(d.Name(), info.Size())
		results = append(results, rec)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			// Spool directory absent: no recordings, not an error.
			logging.Warn().Str("root", l.root).Msg("recordings directory does not exist")
			return []Recording{}, nil
		}
		return nil, fmt.Errorf("walking %s: %w", l.root, err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Date.After(results[j].Date)
	})

	metrics.RecordRecordingSearch(time.Since(start), len(results))
	if results == nil {
		results = []Recording{}
	}
	return results, nil
}

// Resolve maps a bare recording file name to its absolute path under the
// spool root. The name is sanitized first so a crafted request cannot
// escape the root. If the file is not directly under the root it is
// searched for recursively, matching Issabel's date-partitioned spool
// layout. Returns an error wrapping fs.ErrNotExist when no file matches.
func (l *Locator) Resolve(fileName string) (string, error) {
	name := sanitizeFileName(fileName)
	if name == "" {
		return "", fmt.Errorf("recording %q: %w", fileName, fs.ErrNotExist)
	}

	direct := filepath.Join(l.root, name)
	if info, err := os.Stat(direct); err == nil && !info.IsDir() {
		return direct, nil
	}

	var found string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("walking %s: %w", l.root, err)
	}
	if found == "" {
		return "", fmt.Errorf("recording %q: %w", name, fs.ErrNotExist)
	}
	return found, nil
}

// sanitizeFileName strips any directory components from a requested file
// name. Both separator styles are handled since requests may originate
// from Windows browsers.
func sanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	return name
}

// parseFileName derives the extension and caller from a MixMonitor file
// name. Names are dash or underscore separated tokens; 8-digit (date)
// and 6-digit (time) tokens are skipped, the first 2-6 digit token is
// the extension and the first longer digit run is the caller number.
func parseFileName(name string) Recording {
	rec := Recording{FileName: name}

	base := strings.TrimSuffix(name, filepath.Ext(name))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_'
	})

	for _, tok := range tokens {
		if !isDigits(tok) {
			continue
		}
		switch n := len(tok); {
		case n == 8 || n == 6:
			// Date or time stamp baked into the name.
		case n >= 2 && n <= 6 && rec.Extension == "":
			rec.Extension = tok
		case n >= 7 && rec.CallerID == "":
			rec.CallerID = tok
		}
	}
	if rec.CallerID == "" {
		rec.CallerID = unknownCallerID
	}
	return rec
}

// estimateDuration approximates playback length from the file size.
func estimateDuration(name string, size int64) int {
	bps, ok := bytesPerSecond[strings.ToLower(filepath.Ext(name))]
	if !ok {
		bps = defaultBytesPerSecond
	}
	seconds := int(size / bps)
	if seconds < minDurationSeconds {
		return minDurationSeconds
	}
	if seconds > maxDurationSeconds {
		return maxDurationSeconds
	}
	return seconds
}

// isDigits reports whether s is a non-empty ASCII digit run.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
