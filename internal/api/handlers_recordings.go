// CallMonitor - Realtime Call Monitoring for Issabel/Asterisk PBX
// Copyright 2026 Issabel Tools Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/issabel-tools/callmonitor

package api

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/issabel-tools/callmonitor/internal/logging"
	"github.com/issabel-tools/callmonitor/internal/recordings"
)

// Accepted layouts for the from/to query parameters, tried in order.
var searchTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Content types served for recording downloads, by file extension.
var recordingContentTypes = map[string]string{
	".wav": "audio/wav",
	".mp3": "audio/mpeg",
	".gsm": "audio/x-gsm",
	".ogg": "audio/ogg",
}

// RecordingResult is a search hit plus the URLs to play or fetch it.
type RecordingResult struct {
	recordings.Recording
	StreamURL   string `json:"streamUrl"`
	DownloadURL string `json:"downloadUrl"`
}

// SearchRecordings handles GET /api/v1/recordings.
//
// Query parameters:
//   - from: start of the window (required)
//   - to: end of the window (required; date-only means end of that day)
//   - extension: optional extension filter
func (h *Handler) SearchRecordings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	from, err := parseSearchTime(r.URL.Query().Get("from"))
	if err != nil {
		rw.BadRequest("Invalid or missing 'from' parameter")
		return
	}
	to, err := parseSearchTime(r.URL.Query().Get("to"))
	if err != nil {
		rw.BadRequest("Invalid or missing 'to' parameter")
		return
	}
	if to.Before(from) {
		rw.BadRequest("'to' must not be before 'from'")
		return
	}

	extension := strings.TrimSpace(r.URL.Query().Get("extension"))

	found, err := h.locator.Search(r.Context(), from, to, extension)
	if err != nil {
		logging.Error().Err(err).Msg("Recording search failed")
		rw.InternalError("Recording search failed")
		return
	}

	results := make([]RecordingResult, 0, len(found))
	for _, rec := range found {
		escaped := url.PathEscape(rec.FileName)
		results = append(results, RecordingResult{
			Recording:   rec,
			StreamURL:   "/api/v1/recordings/stream/" + escaped,
			DownloadURL: "/api/v1/recordings/download/" + escaped,
		})
	}

	rw.SuccessWithCount(results, len(results))
}

// StreamRecording handles GET /api/v1/recordings/stream/{fileName}.
// http.ServeContent provides Range support so browser audio players
// can seek.
func (h *Handler) StreamRecording(w http.ResponseWriter, r *http.Request) {
	h.serveRecording(w, r, false)
}

// DownloadRecording handles GET /api/v1/recordings/download/{fileName},
// forcing a file download via Content-Disposition.
func (h *Handler) DownloadRecording(w http.ResponseWriter, r *http.Request) {
	h.serveRecording(w, r, true)
}

func (h *Handler) serveRecording(w http.ResponseWriter, r *http.Request, attachment bool) {
	rw := NewResponseWriter(w, r)

	fileName := chi.URLParam(r, "fileName")
	if fileName == "" {
		rw.BadRequest("Missing file name")
		return
	}

	path, err := h.locator.Resolve(fileName)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			rw.NotFound("Recording not found")
			return
		}
		logging.Error().Err(err).Str("file", fileName).Msg("Recording lookup failed")
		rw.InternalError("Recording lookup failed")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("Failed to open recording")
		rw.InternalError("Failed to open recording")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		logging.Error().Err(err).Str("path", path).Msg("Failed to stat recording")
		rw.InternalError("Failed to read recording")
		return
	}

	base := filepath.Base(path)
	ct, ok := recordingContentTypes[strings.ToLower(filepath.Ext(base))]
	if !ok {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	if attachment {
		w.Header().Set("Content-Disposition", `attachment; filename="`+base+`"`)
	}

	http.ServeContent(w, r, base, info.ModTime(), f)
}

func parseSearchTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty time value")
	}

	var lastErr error
	for _, layout := range searchTimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
