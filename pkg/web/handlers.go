package web

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirrobot01/zipfetch/internal/request"
	"github.com/sirrobot01/zipfetch/pkg/zip"
)

type entryListing struct {
	URL   string      `json:"url"`
	Files []zip.Entry `json:"files"`
}

func archiveURL(r *http.Request) (string, bool) {
	u := r.URL.Query().Get("url")
	return u, u != ""
}

// entryName decodes the wildcard path segment; entry names may contain
// slashes and escaped characters.
func entryName(r *http.Request) string {
	name := chi.URLParam(r, "*")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	return name
}

func (wb *Web) handleListEntries(w http.ResponseWriter, r *http.Request) {
	u, ok := archiveURL(r)
	if !ok {
		http.Error(w, "No 'url' query param", http.StatusBadRequest)
		return
	}
	archive, err := wb.openArchive(r.Context(), u)
	if err != nil {
		wb.errorResponse(w, u, err)
		return
	}
	request.JSONResponse(w, entryListing{URL: u, Files: archive.Entries()}, http.StatusOK)
}

func (wb *Web) handleReadEntry(w http.ResponseWriter, r *http.Request) {
	u, ok := archiveURL(r)
	if !ok {
		http.Error(w, "No 'url' query param", http.StatusBadRequest)
		return
	}
	name := entryName(r)
	archive, err := wb.openArchive(r.Context(), u)
	if err != nil {
		wb.errorResponse(w, u, err)
		return
	}
	data, err := archive.ReadFile(r.Context(), name)
	if err != nil {
		wb.errorResponse(w, u, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// handleEntryBytes serves an inclusive [start, end] slice of an entry's
// decompressed content.
func (wb *Web) handleEntryBytes(w http.ResponseWriter, r *http.Request) {
	u, ok := archiveURL(r)
	if !ok {
		http.Error(w, "No 'url' query param", http.StatusBadRequest)
		return
	}
	startParam := r.URL.Query().Get("start")
	if startParam == "" {
		http.Error(w, "No 'start' query param", http.StatusBadRequest)
		return
	}
	endParam := r.URL.Query().Get("end")
	if endParam == "" {
		http.Error(w, "No 'end' query param", http.StatusBadRequest)
		return
	}
	start, err := strconv.Atoi(startParam)
	if err != nil {
		http.Error(w, "Invalid 'start' query param", http.StatusBadRequest)
		return
	}
	end, err := strconv.Atoi(endParam)
	if err != nil {
		http.Error(w, "Invalid 'end' query param", http.StatusBadRequest)
		return
	}

	name := entryName(r)
	archive, err := wb.openArchive(r.Context(), u)
	if err != nil {
		wb.errorResponse(w, u, err)
		return
	}
	data, err := archive.ReadFile(r.Context(), name)
	if err != nil {
		wb.errorResponse(w, u, err)
		return
	}
	if start < 0 || end < start || end >= len(data) {
		http.Error(w, "Range out of bounds", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
	_, _ = w.Write(data[start : end+1])
}

func (wb *Web) handleArchiveSize(w http.ResponseWriter, r *http.Request) {
	u, ok := archiveURL(r)
	if !ok {
		http.Error(w, "No 'url' query param", http.StatusBadRequest)
		return
	}
	fetcher := zip.NewHTTPFetcher(u, wb.client, wb.logger)
	size, err := fetcher.Size(r.Context())
	if err != nil {
		wb.errorResponse(w, u, err)
		return
	}
	request.JSONResponse(w, size, http.StatusOK)
}

func (wb *Web) errorResponse(w http.ResponseWriter, url string, err error) {
	switch {
	case errors.Is(err, zip.ErrFileNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, zip.ErrUnsupportedCompression):
		http.Error(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.Is(err, zip.ErrTransport), errors.Is(err, zip.ErrMetadata):
		wb.logger.Error().Err(err).Str("url", url).Msg("Failed to reach archive")
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		wb.logger.Error().Err(err).Str("url", url).Msg("Failed to read archive")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
