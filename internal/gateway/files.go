package gateway

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openbim/ifcpipeline/internal/vol"
)

// Upload limits. Models can be large; payload-sized caps belong to the
// enqueue endpoints, not here.
const (
	maxUploadBytes   = 500 << 20
	maxDownloadBytes = 2 << 30
)

// allowedUploadExts is the extension allow-list for client uploads.
var allowedUploadExts = map[string]bool{
	".ifc":  true,
	".ids":  true,
	".csv":  true,
	".xlsx": true,
	".ods":  true,
	".json": true,
}

// clientIP extracts the bare address for rate limiting.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// handleUpload receives one multipart file and deposits it in the
// shared uploads root for a later job to consume.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	// The client name is reduced to its base before any path handling.
	name := filepath.Base(header.Filename)
	if err := vol.CheckName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	if !allowedUploadExts[strings.ToLower(filepath.Ext(name))] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file type %s not allowed", filepath.Ext(name)))
		return
	}

	dest, err := vol.SafeJoin(s.roots.Uploads, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	written, err := vol.AtomicWrite(dest, file)
	if err != nil {
		s.log.Error().Err(err).Str("filename", name).Msg("upload write failed")
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	s.log.Info().Str("filename", name).Int64("bytes", written).Str("target", r.PathValue("kind")).Msg("file uploaded")
	writeJSON(w, http.StatusOK, map[string]string{"filename": name})
}

// downloadFromURLRequest fetches a remote model into the uploads root.
type downloadFromURLRequest struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

func (s *Server) handleDownloadFromURL(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req downloadFromURLRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://") {
		writeError(w, http.StatusBadRequest, "url must be http or https")
		return
	}
	name := filepath.Base(req.Filename)
	if err := vol.CheckName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Get(req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to fetch url")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("remote returned %d", resp.StatusCode))
		return
	}

	dest, err := vol.SafeJoin(s.roots.Uploads, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid filename")
		return
	}
	written, err := vol.AtomicWrite(dest, io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		s.log.Error().Err(err).Str("url", req.URL).Msg("remote download failed")
		writeError(w, http.StatusInternalServerError, "failed to store file")
		return
	}

	s.log.Info().Str("filename", name).Int64("bytes", written).Msg("remote file downloaded")
	writeJSON(w, http.StatusOK, map[string]string{"filename": name})
}

// dirEntry is one artifact in a directory listing.
type dirEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// handleListDirectories returns the per-kind output listings.
func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	listing := make(map[string][]dirEntry)

	subdirs, err := os.ReadDir(s.roots.Output)
	if err != nil && !os.IsNotExist(err) {
		writeError(w, http.StatusInternalServerError, "failed to read output root")
		return
	}
	for _, sub := range subdirs {
		if !sub.IsDir() {
			continue
		}
		entries := []dirEntry{}
		dir := filepath.Join(s.roots.Output, sub.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || info.IsDir() {
				continue
			}
			entries = append(entries, dirEntry{
				Name:     f.Name(),
				Size:     info.Size(),
				Modified: info.ModTime().UTC(),
			})
		}
		listing[sub.Name()] = entries
	}

	writeJSON(w, http.StatusOK, map[string]any{"directories": listing})
}
