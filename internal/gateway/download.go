package gateway

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/openbim/ifcpipeline/internal/tokens"
	"github.com/openbim/ifcpipeline/internal/vol"
)

// createDownloadLinkRequest binds a token to one artifact path. The
// path may be absolute (inside the output root) or relative to it.
type createDownloadLinkRequest struct {
	FilePath string `json:"file_path"`
}

func (s *Server) handleCreateDownloadLink(w http.ResponseWriter, r *http.Request) {
	var req createDownloadLinkRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.FilePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	path := req.FilePath
	if !filepath.IsAbs(path) {
		joined, err := vol.SafeJoin(s.roots.Output, path)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid file_path")
			return
		}
		path = joined
	}
	path = filepath.Clean(path)
	if strings.ContainsRune(path, 0) || !vol.Within(s.roots.Output, path) {
		writeError(w, http.StatusBadRequest, "invalid file_path")
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	token, err := s.tokens.Issue(r.Context(), path)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to issue download token")
		writeError(w, http.StatusServiceUnavailable, "failed to issue token")
		return
	}

	s.log.Info().Str("path", path).Time("expires_at", token.ExpiresAt).Msg("download link created")
	writeJSON(w, http.StatusOK, token)
}

// handleDownload redeems a token and streams the artifact. The bodies
// for unknown and expired tokens are equally uninformative; only the
// status code differs.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	path, err := s.tokens.Redeem(r.Context(), r.PathValue("token"))
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrTokenExpired):
			writeError(w, http.StatusGone, "gone")
		case errors.Is(err, tokens.ErrInvalidToken):
			writeError(w, http.StatusNotFound, "not found")
		default:
			writeError(w, http.StatusServiceUnavailable, "unavailable")
		}
		return
	}

	// The token was validated against the output root at issue time;
	// re-check in case the contract changed underneath it.
	if !vol.Within(s.roots.Output, path) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	w.Header().Set("Content-Type", vol.ContentTypeFor(path))
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
}
