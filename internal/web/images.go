package web

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// errUnsafeImageName is the message returned when a requested image name is
// not a single, non-traversing path component.
const errUnsafeImageName = "invalid image name"

// validateImageName enforces the spec's "one Normal path component, no
// traversal" rule, ported from the teacher's XDG_RUNTIME_DIR traversal
// checks in internal/startup/init.go (filepath.Clean equality check) and
// its session-image path handling in internal/web/server.go.
func validateImageName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsRune(name, '/') || strings.ContainsRune(name, '\\') {
		return false
	}
	if filepath.Clean(name) != name {
		return false
	}
	return true
}

// contentTypeFor maps a file extension to a MIME type per spec.md's
// dispatch table; anything else falls back to octet-stream.
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
}

// handleImages lists persisted image files directly under out_dir.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	outDir := s.cfg.OutDir
	s.mu.Unlock()

	entries, err := os.ReadDir(outDir)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	writeJSON(w, http.StatusOK, map[string][]string{"images": names})
}

// handleImage serves a single file under out_dir, rejecting any name that
// is not a single, non-traversing path component.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validateImageName(name) {
		writeJSONError(w, http.StatusBadRequest, errUnsafeImageName)
		return
	}

	s.mu.Lock()
	outDir := s.cfg.OutDir
	s.mu.Unlock()

	path := filepath.Join(outDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSONError(w, http.StatusNotFound, "image not found")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
