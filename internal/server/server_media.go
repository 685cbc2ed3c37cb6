package server

import (
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
)

// mediaHandler serves files under the content media directory. Range
// requests are handled by http.ServeContent so players can seek.
func (s *stateStore) mediaHandler(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	path, err := s.lib.MediaPath(rel)
	if err != nil {
		s.logger.Debug("media not found", "path", rel, "error", err)
		http.Error(w, "Nie znaleziono", http.StatusNotFound)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "Nie znaleziono", http.StatusNotFound)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		http.Error(w, "Nie znaleziono", http.StatusNotFound)
		return
	}

	name := filepath.Base(path)
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if r.URL.Query().Get("download") == "1" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	}
	http.ServeContent(w, r, name, st.ModTime(), f)
}
