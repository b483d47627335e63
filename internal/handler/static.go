package handler

import (
	"io/fs"
	"net/http"
	"os"
	"path"
	"strings"
)

// ClientHandler serves the browser client from a directory. Paths that do
// not name a file fall back to index.html so client-side routes such as
// /reset-password/{token} load the app.
type ClientHandler struct {
	files     fs.FS
	server    http.Handler
	indexFile string
}

func NewClientHandler(dir string) *ClientHandler {
	files := os.DirFS(dir)
	return &ClientHandler{
		files:     files,
		server:    http.FileServerFS(files),
		indexFile: "index.html",
	}
}

func (h *ClientHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+r.URL.Path), "/")
	if name == "api" || strings.HasPrefix(name, "api/") {
		http.NotFound(w, r)
		return
	}

	if name != "" {
		if info, err := fs.Stat(h.files, name); err == nil && !info.IsDir() {
			h.server.ServeHTTP(w, r)
			return
		}
	}

	if _, err := fs.Stat(h.files, h.indexFile); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, h.files, h.indexFile)
}
