// Package devserver implements the dev-only static file and directory
// listing server bundled with the host builder. It exists purely to
// exercise the HTTP-FS alternative apply mode locally: listings use plain
// href="..." anchors, matching what internal/httpfs parses on the device
// side.
package devserver

import (
	"fmt"
	"html"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Server serves root as a static file tree with directory index pages.
type Server struct {
	root string
}

// New returns a Server rooted at root.
func New(root string) *Server {
	return &Server{root: root}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clean := path.Clean("/" + r.URL.Path)
	fsPath := filepath.Join(s.root, filepath.FromSlash(clean))

	info, err := os.Stat(fsPath)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	if info.IsDir() {
		s.listDir(w, fsPath, clean)
		return
	}
	http.ServeFile(w, r, fsPath)
}

func (s *Server) listDir(w http.ResponseWriter, fsPath, urlPath string) {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		http.Error(w, "directory read failed", http.StatusInternalServerError)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	if !strings.HasSuffix(urlPath, "/") {
		urlPath += "/"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>index of %s</title></head><body>\n", html.EscapeString(urlPath))
	fmt.Fprintf(w, "<h1>index of %s</h1>\n<ul>\n", html.EscapeString(urlPath))
	if urlPath != "/" {
		fmt.Fprintf(w, `<li><a href="../">../</a></li>`+"\n")
	}
	for _, e := range entries {
		name := e.Name()
		href := name
		if e.IsDir() {
			href += "/"
		}
		fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`+"\n", html.EscapeString(href), html.EscapeString(href))
	}
	fmt.Fprint(w, "</ul></body></html>\n")
}
