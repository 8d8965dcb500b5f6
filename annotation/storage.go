package annotation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/util"
	log "github.com/sirupsen/logrus"
)

// LocalStorage keeps published files on a billy filesystem and serves them
// under a URL prefix
type LocalStorage struct {
	FS     billy.Filesystem
	Prefix string
}

// NewLocalStorage returns storage rooted at fs served under prefix
func NewLocalStorage(fs billy.Filesystem, prefix string) *LocalStorage {
	return &LocalStorage{FS: fs, Prefix: "/" + strings.Trim(prefix, "/") + "/"}
}

// UploadFile stores r under a timestamped folder and returns its path
func (s *LocalStorage) UploadFile(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := path.Base(path.Clean("/" + name))
	if clean == "/" || clean == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	p := path.Join(time.Now().UTC().Format("20060102T150405"), clean)
	if err := s.FS.MkdirAll(path.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("while creating %s: %w", path.Dir(p), err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if err := util.WriteFile(s.FS, p, data, 0o644); err != nil {
		return "", fmt.Errorf("while writing %s: %w", p, err)
	}
	log.Printf("storage: stored %s (%d bytes)", p, len(data))
	return p, nil
}

// DownloadURL returns the URL a stored path is served at
func (s *LocalStorage) DownloadURL(ctx context.Context, p string) (string, error) {
	if _, err := s.FS.Stat(p); err != nil {
		return "", err
	}
	return s.Prefix + p, nil
}

// ServeHTTP serves stored files
func (s *LocalStorage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := strings.TrimPrefix(r.URL.Path, s.Prefix)
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	data, err := util.ReadFile(s.FS, p)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", path.Base(p)))
	w.Write(data)
}
