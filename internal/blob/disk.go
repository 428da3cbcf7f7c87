// Package blob stores attachment bytes on the local filesystem.
package blob

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

var ErrInvalidKey = errors.New("invalid blob key")

// DiskStore writes each blob to dir/key and addresses it as baseURL/key.
// baseURL is either a path or an absolute URL.
type DiskStore struct {
	dir     string
	baseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob dir: %w", err)
	}
	return &DiskStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put writes data through a temp file and a rename, so a reader never sees a
// partial blob.
func (s *DiskStore) Put(ctx context.Context, key string, data []byte, mediaType string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", ErrInvalidKey
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

// Handler serves stored blobs mounted at mountPath. The public base URL may
// point elsewhere, e.g. a CDN that pulls from mountPath.
func (s *DiskStore) Handler(mountPath string) http.Handler {
	return http.StripPrefix(strings.TrimRight(mountPath, "/")+"/", http.FileServer(http.Dir(s.dir)))
}
