package static

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Page provides the content of a fixed page such as the not-found page
type Page interface {
	// Load returns the page body, or an error when the page is unavailable
	Load() ([]byte, error)
	// ContentType is the MIME type to serve the body with
	ContentType() string
}

// FilePage serves a file from disk. The content is cached and re-read
// whenever the file's size or modification time changes.
type FilePage struct {
	path string

	mu      sync.Mutex
	content []byte
	modTime time.Time
	size    int64
}

// NewFilePage creates a page backed by path
func NewFilePage(path string) *FilePage {
	return &FilePage{path: path}
}

// Path returns the backing file path
func (p *FilePage) Path() string {
	return p.path
}

// Load implements Page
func (p *FilePage) Load() ([]byte, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		return nil, fmt.Errorf("stat page %s: %w", p.path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("page %s is a directory", p.path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.content != nil && info.ModTime().Equal(p.modTime) && info.Size() == p.size {
		return p.content, nil
	}

	content, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", p.path, err)
	}

	p.content = content
	p.modTime = info.ModTime()
	p.size = info.Size()
	return content, nil
}

// ContentType implements Page
func (p *FilePage) ContentType() string {
	return ContentTypeFor(p.path)
}

// StaticPage serves fixed bytes
type StaticPage struct {
	Body []byte
	Type string
}

// Load implements Page
func (p StaticPage) Load() ([]byte, error) {
	return p.Body, nil
}

// ContentType implements Page
func (p StaticPage) ContentType() string {
	if p.Type == "" {
		return "text/html; charset=utf-8"
	}
	return p.Type
}

// DefaultNotFound is used when no page is configured
var DefaultNotFound = StaticPage{
	Body: []byte("<!DOCTYPE html>\n<html><head><title>404 Not Found</title></head>" +
		"<body><h1>404 Not Found</h1></body></html>\n"),
}

// ContentTypeFor returns MIME type based on file extension
func ContentTypeFor(filename string) string {
	switch filepath.Ext(filename) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript; charset=utf-8"
	case ".json":
		return "application/json; charset=utf-8"
	case ".xml":
		return "application/xml; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
