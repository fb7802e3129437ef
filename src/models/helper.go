package models

import (
	"mime"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
)

// MIME type lookup tables for fast access
var (
	mimeExtMap = map[string]string{
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".png":  "image/png",
		".gif":  "image/gif",
		".webp": "image/webp",
		".heic": "image/heic",
		".heif": "image/heif",
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
		".webm": "video/webm",
		".avi":  "video/x-msvideo",
		".mp3":  "audio/mpeg",
		".wav":  "audio/wav",
		".flac": "audio/flac",
		".ogg":  "audio/ogg",
		".aac":  "audio/aac",
		".pdf":  "application/pdf",
		".txt":  "text/plain",
		".log":  "text/plain",
		".md":   "text/markdown",
		".csv":  "text/csv",
		".html": "text/html",
		".json": "application/json",
		".yaml": "application/x-yaml",
		".yml":  "application/x-yaml",
		".xml":  "application/xml",
		".py":   "text/x-python",
		".go":   "text/x-go",
		".js":   "text/javascript",
	}

	mimeAliasMap = map[string]string{
		"image/jpg":   "image/jpeg",
		"image/pjpeg": "image/jpeg",
		"image/x-png": "image/png",
		"video/mov":   "video/quicktime",
		"audio/mp3":   "audio/mpeg",
		"audio/x-wav": "audio/wav",
	}

	// Cache for normalized MIME types
	mimeCache   = make(map[string]string, 100)
	mimeCacheMu sync.RWMutex
)

const mimeCacheLimit = 1000

// DetectMIME picks the MIME type for an upload. A declared type is cleaned
// up and trusted; otherwise the extension is consulted and, failing that,
// the file content is sniffed.
func DetectMIME(path, declared string) string {
	if mt := normalizeMIME(path, declared); mt != "" && mt != "application/octet-stream" {
		return uploadMIME(mt)
	}
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return uploadMIME(stripParams(detected.String()))
}

// Text types the Files API accepts verbatim; other text is sent as text/plain.
var uploadTextMIME = map[string]bool{
	"text/plain":       true,
	"text/html":        true,
	"text/css":         true,
	"text/csv":         true,
	"text/markdown":    true,
	"text/xml":         true,
	"text/rtf":         true,
	"text/javascript":  true,
	"text/x-python":    true,
	"application/json": true,
}

func uploadMIME(mt string) string {
	if isTextMIME(mt) && !uploadTextMIME[mt] {
		return "text/plain"
	}
	return mt
}

// normalizeMIME fixes messy/alias MIMEs and falls back to file extension.
func normalizeMIME(name, m string) string {
	cacheKey := name + "|" + m
	mimeCacheMu.RLock()
	if cached, ok := mimeCache[cacheKey]; ok {
		mimeCacheMu.RUnlock()
		return cached
	}
	mimeCacheMu.RUnlock()

	result := resolveMIME(name, m)

	mimeCacheMu.Lock()
	if len(mimeCache) < mimeCacheLimit {
		mimeCache[cacheKey] = result
	}
	mimeCacheMu.Unlock()
	return result
}

func resolveMIME(name, m string) string {
	raw := stripParams(strings.ToLower(m))
	if raw == "" {
		return mimeFromExt(name)
	}

	for strings.HasPrefix(raw, "image/image/") || strings.HasPrefix(raw, "video/video/") || strings.HasPrefix(raw, "audio/audio/") {
		for _, kind := range []string{"image/", "video/", "audio/"} {
			raw = strings.Replace(raw, kind+kind, kind, 1)
		}
	}

	if normalized, ok := mimeAliasMap[raw]; ok {
		return normalized
	}

	// Malformed MIME -> use extension
	if !strings.Contains(raw, "/") || strings.HasSuffix(raw, "/") {
		if via := mimeFromExt(name); via != "" {
			return via
		}
		return strings.TrimSuffix(raw, "/")
	}
	return raw
}

func mimeFromExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	if mt, ok := mimeExtMap[ext]; ok {
		return mt
	}
	return stripParams(mime.TypeByExtension(ext))
}

func stripParams(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func isTextMIME(m string) bool {
	m = strings.ToLower(strings.TrimSpace(m))
	if m == "" {
		return false
	}
	if strings.HasPrefix(m, "text/") {
		return true
	}
	switch m {
	case "application/json",
		"application/xml",
		"application/x-yaml",
		"application/yaml":
		return true
	default:
		return false
	}
}
