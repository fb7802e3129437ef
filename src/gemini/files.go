package gemini

import (
	"context"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	genai "github.com/google/generative-ai-go/genai"

	"github.com/Protocol-Lattice/gemini-mcp/src/models"
)

// FileInfo is a file held by the Files API.
type FileInfo struct {
	Name           string     `json:"name"`
	DisplayName    string     `json:"displayName,omitempty"`
	MIMEType       string     `json:"mimeType"`
	SizeBytes      int64      `json:"sizeBytes"`
	SHA256         string     `json:"sha256Hash,omitempty"`
	URI            string     `json:"uri"`
	State          string     `json:"state"`
	CreateTime     time.Time  `json:"createTime"`
	UpdateTime     time.Time  `json:"updateTime"`
	ExpirationTime *time.Time `json:"expirationTime,omitempty"`
}

func fileInfo(f *genai.File) FileInfo {
	if f == nil {
		return FileInfo{}
	}
	info := FileInfo{
		Name:        f.Name,
		DisplayName: f.DisplayName,
		MIMEType:    f.MIMEType,
		SizeBytes:   f.SizeBytes,
		SHA256:      hex.EncodeToString(f.Sha256Hash),
		URI:         f.URI,
		State:       fileStateName(f.State),
		CreateTime:  f.CreateTime,
		UpdateTime:  f.UpdateTime,
	}
	if !f.ExpirationTime.IsZero() {
		exp := f.ExpirationTime
		info.ExpirationTime = &exp
	}
	return info
}

// fileName accepts both "files/abc" and the bare "abc".
func fileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || strings.HasPrefix(name, "files/") {
		return name
	}
	return "files/" + name
}

// UploadFile uploads a local file. The MIME type is sniffed when mimeType is
// empty and the display name defaults to the base name.
func (s *Service) UploadFile(ctx context.Context, path, displayName, mimeType string) (FileInfo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return FileInfo{}, &ConfigurationError{Message: "file path is required"}
	}
	st, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileInfo{}, &NotFoundError{Kind: "file", ID: path}
		}
		return FileInfo{}, &TransportError{Message: "stat " + path, Cause: err}
	}
	if st.IsDir() {
		return FileInfo{}, &ConfigurationError{Message: path + " is a directory"}
	}
	if strings.TrimSpace(displayName) == "" {
		displayName = filepath.Base(path)
	}

	opts := models.UploadOptions{DisplayName: displayName, MIMEType: models.DetectMIME(path, mimeType)}
	f, err := s.transport.UploadFile(ctx, path, opts)
	if err != nil {
		return FileInfo{}, translateError(err, "file", path)
	}
	s.logger.Info("file uploaded", "name", f.Name, "mime", opts.MIMEType, "bytes", st.Size())
	return fileInfo(f), nil
}

func (s *Service) GetFile(ctx context.Context, name string) (FileInfo, error) {
	name = fileName(name)
	f, err := s.transport.GetFile(ctx, name)
	if err != nil {
		return FileInfo{}, translateError(err, "file", name)
	}
	return fileInfo(f), nil
}

// ListFiles returns at most limit files; limit <= 0 lists everything.
func (s *Service) ListFiles(ctx context.Context, limit int) ([]FileInfo, error) {
	files, err := s.transport.ListFiles(ctx, limit)
	if err != nil {
		return nil, translateError(err, "", "")
	}
	out := make([]FileInfo, 0, len(files))
	for _, f := range files {
		out = append(out, fileInfo(f))
	}
	return out, nil
}

func (s *Service) DeleteFile(ctx context.Context, name string) error {
	name = fileName(name)
	if err := s.transport.DeleteFile(ctx, name); err != nil {
		return translateError(err, "file", name)
	}
	s.logger.Info("file deleted", "name", name)
	return nil
}
