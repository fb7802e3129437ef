package models

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNormalizeMIME(t *testing.T) {
	cases := []struct {
		name string
		file string
		mime string
		want string
	}{
		{"empty everything", "noext", "", ""},
		{"from extension", "report.md", "", "text/markdown"},
		{"alias jpeg", "photo", "image/jpg", "image/jpeg"},
		{"double prefix", "diagram.png", "image/image/png", "image/png"},
		{"invalid without slash", "clip.mp4", "video", "video/mp4"},
		{"with params", "vector.svg", "image/svg+xml; charset=utf-8", "image/svg+xml"},
		{"already clean", "data.bin", "application/octet-stream", "application/octet-stream"},
		{"suffix slash", "notes.txt", "text/plain/", "text/plain"},
		{"audio alias", "track.mp3", "audio/mp3", "audio/mpeg"},
		{"pdf by extension", "paper.PDF", "", "application/pdf"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeMIME(tc.file, tc.mime); got != tc.want {
				t.Fatalf("normalizeMIME(%q, %q) = %q, want %q", tc.file, tc.mime, got, tc.want)
			}
		})
	}
}

func TestDetectMIME(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		t.Helper()
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return p
	}

	png := write("blob", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00"))
	plain := write("notes", []byte("hello world\nthis is text\n"))
	yaml := write("config.yaml", []byte("a: 1\n"))
	declared := write("photo.bin", []byte{0, 1, 2})

	cases := []struct {
		name     string
		path     string
		declared string
		want     string
	}{
		{"declared alias wins", declared, "image/jpg", "image/jpeg"},
		{"sniffed png", png, "", "image/png"},
		{"sniffed text drops charset", plain, "", "text/plain"},
		{"unsupported text falls back to plain", yaml, "", "text/plain"},
		{"missing file", filepath.Join(dir, "nope"), "", "application/octet-stream"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectMIME(tc.path, tc.declared); got != tc.want {
				t.Fatalf("DetectMIME(%q, %q) = %q, want %q", tc.path, tc.declared, got, tc.want)
			}
		})
	}
}

func TestIsTextMIME(t *testing.T) {
	cases := map[string]bool{
		"":                 false,
		"text/plain":       true,
		"TEXT/HTML":        true,
		"application/json": true,
		"application/pdf":  false,
		"image/png":        false,
	}
	for in, want := range cases {
		if got := isTextMIME(in); got != want {
			t.Fatalf("isTextMIME(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNormalizeMIME_Concurrency(t *testing.T) {
	mimeCacheMu.Lock()
	mimeCache = make(map[string]string)
	mimeCacheMu.Unlock()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := normalizeMIME("test.jpg", "image/jpeg"); got != "image/jpeg" {
				t.Errorf("unexpected mime %q", got)
			}
		}()
	}
	wg.Wait()

	mimeCacheMu.RLock()
	defer mimeCacheMu.RUnlock()
	if len(mimeCache) == 0 {
		t.Error("expected cache to be populated")
	}
}

func BenchmarkNormalizeMIME(b *testing.B) {
	for i := 0; i < b.N; i++ {
		normalizeMIME("photo.jpeg", "IMAGE/JPG; q=1")
	}
}
