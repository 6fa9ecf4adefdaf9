// manager_test.go - Tests for storage layer
package storage

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func createTestStore(t *testing.T, maxBytes int64) *LocalStore {
	store, err := NewLocalStore(t.TempDir(), maxBytes)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates upload directory", func(t *testing.T) {
		uploadDir := filepath.Join(t.TempDir(), "uploads")

		if _, err := NewLocalStore(uploadDir, 0); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}

		if _, err := os.Stat(uploadDir); os.IsNotExist(err) {
			t.Error("Expected upload directory to be created")
		}
	})
}

func TestLocalStore_SaveOpenDelete(t *testing.T) {
	store := createTestStore(t, 0)

	content := []byte("%PDF-1.4 essay body")
	info, err := store.Save("redacao.pdf", "application/pdf", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if info.ID == "" {
		t.Error("Expected non-empty ID")
	}
	if info.Size != int64(len(content)) {
		t.Errorf("Expected size %d, got %d", len(content), info.Size)
	}
	if info.ContentType != "application/pdf" {
		t.Errorf("Expected application/pdf, got %s", info.ContentType)
	}

	got, err := store.Get(info.ID)
	if err != nil || got.Name != "redacao.pdf" {
		t.Fatalf("Get returned %v, %v", got, err)
	}

	rc, err := store.Open(info.ID)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if !bytes.Equal(data, content) {
		t.Errorf("Expected stored bytes to round trip, got %q", data)
	}

	if err := store.Delete(info.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.Open(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on open after delete, got %v", err)
	}
	if err := store.Delete(info.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestLocalStore_SaveStripsDirectories(t *testing.T) {
	store := createTestStore(t, 0)

	info, err := store.Save("../../etc/essay.png", "image/png", bytes.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if info.Name != "essay.png" {
		t.Errorf("Expected base name, got %s", info.Name)
	}
}

func TestLocalStore_SaveDefaultsEmptyName(t *testing.T) {
	store := createTestStore(t, 0)

	tests := []struct {
		name string
		want string
	}{
		{"", DefaultFileName},
		{"   ", DefaultFileName},
		{"/", DefaultFileName},
		{"..", DefaultFileName},
		{"uploads/", "uploads"},
		{`C:\Users\aluno\redacao.pdf`, "redacao.pdf"},
	}

	for _, tt := range tests {
		info, err := store.Save(tt.name, "image/png", bytes.NewReader(pngHeader))
		if err != nil {
			t.Fatalf("Save(%q) failed: %v", tt.name, err)
		}
		if info.Name != tt.want {
			t.Errorf("Save(%q): expected name %q, got %q", tt.name, tt.want, info.Name)
		}
	}
}

func TestLocalStore_MaxSize(t *testing.T) {
	store := createTestStore(t, 10)

	if _, err := store.Save("ok.txt", "text/plain", strings.NewReader("0123456789")); err != nil {
		t.Errorf("Expected file at the limit to be accepted, got %v", err)
	}

	_, err := store.Save("big.txt", "text/plain", strings.NewReader("0123456789A"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Expected ErrFileTooLarge, got %v", err)
	}

	entries, _ := os.ReadDir(store.uploadDir)
	if len(entries) != 1 {
		t.Errorf("Expected oversized file to be removed, found %d files", len(entries))
	}
}

func TestResolveContentType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		body     []byte
		want     string
	}{
		{name: "declared wins", declared: "image/jpeg", body: []byte("anything"), want: "image/jpeg"},
		{name: "parameters stripped", declared: "text/plain; charset=utf-8", body: nil, want: "text/plain"},
		{name: "octet-stream sniffed", declared: "application/octet-stream", body: pngHeader, want: "image/png"},
		{name: "empty sniffed pdf", declared: "", body: []byte("%PDF-1.7\n"), want: "application/pdf"},
		{name: "empty sniffed text", declared: "", body: []byte("plain words"), want: "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReaderSize(bytes.NewReader(tt.body), 512)
			if got := ResolveContentType(tt.declared, br); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}
