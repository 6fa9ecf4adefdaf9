package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/enem-redacao/essay-form/internal/models"
	"github.com/google/uuid"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file exceeds maximum upload size")

// ErrNotFound is returned for unknown file IDs.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for uploaded essay files.
type Store interface {
	Save(name, contentType string, r io.Reader) (*models.FileHandle, error)
	Get(id string) (*models.FileHandle, error)
	Open(id string) (io.ReadCloser, error)
	Delete(id string) error
}

// LocalStore implements Store using the local filesystem.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	maxBytes  int64
	files     map[string]*models.FileHandle
}

// NewLocalStore creates a new LocalStore. maxBytes <= 0 disables the size limit.
func NewLocalStore(uploadDir string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	return &LocalStore{
		uploadDir: uploadDir,
		maxBytes:  maxBytes,
		files:     make(map[string]*models.FileHandle),
	}, nil
}

// DefaultFileName names uploads that arrive without a usable file name.
const DefaultFileName = "upload"

// displayName keeps only the last path element of a client supplied name.
func displayName(name string) string {
	if i := strings.LastIndexByte(name, '\\'); i >= 0 {
		name = name[i+1:]
	}
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == ".." {
		return DefaultFileName
	}
	return base
}

// Save writes r to the upload directory and records its metadata.
func (s *LocalStore) Save(name, contentType string, r io.Reader) (*models.FileHandle, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	br := bufio.NewReaderSize(r, 512)
	contentType = ResolveContentType(contentType, br)

	src := io.Reader(br)
	if s.maxBytes > 0 {
		src = io.LimitReader(br, s.maxBytes+1)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, src)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if s.maxBytes > 0 && size > s.maxBytes {
		os.Remove(path)
		return nil, ErrFileTooLarge
	}

	info := &models.FileHandle{
		ID:          id,
		Name:        displayName(name),
		ContentType: contentType,
		Size:        size,
		UploadedAt:  time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, nil
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileHandle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return info, nil
}

// Open returns a reader over the stored bytes.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	s.mu.RLock()
	_, ok := s.files[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	f, err := os.Open(filepath.Join(s.uploadDir, id))
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return f, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return nil
}

// ResolveContentType returns the declared media type without parameters, or
// sniffs the first bytes of br when nothing useful was declared.
func ResolveContentType(declared string, br *bufio.Reader) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}

	head, _ := br.Peek(512)
	mt, _, err := mime.ParseMediaType(http.DetectContentType(head))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}
