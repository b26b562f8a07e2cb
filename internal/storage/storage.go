package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/nelcapetown/audible-scraper/internal/models"
)

// RecordStore persists the record list as one JSON array.
type RecordStore struct {
	mu       sync.RWMutex
	filename string
}

func NewRecordStore(filename string) *RecordStore {
	return &RecordStore{filename: filename}
}

func (s *RecordStore) Path() string {
	return s.filename
}

// Save replaces the file with records, in order, indented by two spaces.
func (s *RecordStore) Save(records []models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if records == nil {
		records = []models.Record{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode records: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filename), 0o755); err != nil {
		return fmt.Errorf("create record folder: %w", err)
	}

	// Write to temp file first for atomicity
	tmpFile := s.filename + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write records: %w", err)
	}

	if err := os.Rename(tmpFile, s.filename); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("replace record file: %w", err)
	}
	return nil
}

// Load reads the file back. A missing file yields an error wrapping
// os.ErrNotExist.
func (s *RecordStore) Load() ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.filename)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records %s: %w", s.filename, err)
	}
	return records, nil
}
