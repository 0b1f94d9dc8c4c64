package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/pfrederiksen/course-catalog/internal/course"
)

// Storage handles persistence of extracted course lists
type Storage struct {
	dataDir string
}

// New creates a new Storage instance
func New(dataDir string) (*Storage, error) {
	if dataDir == "" {
		dataDir = "."
	}

	// Expand ~ to home directory
	if strings.HasPrefix(dataDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, dataDir[2:])
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	return &Storage{
		dataDir: dataDir,
	}, nil
}

// Path returns the location of the named output file. Absolute names are
// returned unchanged.
func (s *Storage) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.dataDir, name)
}

// WriteCourses atomically replaces the named file with records encoded as a
// JSON array. A nil or empty slice is written as [].
func (s *Storage) WriteCourses(name string, records []*course.Record) error {
	if records == nil {
		records = make([]*course.Record, 0)
	}

	data, err := Encode(records)
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(s.Path(name), data, 0644); err != nil {
		return fmt.Errorf("writing courses: %w", err)
	}

	return nil
}

// Encode renders records the way WriteCourses stores them.
func Encode(records []*course.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encoding courses: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadCourses loads a file previously written by WriteCourses. A missing
// file yields an empty list.
func (s *Storage) ReadCourses(name string) ([]*course.Record, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return make([]*course.Record, 0), nil
		}
		return nil, fmt.Errorf("reading courses: %w", err)
	}

	var records []*course.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing courses: %w", err)
	}
	if records == nil {
		records = make([]*course.Record, 0)
	}

	return records, nil
}

// DiffResult lists course ids that appeared or disappeared between two runs
type DiffResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Diff compares the current records against a previous run by course id
func Diff(previous, current []*course.Record) *DiffResult {
	result := &DiffResult{
		Added:   make([]string, 0),
		Removed: make([]string, 0),
	}

	before := make(map[string]bool, len(previous))
	for _, rec := range previous {
		before[rec.ID] = true
	}
	after := make(map[string]bool, len(current))
	for _, rec := range current {
		if !before[rec.ID] && !after[rec.ID] {
			result.Added = append(result.Added, rec.ID)
		}
		after[rec.ID] = true
	}
	for id := range before {
		if !after[id] {
			result.Removed = append(result.Removed, id)
		}
	}

	sort.Strings(result.Added)
	sort.Strings(result.Removed)

	return result
}
