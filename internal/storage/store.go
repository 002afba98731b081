package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/san-kum/chainbench/internal/bench"
)

var (
	ErrResultNotFound  = errors.New("storage: result file not found")
	ErrResultMalformed = errors.New("storage: result file is malformed")
)

// Store keeps benchmark result files in one directory.
type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) Dir() string { return s.baseDir }

// FileName is benchmark_{class}_{name}_{timestamp}.json.
func FileName(meta bench.Metadata) string {
	return fmt.Sprintf("benchmark_%s_%s_%s.json", meta.ProblemClass, meta.Name, meta.Timestamp)
}

// Save writes the report and returns its path.
func (s *Store) Save(rep *bench.Report) (string, error) {
	if err := s.Init(); err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, FileName(rep.Metadata))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return "", err
	}
	return path, nil
}

// Entry describes one stored result file.
type Entry struct {
	Path     string
	Metadata bench.Metadata
	Cells    int
}

// List returns the readable result files, newest first. Files that fail
// to parse are skipped.
func (s *Store) List() ([]Entry, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, err
	}

	out := make([]Entry, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "benchmark_") || filepath.Ext(name) != ".json" {
			continue
		}
		path := filepath.Join(s.baseDir, name)
		rep, err := Load(path)
		if err != nil {
			continue
		}
		cells := 0
		for _, c := range rep.Results {
			cells += len(c)
		}
		out = append(out, Entry{Path: path, Metadata: rep.Metadata, Cells: cells})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metadata.Timestamp > out[j].Metadata.Timestamp
	})
	return out, nil
}

// Load reads a report. Files holding only the results mapping, without
// the metadata envelope, load with empty metadata.
func Load(path string) (*bench.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrResultNotFound, path)
		}
		return nil, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResultMalformed, path, err)
	}

	rep := &bench.Report{}
	if raw, ok := top["results"]; ok {
		if meta, ok := top["metadata"]; ok {
			if err := strict(meta, &rep.Metadata); err != nil {
				return nil, fmt.Errorf("%w: %s: metadata: %v", ErrResultMalformed, path, err)
			}
		}
		if err := strict(raw, &rep.Results); err != nil {
			return nil, fmt.Errorf("%w: %s: results: %v", ErrResultMalformed, path, err)
		}
	} else if err := strict(data, &rep.Results); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrResultMalformed, path, err)
	}
	if rep.Results == nil {
		rep.Results = make(bench.Results)
	}
	return rep, nil
}

func strict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
