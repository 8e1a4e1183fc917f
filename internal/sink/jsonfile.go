package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gastos/internal/core"
)

// JSONFile keeps every document in one JSON array on disk, ordered by date
// then id. It is meant for local inspection, not for concurrent processes.
type JSONFile struct {
	mu       sync.Mutex
	filename string
}

var _ Sink = (*JSONFile)(nil)

func NewJSONFile(filename string) *JSONFile {
	return &JSONFile{filename: filename}
}

func (f *JSONFile) Name() string { return "jsonfile:" + f.filename }

func (f *JSONFile) Upsert(_ context.Context, txns []core.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, err := f.load()
	if err != nil {
		return err
	}
	for _, t := range txns {
		docs[t.ID] = NewDocument(t)
	}
	return f.save(docs)
}

func (f *JSONFile) Remove(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, err := f.load()
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(docs, id)
	}
	return f.save(docs)
}

// Documents returns the file contents in write order.
func (f *JSONFile) Documents() ([]Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, err := f.load()
	if err != nil {
		return nil, err
	}
	return ordered(docs), nil
}

func (f *JSONFile) load() (map[string]Document, error) {
	docs := map[string]Document{}
	data, err := os.ReadFile(f.filename)
	if errors.Is(err, os.ErrNotExist) {
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.filename, err)
	}
	var list []Document
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.filename, err)
	}
	for _, d := range list {
		docs[d.ID] = d
	}
	return docs, nil
}

func ordered(docs map[string]Document) []Document {
	list := make([]Document, 0, len(docs))
	for _, d := range docs {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		return list[i].ID < list[j].ID
	})
	return list
}

// save writes to a temporary file first so readers never see a torn file.
func (f *JSONFile) save(docs map[string]Document) error {
	data, err := json.MarshalIndent(ordered(docs), "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".gastos-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.filename)
}
