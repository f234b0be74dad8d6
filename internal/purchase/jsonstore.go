package purchase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store defines the interface for ledger persistence. The ledger is read in
// full at startup and rewritten in full on every successful add.
type Store interface {
	// Load returns all persisted purchases in insertion order
	Load() ([]*Purchase, error)

	// Save persists the full purchase sequence
	Save(purchases []*Purchase) error

	// Close closes the store
	Close() error
}

// jsonDocument is the on-disk shape: a single document with one top-level
// key holding the ordered purchase array
type jsonDocument struct {
	Purchases []*Purchase `json:"purchases"`
}

// JSONStore implements Store as a single JSON file
type JSONStore struct {
	path string
}

// NewJSONStore creates a JSONStore at path. The file is created lazily on
// the first save; its absence means an empty ledger.
func NewJSONStore(path string) (*JSONStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &JSONStore{path: path}, nil
}

// Load reads the full document, treating a missing file as empty
func (s *JSONStore) Load() ([]*Purchase, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Purchase{}, nil
		}
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling ledger file: %w", err)
	}
	if doc.Purchases == nil {
		doc.Purchases = []*Purchase{}
	}
	return doc.Purchases, nil
}

// Save rewrites the full document
func (s *JSONStore) Save(purchases []*Purchase) error {
	data, err := json.MarshalIndent(jsonDocument{Purchases: purchases}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling ledger: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing ledger file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open between operations
func (s *JSONStore) Close() error {
	return nil
}
