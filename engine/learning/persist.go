package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileVersion is the learning file schema written by Save.
const FileVersion = 2

// PersistenceError reports a learning file that could not be written, or
// could not be used and was replaced by defaults.
type PersistenceError struct {
	NPCID string
	Path  string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("learning state for %s (%s): %v", e.NPCID, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrVersionMismatch is wrapped by a PersistenceError when a file carries
// another schema version.
var ErrVersionMismatch = errors.New("unsupported learning file version")

type learningFile struct {
	Version              int                   `json:"version"`
	FeatureSchemaVersion int                   `json:"feature_schema_version,omitempty"`
	NPCID                string                `json:"npc_id"`
	Namespaces           map[Namespace][]Entry `json:"namespaces"`
	Bandit               *BanditSnapshot       `json:"bandit,omitempty"`
}

// legacyFile is the single-namespace layout that predates namespaces.
type legacyFile struct {
	Weights []legacyEntry `json:"weights"`
}

type legacyEntry struct {
	Action       string  `json:"action"`
	ContextKey   string  `json:"context_key"`
	Weight       float64 `json:"weight"`
	SuccessCount int     `json:"success_count"`
	FailureCount int     `json:"failure_count"`
	TotalCount   int     `json:"total_count"`
	LastReward   float64 `json:"last_reward"`
}

// Store reads and writes one learning file per NPC under Dir.
type Store struct {
	Dir string
}

// NewStore creates a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the file used for npcID.
func (s *Store) Path(npcID string) string {
	safe := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			return r
		}
		return '_'
	}, npcID)
	return filepath.Join(s.Dir, safe+"_learning.json")
}

// Save writes a's tables and bandit atomically: a temp file in the same
// directory is renamed over the target.
func (s *Store) Save(npcID string, a *PolicyAdjuster) error {
	path := s.Path(npcID)
	data, err := Marshal(npcID, a)
	if err != nil {
		return &PersistenceError{NPCID: npcID, Path: path, Err: err}
	}
	if err := writeAtomic(path, data); err != nil {
		return &PersistenceError{NPCID: npcID, Path: path, Err: err}
	}
	return nil
}

// Load restores a from disk. A missing file leaves a untouched and is not an
// error. A file that is unreadable or from another version resets a to
// defaults and returns a *PersistenceError describing why.
func (s *Store) Load(npcID string, a *PolicyAdjuster) error {
	path := s.Path(npcID)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err == nil {
		err = Unmarshal(data, a)
	}
	if err != nil {
		a.Reset()
		return &PersistenceError{NPCID: npcID, Path: path, Err: err}
	}
	return nil
}

// Delete removes npcID's file if present.
func (s *Store) Delete(npcID string) error {
	err := os.Remove(s.Path(npcID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Marshal encodes a in the current file layout.
func Marshal(npcID string, a *PolicyAdjuster) ([]byte, error) {
	f := learningFile{
		Version:    FileVersion,
		NPCID:      npcID,
		Namespaces: make(map[Namespace][]Entry, len(Namespaces)),
	}
	for _, ns := range Namespaces {
		f.Namespaces[ns] = a.state.Entries(ns)
	}
	if a.bandit != nil {
		f.FeatureSchemaVersion = FeatureSchemaVersion
		f.Bandit = a.bandit.Snapshot()
	}
	return json.MarshalIndent(f, "", "  ")
}

// Unmarshal replaces a's contents with data. Files without a namespaces key
// are read as legacy files and loaded into the style namespace.
func Unmarshal(data []byte, a *PolicyAdjuster) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if _, ok := probe["namespaces"]; !ok {
		return unmarshalLegacy(data, a)
	}

	var f learningFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}
	if f.Version != FileVersion {
		return fmt.Errorf("%w: %d", ErrVersionMismatch, f.Version)
	}

	a.Reset()
	for _, ns := range Namespaces {
		for _, e := range f.Namespaces[ns] {
			if err := a.state.Put(ns, e); err != nil {
				return err
			}
		}
	}
	if a.bandit != nil && f.FeatureSchemaVersion == FeatureSchemaVersion {
		a.bandit.Restore(f.Bandit)
	}
	return nil
}

func unmarshalLegacy(data []byte, a *PolicyAdjuster) error {
	var f legacyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse legacy: %w", err)
	}
	a.Reset()
	for _, le := range f.Weights {
		e := Entry{
			ContextKey: le.ContextKey,
			Key:        le.Action,
			Weight:     le.Weight,
			Success:    le.SuccessCount,
			Failure:    le.FailureCount,
			Total:      le.TotalCount,
			LastReward: le.LastReward,
		}
		if err := a.state.Put(NamespaceStyle, e); err != nil {
			return err
		}
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".learning-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
