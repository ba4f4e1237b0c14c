// Package pack manages the on-disk pack trees: pack ids, root directories,
// sidecar metadata and safe path resolution for file serving.
package pack

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MetadataFileName is the sidecar metadata file stored in each pack root.
const MetadataFileName = "packinfo.json"

var (
	// ErrNotFound is returned when a pack id has no directory under the root.
	ErrNotFound = errors.New("pack not found")
	// ErrUnsafePath is returned when a requested path would escape its pack
	// directory.
	ErrUnsafePath = errors.New("path escapes pack directory")
)

// Metadata is the sidecar record persisted alongside a pack's content tree.
// All fields are optional; a missing sidecar reads as the zero value.
type Metadata struct {
	DisplayName   string `json:"displayName,omitempty"`
	GameVersion   string `json:"gameVersion,omitempty"`
	Loader        string `json:"loader,omitempty"`
	LoaderVersion string `json:"loaderVersion,omitempty"`
	Channel       string `json:"channel,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Store provides access to the packs under a single root directory.
type Store struct {
	root string
}

// NewStore creates a Store rooted at rootDir, creating it if needed.
func NewStore(rootDir string) (*Store, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute pack root directory.
func (s *Store) Root() string { return s.root }

// List returns the ids of all packs, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read pack root: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// Dir returns the absolute directory of a pack, or ErrNotFound.
func (s *Store) Dir(id string) (string, error) {
	dir, err := s.join(id)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return dir, nil
}

// SafeJoin resolves a relative file path inside a pack to an absolute path,
// verifying it cannot escape the pack directory.
func (s *Store) SafeJoin(id, rel string) (string, error) {
	dir, err := s.Dir(id)
	if err != nil {
		return "", err
	}
	rel = filepath.FromSlash(rel)
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	abs := filepath.Join(dir, rel)
	if !within(dir, abs) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	return abs, nil
}

// Resolve returns the directory a pack id maps to without requiring it to
// exist, refusing ids that would land outside the root.
func (s *Store) Resolve(id string) (string, error) {
	return s.join(id)
}

// join resolves the pack directory for an id without requiring it to exist,
// still refusing ids that would land outside the root.
func (s *Store) join(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	abs := filepath.Join(s.root, id)
	if !within(s.root, abs) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, id)
	}
	return abs, nil
}

// within reports whether path is strictly inside dir (or equal to it).
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ReadMetadata loads the sidecar record from a pack directory. A missing
// file is not an error and yields the zero value.
func ReadMetadata(dir string) (Metadata, error) {
	var md Metadata
	data, err := os.ReadFile(filepath.Join(dir, MetadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return md, nil
		}
		return md, fmt.Errorf("read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &md); err != nil {
		return Metadata{}, fmt.Errorf("decode sidecar: %w", err)
	}
	return md, nil
}

// WriteMetadata persists the sidecar record into a pack directory.
func WriteMetadata(dir string, md Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	tmp := filepath.Join(dir, MetadataFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, MetadataFileName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace sidecar: %w", err)
	}
	return nil
}
