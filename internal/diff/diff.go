// Package diff computes the operations a client must apply to converge its
// local file tree with a server manifest.
package diff

import (
	"sort"
	"strings"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/manifest"
)

// Kind classifies a sync operation.
type Kind string

const (
	Add    Kind = "add"
	Update Kind = "update"
	Delete Kind = "delete"
)

// FileState is one client-reported file. A missing hash means the file
// must be treated as changed; clients omit hashes to force verification.
type FileState struct {
	Path string `json:"path"`
	Hash string `json:"hash,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Operation is one step of a sync plan.
type Operation struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	Hash string `json:"hash,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Compute compares the manifest's file list against the client state and
// returns the operations needed to converge. Paths are compared
// case-insensitively. Adds and updates come first, deletes last, each group
// ordered by path.
func Compute(m *manifest.Manifest, client []FileState) []Operation {
	clientByPath := make(map[string]FileState, len(client))
	for _, st := range client {
		clientByPath[strings.ToLower(st.Path)] = st
	}

	serverPaths := make(map[string]struct{}, len(m.Files))
	var ops []Operation
	for _, f := range m.Files {
		key := strings.ToLower(f.Path)
		serverPaths[key] = struct{}{}
		st, ok := clientByPath[key]
		switch {
		case !ok:
			ops = append(ops, Operation{Path: f.Path, Kind: Add, Hash: f.Hash, Size: f.Size})
		case !strings.EqualFold(st.Hash, f.Hash):
			ops = append(ops, Operation{Path: f.Path, Kind: Update, Hash: f.Hash, Size: f.Size})
		}
	}

	var deletes []Operation
	for _, st := range client {
		if _, ok := serverPaths[strings.ToLower(st.Path)]; !ok {
			deletes = append(deletes, Operation{Path: st.Path, Kind: Delete})
		}
	}
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].Path < deletes[j].Path })

	return append(ops, deletes...)
}
