// Package manifest builds and caches pack manifests: the verified inventory
// of a pack's files plus metadata extracted from bundled mods.
package manifest

import (
	"time"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/modmeta"
)

// VersionLatest is the only version label served; packs have no history.
const VersionLatest = "latest"

// FileEntry is one file in a pack: forward-slash relative path, sha256
// content hash (lowercase hex) and size in bytes.
type FileEntry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Manifest is the inventory of a pack at one point in time. It is immutable
// once built; a rebuild produces a new value.
type Manifest struct {
	PackID        string               `json:"packId"`
	Version       string               `json:"version"`
	DisplayName   string               `json:"displayName"`
	GameVersion   string               `json:"gameVersion,omitempty"`
	Loader        string               `json:"loader,omitempty"`
	LoaderVersion string               `json:"loaderVersion,omitempty"`
	Channel       string               `json:"channel,omitempty"`
	Description   string               `json:"description,omitempty"`
	Files         []FileEntry          `json:"files"`
	Mods          []modmeta.Descriptor `json:"mods,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}
