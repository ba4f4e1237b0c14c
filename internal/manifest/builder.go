package manifest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/metrics"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/modmeta"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/pack"
)

// ModsDir is the conventional subdirectory scanned for mod archives.
const ModsDir = "mods"

// junkNames are OS metadata files that never belong in a manifest.
var junkNames = map[string]struct{}{
	".DS_Store":   {},
	"Thumbs.db":   {},
	"desktop.ini": {},
}

// Builder produces manifests from pack content trees.
type Builder struct {
	store          *pack.Store
	hashWorkers    int
	extractWorkers int
}

// NewBuilder creates a Builder. Worker counts below one fall back to
// modest fixed defaults.
func NewBuilder(store *pack.Store, hashWorkers, extractWorkers int) *Builder {
	if hashWorkers < 1 {
		hashWorkers = 4
	}
	if extractWorkers < 1 {
		extractWorkers = 2
	}
	return &Builder{store: store, hashWorkers: hashWorkers, extractWorkers: extractWorkers}
}

// Build walks the pack's tree, hashes every eligible file and extracts mod
// metadata, returning a fresh Manifest.
func (b *Builder) Build(ctx context.Context, id string) (*Manifest, error) {
	start := time.Now()
	m, err := b.build(ctx, id)
	if err != nil {
		metrics.RecordManifestBuild("error", time.Since(start))
		return nil, err
	}
	metrics.RecordManifestBuild("ok", time.Since(start))
	metrics.SetManifestFiles(id, len(m.Files))
	return m, nil
}

func (b *Builder) build(ctx context.Context, id string) (*Manifest, error) {
	dir, err := b.store.Dir(id)
	if err != nil {
		return nil, err
	}

	paths, err := collectFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", id, err)
	}

	files, err := b.hashFiles(ctx, dir, paths)
	if err != nil {
		return nil, err
	}

	mods, err := b.extractMods(ctx, dir, paths)
	if err != nil {
		return nil, err
	}

	md, err := pack.ReadMetadata(dir)
	if err != nil {
		logging.Warn("unreadable pack sidecar", zap.String("pack", id), zap.Error(err))
		md = pack.Metadata{}
	}
	displayName := md.DisplayName
	if displayName == "" {
		displayName = id
	}

	sortByPath(files, func(f FileEntry) string { return f.Path })
	sortByPath(mods, func(d modmeta.Descriptor) string { return d.Path })

	return &Manifest{
		PackID:        id,
		Version:       VersionLatest,
		DisplayName:   displayName,
		GameVersion:   md.GameVersion,
		Loader:        md.Loader,
		LoaderVersion: md.LoaderVersion,
		Channel:       md.Channel,
		Description:   md.Description,
		Files:         files,
		Mods:          mods,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// collectFiles enumerates the relative (slash-separated) paths of all
// manifest-eligible regular files under dir.
func collectFiles(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == pack.MetadataFileName {
			return nil
		}
		if _, junk := junkNames[name]; junk {
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if underSymlink(dir, filepath.Dir(path)) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	return paths, err
}

// underSymlink walks from parent up to root checking for a symlinked
// ancestor directory. WalkDir does not follow directory symlinks, but a
// symlink placed at the root itself would otherwise slip through.
func underSymlink(root, parent string) bool {
	for parent != root && len(parent) > len(root) {
		if info, err := os.Lstat(parent); err == nil && info.Mode()&os.ModeSymlink != 0 {
			return true
		}
		parent = filepath.Dir(parent)
	}
	return false
}

// hashFiles hashes all paths with bounded concurrency. Unreadable files are
// skipped, never fatal.
func (b *Builder) hashFiles(ctx context.Context, dir string, paths []string) ([]FileEntry, error) {
	results := make([]*FileEntry, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.hashWorkers)
	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entry, err := hashFile(dir, rel)
			if err != nil {
				logging.Debug("skipping unreadable file", zap.String("path", rel), zap.Error(err))
				return nil
			}
			results[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	files := make([]FileEntry, 0, len(paths))
	for _, e := range results {
		if e != nil {
			files = append(files, *e)
		}
	}
	return files, nil
}

func hashFile(dir, rel string) (*FileEntry, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, err
	}
	return &FileEntry{
		Path: rel,
		Hash: hex.EncodeToString(h.Sum(nil)),
		Size: size,
	}, nil
}

// extractMods runs the metadata extractor over mod archives under mods/
// with its own bounded concurrency.
func (b *Builder) extractMods(ctx context.Context, dir string, paths []string) ([]modmeta.Descriptor, error) {
	var (
		mu   sync.Mutex
		mods []modmeta.Descriptor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.extractWorkers)
	for _, rel := range paths {
		if !isModArchive(rel) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, ok := modmeta.Extract(filepath.Join(dir, filepath.FromSlash(rel)))
			if !ok {
				return nil
			}
			d.Path = rel
			mu.Lock()
			mods = append(mods, d)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return mods, nil
}

func isModArchive(rel string) bool {
	if !strings.HasPrefix(rel, ModsDir+"/") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(rel))
	return ext == ".jar" || ext == ".zip"
}

// sortByPath orders entries case-insensitively by path, falling back to a
// case-sensitive comparison for determinism.
func sortByPath[T any](items []T, key func(T) string) {
	sort.Slice(items, func(i, j int) bool {
		a, b := key(items[i]), key(items[j])
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
}
