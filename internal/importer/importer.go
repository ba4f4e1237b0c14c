// Package importer turns uploaded pack archives into normalized content
// trees under the pack root, plus sidecar identity metadata.
package importer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/logging"
	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/pack"
)

var (
	// ErrUnsupportedArchive is returned for unknown archive extensions.
	ErrUnsupportedArchive = errors.New("unsupported archive type")
	// ErrEmptyArchive is returned when the archive has no entries at all.
	ErrEmptyArchive = errors.New("archive contains no entries")
)

// Options control one import operation.
type Options struct {
	// ID overrides the pack id inferred from the archive.
	ID string
	// Version overrides the inferred version. Advisory only: packs carry a
	// single "latest" snapshot.
	Version string
	// Overwrite removes an existing pack directory before extraction;
	// otherwise the archive is merged into the existing tree.
	Overwrite bool
	// ResolveRemote downloads externally hosted files listed by a package
	// index descriptor.
	ResolveRemote bool
	// Workers bounds remote download concurrency; clamped to [2,8].
	Workers int
}

// Result summarizes a completed import.
type Result struct {
	PackID    string
	Version   string
	Extracted int
	Resolved  int
	Skipped   int
	Failed    []string
	Warnings  []string
}

// Importer imports archives into a pack store.
type Importer struct {
	store  *pack.Store
	client *retryablehttp.Client
}

// New creates an Importer. The HTTP client retries each mirror URL up to
// three times with increasing delay.
func New(store *pack.Store) *Importer {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = nil
	return &Importer{store: store, client: client}
}

// Import validates the archive, infers pack identity, extracts its content
// and optionally resolves remote files. Per-entry faults are collected as
// warnings; only structural problems are fatal.
func (imp *Importer) Import(ctx context.Context, archivePath string, opts Options) (*Result, error) {
	switch strings.ToLower(filepath.Ext(archivePath)) {
	case ".zip", ".mrpack":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedArchive, filepath.Ext(archivePath))
	}

	zr, err := zip.OpenReader(archivePath)
	// Entries with non-local names are validated and rejected one by one
	// below, so the archive as a whole is still usable.
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()
	if len(zr.File) == 0 {
		return nil, ErrEmptyArchive
	}

	desc, ok := probeDescriptor(&zr.Reader)
	if !ok {
		desc = fromFileName(filepath.Base(archivePath))
	}

	id := opts.ID
	if id == "" {
		id = desc.Name
	}
	version := opts.Version
	if version == "" {
		version = desc.Version
	}
	id = pack.SanitizeID(id)
	version = pack.SanitizeVersion(version)

	dest, err := imp.store.Resolve(id)
	if err != nil {
		return nil, err
	}

	if opts.Overwrite {
		if err := os.RemoveAll(dest); err != nil {
			return nil, fmt.Errorf("clear existing pack: %w", err)
		}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("create pack directory: %w", err)
	}

	res := &Result{PackID: id, Version: version}

	imp.extract(ctx, &zr.Reader, dest, desc, res)

	if opts.ResolveRemote && len(desc.RemoteFiles) > 0 {
		imp.resolveRemote(ctx, dest, desc.RemoteFiles, opts.Workers, res)
	}

	if res.Extracted == 0 && res.Resolved == 0 {
		warn(res, "archive produced no content files")
	}

	md := metadataFromDescriptor(id, desc)
	if err := pack.WriteMetadata(dest, md); err != nil {
		warn(res, fmt.Sprintf("sidecar write failed: %v", err))
	}

	logging.Info("pack imported",
		zap.String("pack", id),
		zap.String("version", version),
		zap.Int("extracted", res.Extracted),
		zap.Int("resolved", res.Resolved),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// metadataFromDescriptor builds the sidecar record from a base descriptor,
// defaulting the display name to the pack id.
func metadataFromDescriptor(id string, desc Descriptor) pack.Metadata {
	md := pack.Metadata{
		DisplayName:   desc.Name,
		GameVersion:   desc.GameVersion,
		Loader:        desc.Loader,
		LoaderVersion: desc.LoaderVersion,
		Description:   desc.Description,
	}
	if md.DisplayName == "" {
		md.DisplayName = id
	}
	return md
}

// extract writes the archive's in-scope entries under dest. Individual
// entry failures are logged and recorded, never fatal.
func (imp *Importer) extract(ctx context.Context, zr *zip.Reader, dest string, desc Descriptor, res *Result) {
	strip := strippers(zr, desc)
	for _, f := range zr.File {
		if ctx.Err() != nil {
			warn(res, "extraction cancelled")
			return
		}
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		rel, ok := strip(f.Name)
		if !ok {
			continue
		}
		if !safeRelPath(rel) {
			warn(res, fmt.Sprintf("rejected unsafe entry %q", f.Name))
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		if !within(dest, target) {
			warn(res, fmt.Sprintf("rejected escaping entry %q", f.Name))
			continue
		}
		if err := writeEntry(f, target); err != nil {
			warn(res, fmt.Sprintf("extract %q: %v", f.Name, err))
			continue
		}
		res.Extracted++
	}
}

// strippers selects the extraction scope: overrides-subtree re-rooting when
// the descriptor names one, otherwise common wrapper-prefix stripping.
func strippers(zr *zip.Reader, desc Descriptor) func(string) (string, bool) {
	if desc.OverridesDir != "" {
		overrides := desc.OverridesDir
		return func(name string) (string, bool) {
			segs := splitEntry(name)
			for i, s := range segs {
				if strings.EqualFold(s, overrides) && i < len(segs)-1 {
					return strings.Join(segs[i+1:], "/"), true
				}
			}
			return "", false
		}
	}

	prefix := commonPrefix(zr)
	return func(name string) (string, bool) {
		segs := splitEntry(name)
		if len(segs) <= len(prefix) {
			return "", false
		}
		return strings.Join(segs[len(prefix):], "/"), true
	}
}

func splitEntry(name string) []string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.Split(strings.Trim(name, "/"), "/")
}

// commonPrefix computes the longest path-segment prefix shared by every
// file entry, which strips a single wrapping top-level folder.
func commonPrefix(zr *zip.Reader) []string {
	var prefix []string
	first := true
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		segs := splitEntry(f.Name)
		dir := segs[:len(segs)-1]
		// Traversal segments never count as a strippable wrapper.
		for i, s := range dir {
			if s == ".." || s == "." {
				dir = dir[:i]
				break
			}
		}
		if first {
			prefix = append([]string(nil), dir...)
			first = false
			continue
		}
		n := 0
		for n < len(prefix) && n < len(dir) && prefix[n] == dir[n] {
			n++
		}
		prefix = prefix[:n]
		if len(prefix) == 0 {
			break
		}
	}
	return prefix
}

// safeRelPath rejects empty, absolute and parent-traversing paths.
func safeRelPath(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." || seg == "" {
			return false
		}
	}
	return true
}

// within reports whether path stays inside dir, by absolute prefix.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func writeEntry(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(target)
		return err
	}
	return out.Close()
}

func warn(res *Result, msg string) {
	logging.Warn(msg)
	res.Warnings = append(res.Warnings, msg)
}
