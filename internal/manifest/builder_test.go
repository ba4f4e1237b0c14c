package manifest

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/pack"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeModJar(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(content))
	}
	zw.Close()
	writeFile(t, path, buf.String())
}

func newFixture(t *testing.T) (*pack.Store, string) {
	t.Helper()
	store, err := pack.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(store.Root(), "testpack")
	writeFile(t, filepath.Join(dir, "config", "common.toml"), "a = 1\n")
	writeFile(t, filepath.Join(dir, "options.txt"), "render_distance:8\n")
	writeModJar(t, filepath.Join(dir, "mods", "alpha.jar"), map[string]string{
		"fabric.mod.json": `{"id":"alpha","version":"1.0","name":"Alpha"}`,
	})
	return store, dir
}

func build(t *testing.T, store *pack.Store, id string) *Manifest {
	t.Helper()
	m, err := NewBuilder(store, 4, 2).Build(context.Background(), id)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return m
}

func TestBuildHashesMatchDisk(t *testing.T) {
	store, dir := newFixture(t)
	m := build(t, store, "testpack")

	if len(m.Files) != 3 {
		t.Fatalf("got %d files, want 3: %+v", len(m.Files), m.Files)
	}
	for _, f := range m.Files {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if err != nil {
			t.Fatalf("read %s: %v", f.Path, err)
		}
		sum := sha256.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != f.Hash {
			t.Errorf("%s: manifest hash %s, disk hash %s", f.Path, f.Hash, got)
		}
		if f.Size != int64(len(data)) {
			t.Errorf("%s: size %d, want %d", f.Path, f.Size, len(data))
		}
	}
}

func TestBuildExclusions(t *testing.T) {
	store, dir := newFixture(t)
	writeFile(t, filepath.Join(dir, pack.MetadataFileName), `{"displayName":"x"}`)
	writeFile(t, filepath.Join(dir, ".DS_Store"), "junk")
	writeFile(t, filepath.Join(dir, "Thumbs.db"), "junk")
	writeFile(t, filepath.Join(dir, ".git", "HEAD"), "ref")
	writeFile(t, filepath.Join(dir, "config", ".hidden"), "x")
	if runtime.GOOS != "windows" {
		outside := filepath.Join(t.TempDir(), "real.txt")
		writeFile(t, outside, "outside")
		if err := os.Symlink(outside, filepath.Join(dir, "link.txt")); err != nil {
			t.Fatal(err)
		}
	}

	m := build(t, store, "testpack")
	for _, f := range m.Files {
		switch f.Path {
		case pack.MetadataFileName, ".DS_Store", "Thumbs.db", "link.txt":
			t.Errorf("excluded file %s present in manifest", f.Path)
		}
		if filepath.Base(f.Path)[0] == '.' {
			t.Errorf("dot file %s present in manifest", f.Path)
		}
	}
	if len(m.Files) != 3 {
		t.Errorf("got %d files, want 3", len(m.Files))
	}
}

func TestBuildSortedCaseInsensitive(t *testing.T) {
	store, dir := newFixture(t)
	writeFile(t, filepath.Join(dir, "Aconfig.txt"), "x")
	writeFile(t, filepath.Join(dir, "zconfig.txt"), "x")

	m := build(t, store, "testpack")
	paths := make([]string, len(m.Files))
	for i, f := range m.Files {
		paths[i] = f.Path
	}
	sorted := sort.SliceIsSorted(m.Files, func(i, j int) bool {
		return lowerLess(m.Files[i].Path, m.Files[j].Path)
	})
	if !sorted {
		t.Errorf("files not sorted case-insensitively: %v", paths)
	}
}

func lowerLess(a, b string) bool {
	la, lb := toLower(a), toLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

func toLower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func TestBuildExtractsModMetadata(t *testing.T) {
	store, dir := newFixture(t)
	writeModJar(t, filepath.Join(dir, "mods", "beta.jar"), map[string]string{
		"META-INF/mods.toml": "[[mods]]\nmodId = \"beta\"\nversion = \"2.0\"\n",
	})
	// Archives outside mods/ are not scanned.
	writeModJar(t, filepath.Join(dir, "resourcepacks", "rp.zip"), map[string]string{
		"fabric.mod.json": `{"id":"nope","version":"0"}`,
	})

	m := build(t, store, "testpack")
	if len(m.Mods) != 2 {
		t.Fatalf("got %d mods, want 2: %+v", len(m.Mods), m.Mods)
	}
	if m.Mods[0].ID != "alpha" || m.Mods[0].Path != "mods/alpha.jar" {
		t.Errorf("mods[0] = %+v", m.Mods[0])
	}
	if m.Mods[1].ID != "beta" || m.Mods[1].Version != "2.0" {
		t.Errorf("mods[1] = %+v", m.Mods[1])
	}
}

func TestBuildUsesSidecarMetadata(t *testing.T) {
	store, dir := newFixture(t)
	if err := pack.WriteMetadata(dir, pack.Metadata{
		DisplayName: "Test Pack",
		GameVersion: "1.20.1",
		Loader:      "fabric",
	}); err != nil {
		t.Fatal(err)
	}

	m := build(t, store, "testpack")
	if m.DisplayName != "Test Pack" || m.GameVersion != "1.20.1" || m.Loader != "fabric" {
		t.Errorf("metadata not applied: %+v", m)
	}
	if m.Version != VersionLatest {
		t.Errorf("version = %q, want %q", m.Version, VersionLatest)
	}
}

func TestBuildDefaultsDisplayNameToID(t *testing.T) {
	store, _ := newFixture(t)
	m := build(t, store, "testpack")
	if m.DisplayName != "testpack" {
		t.Errorf("display name = %q, want pack id", m.DisplayName)
	}
}

func TestBuildUnknownPack(t *testing.T) {
	store, _ := newFixture(t)
	if _, err := NewBuilder(store, 1, 1).Build(context.Background(), "missing"); err == nil {
		t.Error("expected error for unknown pack")
	}
}
