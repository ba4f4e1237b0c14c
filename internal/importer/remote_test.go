package importer

import (
	"context"
	"crypto/sha1"
	"crypto/sha512"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func sha1Hex(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func sha512Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func serveBytes(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFileDownloadsAndVerifies(t *testing.T) {
	imp, _ := newImporter(t)
	dest := t.TempDir()
	content := []byte("jar bytes")
	srv := serveBytes(t, content)

	got, err := imp.fetchFile(context.Background(), dest, RemoteFile{
		Path: "mods/remote.jar",
		URLs: []string{srv.URL},
		SHA1: sha1Hex(content),
	})
	if err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	if got != outcomeDownloaded {
		t.Errorf("outcome = %v, want downloaded", got)
	}
	data, err := os.ReadFile(filepath.Join(dest, "mods", "remote.jar"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(content) {
		t.Errorf("file content = %q", data)
	}
}

func TestFetchFilePrefersSHA512(t *testing.T) {
	imp, _ := newImporter(t)
	dest := t.TempDir()
	content := []byte("data")
	srv := serveBytes(t, content)

	// A bogus sha1 must not matter when a valid sha512 is present.
	_, err := imp.fetchFile(context.Background(), dest, RemoteFile{
		Path:   "f.bin",
		URLs:   []string{srv.URL},
		SHA1:   "0000",
		SHA512: sha512Hex(content),
	})
	if err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
}

func TestFetchFileMirrorFailover(t *testing.T) {
	imp, _ := newImporter(t)
	dest := t.TempDir()
	content := []byte("mirrored")

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(bad.Close)
	good := serveBytes(t, content)

	got, err := imp.fetchFile(context.Background(), dest, RemoteFile{
		Path: "f.bin",
		URLs: []string{bad.URL, good.URL},
		SHA1: sha1Hex(content),
	})
	if err != nil {
		t.Fatalf("fetchFile: %v", err)
	}
	if got != outcomeDownloaded {
		t.Errorf("outcome = %v, want downloaded", got)
	}
}

func TestFetchFileHashMismatch(t *testing.T) {
	imp, _ := newImporter(t)
	dest := t.TempDir()
	srv := serveBytes(t, []byte("tampered"))

	_, err := imp.fetchFile(context.Background(), dest, RemoteFile{
		Path: "f.bin",
		URLs: []string{srv.URL},
		SHA1: sha1Hex([]byte("expected")),
	})
	if err == nil {
		t.Fatal("expected hash mismatch error")
	}
	if _, statErr := os.Stat(filepath.Join(dest, "f.bin")); !os.IsNotExist(statErr) {
		t.Error("mismatched download must not land in the pack")
	}
	// No stray temp files either.
	entries, _ := os.ReadDir(dest)
	if len(entries) != 0 {
		t.Errorf("leftover files after failed download: %v", entries)
	}
}

func TestFetchFileServerUnsupportedSkipped(t *testing.T) {
	imp, _ := newImporter(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("client-only file must not be fetched")
	}))
	t.Cleanup(srv.Close)

	got, err := imp.fetchFile(context.Background(), t.TempDir(), RemoteFile{
		Path:              "shaders/pretty.zip",
		URLs:              []string{srv.URL},
		ServerUnsupported: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != outcomeSkipped {
		t.Errorf("outcome = %v, want skipped", got)
	}
}

func TestFetchFileExistingMatchSkipped(t *testing.T) {
	imp, _ := newImporter(t)
	dest := t.TempDir()
	content := []byte("already here")
	if err := os.WriteFile(filepath.Join(dest, "f.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("up-to-date file must not be re-fetched")
	}))
	t.Cleanup(srv.Close)

	got, err := imp.fetchFile(context.Background(), dest, RemoteFile{
		Path: "f.bin",
		URLs: []string{srv.URL},
		SHA1: sha1Hex(content),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got != outcomeSkipped {
		t.Errorf("outcome = %v, want skipped", got)
	}
}

func TestFetchFileUnsafePath(t *testing.T) {
	imp, _ := newImporter(t)
	if _, err := imp.fetchFile(context.Background(), t.TempDir(), RemoteFile{
		Path: "../outside.bin",
		URLs: []string{"http://example.invalid/f"},
	}); err == nil {
		t.Fatal("expected error for traversing remote path")
	}
}

func TestResolveRemoteAggregates(t *testing.T) {
	imp, _ := newImporter(t)
	dest := t.TempDir()
	content := []byte("ok")
	good := serveBytes(t, content)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(bad.Close)

	res := &Result{}
	imp.resolveRemote(context.Background(), dest, []RemoteFile{
		{Path: "good.bin", URLs: []string{good.URL}, SHA1: sha1Hex(content)},
		{Path: "bad.bin", URLs: []string{bad.URL}, SHA1: sha1Hex(content)},
		{Path: "client.bin", URLs: []string{good.URL}, ServerUnsupported: true},
	}, 4, res)

	if res.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", res.Resolved)
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", res.Skipped)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "bad.bin" {
		t.Errorf("failed = %v, want [bad.bin]", res.Failed)
	}
}
