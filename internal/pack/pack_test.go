package pack

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"All the Mods 9", "All the Mods 9"},
		{"my/pack", "my_pack"},
		{`a\b:c*d?e"f<g>h|i`, "a_b_c_d_e_f_g_h_i"},
		{"///", "pack"},
		{"", "pack"},
		{"..", "pack"},
		{"__weird__", "weird"},
		{"a//b", "a_b"},
	}
	for _, tt := range tests {
		if got := SanitizeID(tt.in); got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeVersionDefault(t *testing.T) {
	if got := SanitizeVersion("  "); got != "latest" {
		t.Errorf("SanitizeVersion(blank) = %q, want latest", got)
	}
	if got := SanitizeVersion("1.0.0"); got != "1.0.0" {
		t.Errorf("SanitizeVersion(1.0.0) = %q", got)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStoreListAndDir(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"beta", "alpha", ".hidden"} {
		if err := os.MkdirAll(filepath.Join(s.Root(), id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(s.Root(), "stray.txt"), []byte("x"), 0o644)

	ids, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "alpha" || ids[1] != "beta" {
		t.Errorf("List = %v, want [alpha beta]", ids)
	}

	if _, err := s.Dir("alpha"); err != nil {
		t.Errorf("Dir(alpha): %v", err)
	}
	if _, err := s.Dir("missing"); err == nil {
		t.Error("Dir(missing) should fail")
	}
}

func TestSafeJoinRejectsEscapes(t *testing.T) {
	s := newTestStore(t)
	if err := os.MkdirAll(filepath.Join(s.Root(), "p"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"../other", "../../etc/passwd", "/abs/path", "a/../../b"} {
		if _, err := s.SafeJoin("p", rel); err == nil {
			t.Errorf("SafeJoin(%q) should fail", rel)
		}
	}

	abs, err := s.SafeJoin("p", "mods/some.jar")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	want := filepath.Join(s.Root(), "p", "mods", "some.jar")
	if abs != want {
		t.Errorf("SafeJoin = %q, want %q", abs, want)
	}
}

func TestDirRejectsEscapingID(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Dir("../outside"); err == nil {
		t.Error("Dir with traversal id should fail")
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()

	md, err := ReadMetadata(dir)
	if err != nil {
		t.Fatalf("ReadMetadata(missing): %v", err)
	}
	if md != (Metadata{}) {
		t.Errorf("missing sidecar should read as zero value, got %+v", md)
	}

	want := Metadata{
		DisplayName: "Test Pack",
		GameVersion: "1.20.1",
		Loader:      "forge",
		Channel:     "beta",
	}
	if err := WriteMetadata(dir, want); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	got, err := ReadMetadata(dir)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if got != want {
		t.Errorf("metadata = %+v, want %+v", got, want)
	}
}
