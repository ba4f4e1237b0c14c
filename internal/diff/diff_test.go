package diff

import (
	"testing"

	"github.com/Shiroiame-Kusu/ModPackUpdater/internal/manifest"
)

func testManifest() *manifest.Manifest {
	return &manifest.Manifest{
		PackID:  "p",
		Version: manifest.VersionLatest,
		Files: []manifest.FileEntry{
			{Path: "config/common.toml", Hash: "aaa", Size: 10},
			{Path: "mods/alpha.jar", Hash: "bbb", Size: 20},
			{Path: "mods/beta.jar", Hash: "ccc", Size: 30},
		},
	}
}

func stateOf(m *manifest.Manifest) []FileState {
	var out []FileState
	for _, f := range m.Files {
		out = append(out, FileState{Path: f.Path, Hash: f.Hash, Size: f.Size})
	}
	return out
}

func TestComputeIdempotent(t *testing.T) {
	m := testManifest()
	if ops := Compute(m, stateOf(m)); len(ops) != 0 {
		t.Errorf("diff of identical state = %v, want none", ops)
	}
}

func TestComputeAddUpdateDelete(t *testing.T) {
	m := testManifest()
	client := []FileState{
		{Path: "config/common.toml", Hash: "aaa"}, // unchanged
		{Path: "mods/alpha.jar", Hash: "stale"},   // changed
		{Path: "mods/old.jar", Hash: "zzz"},       // server-side gone
		// mods/beta.jar missing entirely
	}
	ops := Compute(m, client)
	if len(ops) != 3 {
		t.Fatalf("got %d ops: %v", len(ops), ops)
	}

	byPath := map[string]Operation{}
	for _, op := range ops {
		byPath[op.Path] = op
	}
	if op := byPath["mods/beta.jar"]; op.Kind != Add || op.Hash != "ccc" || op.Size != 30 {
		t.Errorf("beta.jar: %+v, want add", op)
	}
	if op := byPath["mods/alpha.jar"]; op.Kind != Update || op.Hash != "bbb" {
		t.Errorf("alpha.jar: %+v, want update", op)
	}
	if op := byPath["mods/old.jar"]; op.Kind != Delete {
		t.Errorf("old.jar: %+v, want delete", op)
	}

	// Deletes come after adds/updates.
	if ops[len(ops)-1].Kind != Delete {
		t.Errorf("last op = %+v, want delete", ops[len(ops)-1])
	}
}

func TestComputeCaseInsensitivePaths(t *testing.T) {
	m := testManifest()
	client := stateOf(m)
	client[0].Path = "CONFIG/Common.TOML"
	if ops := Compute(m, client); len(ops) != 0 {
		t.Errorf("case-differing paths should match, got %v", ops)
	}
}

func TestComputeMissingHashForcesUpdate(t *testing.T) {
	m := testManifest()
	client := stateOf(m)
	client[1].Hash = ""
	ops := Compute(m, client)
	if len(ops) != 1 || ops[0].Kind != Update || ops[0].Path != "mods/alpha.jar" {
		t.Errorf("unknown hash should force exactly one update, got %v", ops)
	}
}

func TestComputeEmptyClient(t *testing.T) {
	m := testManifest()
	ops := Compute(m, nil)
	if len(ops) != len(m.Files) {
		t.Fatalf("got %d ops, want %d adds", len(ops), len(m.Files))
	}
	for _, op := range ops {
		if op.Kind != Add {
			t.Errorf("op %+v, want add", op)
		}
	}
}
