package importer

import (
	"archive/zip"
	"encoding/json"
	"io"
	"strings"
)

// Kind tags which descriptor format identified an uploaded archive.
type Kind int

const (
	// KindFileName means no embedded descriptor was found; identity came
	// from the archive's file name.
	KindFileName Kind = iota
	// KindCurseManifest is a CurseForge-style manifest.json export.
	KindCurseManifest
	// KindModrinthIndex is a Modrinth-style modrinth.index.json (.mrpack).
	KindModrinthIndex
)

// RemoteFile is one externally hosted file listed by a package index.
type RemoteFile struct {
	Path              string
	URLs              []string
	SHA1              string
	SHA512            string
	Size              int64
	ServerUnsupported bool
}

// Descriptor is the identity and content layout information read from an
// uploaded archive, independent of which format provided it.
type Descriptor struct {
	Kind          Kind
	Name          string
	Version       string
	Description   string
	GameVersion   string
	Loader        string
	LoaderVersion string
	// OverridesDir, when set, restricts extraction to entries under that
	// subdirectory (re-rooted). Empty means the whole archive is content.
	OverridesDir string
	RemoteFiles  []RemoteFile
}

// descriptorProbes are tried in order; the first hit wins.
var descriptorProbes = []func(*zip.Reader) (Descriptor, bool){
	probeCurseManifest,
	probeModrinthIndex,
}

// probeDescriptor looks for a recognized descriptor inside the archive.
func probeDescriptor(zr *zip.Reader) (Descriptor, bool) {
	for _, p := range descriptorProbes {
		if d, ok := p(zr); ok {
			return d, true
		}
	}
	return Descriptor{}, false
}

// readRootEntry returns the content of an entry with the given base name at
// the archive root or directly under a single wrapper directory.
func readRootEntry(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		parts := strings.Split(strings.Trim(f.Name, "/"), "/")
		if len(parts) > 2 || parts[len(parts)-1] != name {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil
		}
		data, err := io.ReadAll(io.LimitReader(r, 16<<20))
		r.Close()
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

// probeCurseManifest parses a CurseForge export manifest.json: pack header
// plus a mod-loader list and an overrides directory.
func probeCurseManifest(zr *zip.Reader) (Descriptor, bool) {
	data := readRootEntry(zr, "manifest.json")
	if data == nil {
		return Descriptor{}, false
	}
	var v struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Description string `json:"description"`
		Overrides   string `json:"overrides"`
		Minecraft   struct {
			Version    string `json:"version"`
			ModLoaders []struct {
				ID      string `json:"id"`
				Primary bool   `json:"primary"`
			} `json:"modLoaders"`
		} `json:"minecraft"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Name == "" && v.Version == "" {
		return Descriptor{}, false
	}

	d := Descriptor{
		Kind:         KindCurseManifest,
		Name:         v.Name,
		Version:      v.Version,
		Description:  v.Description,
		GameVersion:  v.Minecraft.Version,
		OverridesDir: v.Overrides,
	}
	if d.OverridesDir == "" {
		d.OverridesDir = "overrides"
	}
	loaders := v.Minecraft.ModLoaders
	pick := -1
	for i, l := range loaders {
		if l.Primary {
			pick = i
			break
		}
	}
	// Without a primary flag the first listed loader stands in.
	if pick < 0 && len(loaders) > 0 {
		pick = 0
	}
	if pick >= 0 {
		// Loader ids look like "forge-47.2.0".
		if name, version, ok := strings.Cut(loaders[pick].ID, "-"); ok {
			d.Loader, d.LoaderVersion = name, version
		} else {
			d.Loader = loaders[pick].ID
		}
	}
	return d, true
}

// probeModrinthIndex parses a modrinth.index.json: pack identity, a
// dependency block and the remote file list with mirrors and hashes.
func probeModrinthIndex(zr *zip.Reader) (Descriptor, bool) {
	data := readRootEntry(zr, "modrinth.index.json")
	if data == nil {
		return Descriptor{}, false
	}
	var v struct {
		Name         string            `json:"name"`
		VersionID    string            `json:"versionId"`
		Summary      string            `json:"summary"`
		Dependencies map[string]string `json:"dependencies"`
		Files        []struct {
			Path   string            `json:"path"`
			Hashes map[string]string `json:"hashes"`
			Env    struct {
				Client string `json:"client"`
				Server string `json:"server"`
			} `json:"env"`
			Downloads []string `json:"downloads"`
			FileSize  int64    `json:"fileSize"`
		} `json:"files"`
	}
	if err := json.Unmarshal(data, &v); err != nil || v.Name == "" && v.VersionID == "" {
		return Descriptor{}, false
	}

	d := Descriptor{
		Kind:         KindModrinthIndex,
		Name:         v.Name,
		Version:      v.VersionID,
		Description:  v.Summary,
		GameVersion:  v.Dependencies["minecraft"],
		OverridesDir: "overrides",
	}
	for _, loader := range []string{"forge", "neoforge", "fabric-loader", "quilt-loader"} {
		if version, ok := v.Dependencies[loader]; ok {
			d.Loader = strings.TrimSuffix(loader, "-loader")
			d.LoaderVersion = version
			break
		}
	}
	for _, f := range v.Files {
		d.RemoteFiles = append(d.RemoteFiles, RemoteFile{
			Path:              f.Path,
			URLs:              f.Downloads,
			SHA1:              f.Hashes["sha1"],
			SHA512:            f.Hashes["sha512"],
			Size:              f.FileSize,
			ServerUnsupported: strings.EqualFold(f.Env.Server, "unsupported"),
		})
	}
	return d, true
}

// fromFileName derives identity from an archive file name by splitting the
// stem on its last hyphen.
func fromFileName(fileName string) Descriptor {
	stem := fileName
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	d := Descriptor{Kind: KindFileName}
	if i := strings.LastIndex(stem, "-"); i > 0 {
		d.Name, d.Version = stem[:i], stem[i+1:]
	} else {
		d.Name = stem
	}
	return d
}
