// Package modmeta extracts identifying metadata (mod id, version, display
// name, loader) from mod archives bundled inside a pack.
//
// Several descriptor formats are recognized and probed in priority order;
// the first one that yields at least an id, version or name wins. Parse
// failures in any single format are swallowed so a malformed mod never
// aborts a manifest build.
package modmeta

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"path"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Descriptor is the metadata extracted from one mod archive. Empty fields
// mean "not determined".
type Descriptor struct {
	Path    string `json:"path"`
	ID      string `json:"id,omitempty"`
	Version string `json:"version,omitempty"`
	Name    string `json:"name,omitempty"`
	Loader  string `json:"loader,omitempty"`
}

func (d Descriptor) empty() bool {
	return d.ID == "" && d.Version == "" && d.Name == ""
}

// probe attempts one descriptor format against the open archive.
type probe func(*zip.Reader) (Descriptor, bool)

var probes = []probe{
	probeFabric,
	probeQuilt,
	probeForgeToml,
	probeLegacyInfo,
	probeMavenProps,
}

// Extract reads the archive at filePath and returns its metadata, if any
// recognized descriptor format yields at least one of id/version/name.
func Extract(filePath string) (Descriptor, bool) {
	rc, err := zip.OpenReader(filePath)
	if err != nil {
		return Descriptor{}, false
	}
	defer rc.Close()
	return ExtractReader(&rc.Reader, path.Base(filepathToSlash(filePath)))
}

// ExtractReader probes an already-open archive. fileName is used by the
// filename fallback heuristic.
func ExtractReader(zr *zip.Reader, fileName string) (Descriptor, bool) {
	for _, p := range probes {
		if d, ok := p(zr); ok && !d.empty() {
			return d, true
		}
	}
	if d, ok := probeFallback(zr, fileName); ok && !d.empty() {
		return d, true
	}
	return Descriptor{}, false
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// readEntry returns the content of the named archive entry, or nil.
func readEntry(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		r, err := f.Open()
		if err != nil {
			return nil
		}
		defer r.Close()
		data, err := io.ReadAll(io.LimitReader(r, 1<<20))
		if err != nil {
			return nil
		}
		return data
	}
	return nil
}

// probeFabric reads fabric.mod.json: top-level id/version/name.
func probeFabric(zr *zip.Reader) (Descriptor, bool) {
	data := readEntry(zr, "fabric.mod.json")
	if data == nil {
		return Descriptor{}, false
	}
	var v struct {
		ID      string `json:"id"`
		Version string `json:"version"`
		Name    string `json:"name"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return Descriptor{}, false
	}
	return Descriptor{ID: v.ID, Version: v.Version, Name: v.Name, Loader: "fabric"}, true
}

// probeQuilt reads quilt.mod.json: nested loader identity plus display
// metadata.
func probeQuilt(zr *zip.Reader) (Descriptor, bool) {
	data := readEntry(zr, "quilt.mod.json")
	if data == nil {
		return Descriptor{}, false
	}
	var v struct {
		QuiltLoader struct {
			ID       string `json:"id"`
			Version  string `json:"version"`
			Metadata struct {
				Name string `json:"name"`
			} `json:"metadata"`
		} `json:"quilt_loader"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return Descriptor{}, false
	}
	q := v.QuiltLoader
	return Descriptor{ID: q.ID, Version: q.Version, Name: q.Metadata.Name, Loader: "quilt"}, true
}

// probeForgeToml reads META-INF/mods.toml (or the NeoForge variant): a
// [[mods]] table with modId/version/displayName. Values still carrying an
// unresolved ${...} template are discarded.
func probeForgeToml(zr *zip.Reader) (Descriptor, bool) {
	loader := "forge"
	data := readEntry(zr, "META-INF/mods.toml")
	if data == nil {
		data = readEntry(zr, "META-INF/neoforge.mods.toml")
		loader = "neoforge"
	}
	if data == nil {
		return Descriptor{}, false
	}
	var v struct {
		Mods []struct {
			ModID       string `toml:"modId"`
			Version     string `toml:"version"`
			DisplayName string `toml:"displayName"`
			Name        string `toml:"name"`
		} `toml:"mods"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return Descriptor{}, false
	}
	for _, m := range v.Mods {
		name := m.DisplayName
		if name == "" {
			name = m.Name
		}
		d := Descriptor{
			ID:      dropTemplated(m.ModID),
			Version: dropTemplated(m.Version),
			Name:    dropTemplated(name),
			Loader:  loader,
		}
		if !d.empty() {
			return d, true
		}
	}
	return Descriptor{}, false
}

// dropTemplated discards values containing an unresolved ${...} placeholder
// (e.g. version = "${file.jarVersion}").
func dropTemplated(s string) string {
	if strings.Contains(s, "${") {
		return ""
	}
	return s
}

// probeLegacyInfo reads mcmod.info: a legacy JSON array (or single object)
// of modid/version/name records.
func probeLegacyInfo(zr *zip.Reader) (Descriptor, bool) {
	data := readEntry(zr, "mcmod.info")
	if data == nil {
		return Descriptor{}, false
	}
	type record struct {
		ModID   string `json:"modid"`
		Version string `json:"version"`
		Name    string `json:"name"`
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		var single record
		if err := json.Unmarshal(data, &single); err != nil {
			return Descriptor{}, false
		}
		records = []record{single}
	}
	for _, r := range records {
		d := Descriptor{ID: r.ModID, Version: r.Version, Name: r.Name, Loader: "forge"}
		if !d.empty() {
			return d, true
		}
	}
	return Descriptor{}, false
}

// probeMavenProps reads META-INF/maven/<group>/<artifact>/pom.properties.
func probeMavenProps(zr *zip.Reader) (Descriptor, bool) {
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "META-INF/maven/") || !strings.HasSuffix(f.Name, "/pom.properties") {
			continue
		}
		r, err := f.Open()
		if err != nil {
			continue
		}
		props := parseProperties(r)
		r.Close()
		d := Descriptor{
			ID:      props["artifactId"],
			Version: props["version"],
			Name:    props["name"],
		}
		if !d.empty() {
			return d, true
		}
	}
	return Descriptor{}, false
}

// parseProperties reads simple key=value lines, skipping comments.
func parseProperties(r io.Reader) map[string]string {
	props := make(map[string]string)
	sc := bufio.NewScanner(io.LimitReader(r, 1<<20))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		props[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return props
}

// probeFallback combines the jar manifest's Implementation-Version with a
// filename heuristic. It is tried last because it is the least reliable.
func probeFallback(zr *zip.Reader, fileName string) (Descriptor, bool) {
	var implVersion string
	if data := readEntry(zr, "META-INF/MANIFEST.MF"); data != nil {
		implVersion = manifestAttribute(data, "Implementation-Version")
	}
	id, version := splitFileName(fileName)
	if implVersion != "" {
		version = implVersion
	}
	// An id alone, guessed from the file name, identifies nothing.
	if version == "" {
		return Descriptor{}, false
	}
	return Descriptor{ID: id, Version: version}, true
}

// manifestAttribute scans a jar manifest for the last occurrence of the
// given main attribute.
func manifestAttribute(data []byte, key string) string {
	var value string
	sc := bufio.NewScanner(bytes.NewReader(data))
	prefix := key + ":"
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, prefix) {
			value = strings.TrimSpace(line[len(prefix):])
		}
	}
	return value
}
