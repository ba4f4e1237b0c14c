package pack

import "strings"

const (
	// DefaultID is substituted when sanitizing leaves an empty pack id.
	DefaultID = "pack"
	// DefaultVersion is substituted when sanitizing leaves an empty version.
	DefaultVersion = "latest"
)

// SanitizeID normalizes an arbitrary string into a filesystem-safe pack id.
func SanitizeID(s string) string {
	return sanitize(s, DefaultID)
}

// SanitizeVersion normalizes an arbitrary string into a filesystem-safe
// version label.
func SanitizeVersion(s string) string {
	return sanitize(s, DefaultVersion)
}

// sanitize replaces every character that is illegal in file names (on any
// supported platform, path separators included) with '_', collapses runs of
// placeholders, trims leading/trailing placeholders and whitespace, and
// falls back to def when nothing usable remains.
func sanitize(s, def string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for _, r := range s {
		if illegalRune(r) {
			if !prev {
				b.WriteByte('_')
				prev = true
			}
			continue
		}
		b.WriteRune(r)
		prev = false
	}
	out := strings.Trim(b.String(), "_ ")
	out = strings.TrimSpace(out)
	if out == "" || out == "." || out == ".." {
		return def
	}
	return out
}

func illegalRune(r rune) bool {
	switch r {
	case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
		return true
	}
	return r < 0x20
}
