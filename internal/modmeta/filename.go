package modmeta

import (
	"regexp"
	"strings"
	"unicode"
)

// skipTokens are loader/platform markers that carry no identity.
var skipTokens = map[string]struct{}{
	"fabric":    {},
	"forge":     {},
	"neoforge":  {},
	"quilt":     {},
	"mc":        {},
	"minecraft": {},
}

// gameVersionRe matches Minecraft platform versions such as 1.20, mc1.20.1
// or 1.21-pre2, which must not be mistaken for a mod version. preReleaseRe
// catches pre/rc suffixes detached from their version by tokenization.
var (
	gameVersionRe = regexp.MustCompile(`^(mc)?1\.\d{1,2}(\.\d{1,2})?(-(pre|rc)\d*)?$`)
	preReleaseRe  = regexp.MustCompile(`^(pre|rc)\d*$`)
)

// splitFileName guesses id and version from a mod file name such as
// "journeymap-1.20.1-5.9.7-fabric.jar": tokens are split on '-', '+' and
// '_', loader and platform-version tokens are skipped, and the rightmost
// remaining token containing a digit is taken as the version. Tokens before
// it form the id.
func splitFileName(fileName string) (id, version string) {
	stem := fileName
	if i := strings.LastIndex(stem, "."); i > 0 {
		stem = stem[:i]
	}
	raw := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '-' || r == '+' || r == '_'
	})
	tokens := raw[:0]
	for _, t := range raw {
		if _, skip := skipTokens[strings.ToLower(t)]; skip {
			continue
		}
		tokens = append(tokens, t)
	}

	versionIdx := -1
	for i := len(tokens) - 1; i >= 0; i-- {
		t := tokens[i]
		if gameVersionRe.MatchString(t) || preReleaseRe.MatchString(strings.ToLower(t)) {
			continue
		}
		if strings.ContainsFunc(t, unicode.IsDigit) {
			versionIdx = i
			break
		}
	}
	if versionIdx < 0 {
		return strings.Join(dropPlatformTokens(tokens), "-"), ""
	}
	return strings.Join(dropPlatformTokens(tokens[:versionIdx]), "-"), tokens[versionIdx]
}

// dropPlatformTokens removes platform-version and pre-release tokens that
// carry no mod identity.
func dropPlatformTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if gameVersionRe.MatchString(t) || preReleaseRe.MatchString(strings.ToLower(t)) {
			continue
		}
		out = append(out, t)
	}
	return out
}
