package catalog

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var (
	nonAlnum       = regexp.MustCompile(`[^a-z0-9]`)
	iconExtensions = regexp.MustCompile(`(?i)\.(png|jpg|jpeg)$`)
)

// NormalizeName lower-cases a name and strips everything but ASCII letters and digits
func NormalizeName(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(name), "")
}

// IsIconFile reports whether a filename has an icon image extension
func IsIconFile(name string) bool {
	return iconExtensions.MatchString(name)
}

// IconVariant substitutes a commonly differing word in a sound name before
// retrying the exact icon match.
type IconVariant struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// NewIconVariant compiles a variant
func NewIconVariant(pattern, replacement string) (IconVariant, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return IconVariant{}, fmt.Errorf("invalid icon variant %q: %w", pattern, err)
	}
	return IconVariant{Pattern: re, Replacement: replacement}, nil
}

// DefaultIconVariants returns the substitutions the soundboard assets need
func DefaultIconVariants() []IconVariant {
	return []IconVariant{
		{Pattern: regexp.MustCompile(`(?i)falling`), Replacement: "fall"},
		{Pattern: regexp.MustCompile(`(?i)crow\s*cheer`), Replacement: "crowd cheer"},
		{Pattern: regexp.MustCompile(`(?i)shrine\s*ringtone`), Replacement: "ringtone"},
	}
}

// IconMatcher pairs sound-effect names with icon files
type IconMatcher struct {
	Variants []IconVariant
}

// NewIconMatcher creates a matcher with the given variant list
func NewIconMatcher(variants []IconVariant) *IconMatcher {
	return &IconMatcher{Variants: variants}
}

// Match returns the icon file for a sound name. It tries normalized equality,
// then containment in either direction, then each variant's exact match.
func (m *IconMatcher) Match(soundName string, iconFiles []string) (string, bool) {
	sound := NormalizeName(soundName)
	if sound == "" {
		return "", false
	}

	icons := make([]string, len(iconFiles))
	for i, f := range iconFiles {
		icons[i] = NormalizeName(iconExtensions.ReplaceAllString(f, ""))
	}

	for i, icon := range icons {
		if icon == sound {
			return iconFiles[i], true
		}
	}

	for i, icon := range icons {
		if icon == "" {
			continue
		}
		if strings.Contains(icon, sound) || strings.Contains(sound, icon) {
			return iconFiles[i], true
		}
	}

	for _, v := range m.Variants {
		variant := NormalizeName(v.Pattern.ReplaceAllString(soundName, v.Replacement))
		for i, icon := range icons {
			if icon == variant {
				return iconFiles[i], true
			}
		}
	}

	return "", false
}

// IconPath joins the icon directory and file with forward slashes, the way
// the manifest records icon locations.
func IconPath(dir, file string) string {
	return path.Join(dir, file)
}
