// Package paths implements the canonical content addressing scheme.
// A path is "/segment/tile/.../question": leading slash required, no
// trailing slash, no empty components. Prefix queries use plain
// startswith semantics on the normalized string.
package paths

import (
	"strings"

	"github.com/greenlattice/esgbench/internal/types"
)

const Separator = "/"

// Normalize validates raw and returns its canonical form.
func Normalize(raw string) (string, error) {
	if raw == "" || !strings.HasPrefix(raw, Separator) {
		return "", types.E(types.KindValidation, "path %q must start with %q", raw, Separator)
	}
	if raw == Separator {
		return Separator, nil
	}
	trimmed := strings.TrimSuffix(raw, Separator)
	for _, part := range strings.Split(trimmed[1:], Separator) {
		if part == "" {
			return "", types.E(types.KindValidation, "path %q contains an empty component", raw)
		}
	}
	return trimmed, nil
}

// Join builds a path from slugs.
func Join(slugs ...string) string {
	return Separator + strings.Join(slugs, Separator)
}

// Split returns the slug components of path.
func Split(path string) []string {
	if path == "" || path == Separator {
		return nil
	}
	return strings.Split(strings.TrimPrefix(path, Separator), Separator)
}

// Leaf returns the last slug of path, or "" for the root.
func Leaf(path string) string {
	parts := Split(path)
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// Parent returns path without its last component, or "" at the top.
func Parent(path string) string {
	i := strings.LastIndex(path, Separator)
	if i <= 0 {
		return ""
	}
	return path[:i]
}

// Depth returns the number of components in path.
func Depth(path string) int {
	return len(Split(path))
}

// HasPrefix reports whether path lies at or under prefix. An empty prefix
// matches everything; "/energy" matches "/energy" and "/energy/..." but
// not "/energy-audit".
func HasPrefix(path, prefix string) bool {
	if prefix == "" || prefix == Separator {
		return true
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+Separator)
}

// StripPrefix removes prefix from path, keeping the leading separator.
// Stripping "/energy" from "/energy/audit/q1" yields "/audit/q1".
func StripPrefix(path, prefix string) string {
	if prefix == "" || prefix == Separator || path == prefix {
		return path
	}
	if strings.HasPrefix(path, prefix+Separator) {
		return path[len(prefix):]
	}
	return path
}

// Child appends slug to path.
func Child(path, slug string) string {
	if path == "" || path == Separator {
		return Separator + slug
	}
	return path + Separator + slug
}
