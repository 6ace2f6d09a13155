// Package properties models the translation files of a workspace.
//
// A workspace is laid out as <project>/<version>/.../<name>[_<locale>].properties.
// Files without a locale suffix are master (template) files; the others are
// translations of the master with the same base name in the same directory.
package properties

import (
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
)

// Extension is the file extension of translation files.
const Extension = ".properties"

// Descriptor describes one translation file in the workspace.
type Descriptor struct {
	// ID is the registry-assigned identifier. Zero until resolved.
	ID int64
	// Path is workspace-relative and slash-separated.
	Path    string
	Project string
	Version string
	// BaseName is the file name without locale suffix and extension.
	BaseName string
	// Locale is empty for master files.
	Locale string
	Master bool
}

// Identity is the stable, comparable identifier of a descriptor.
type Identity struct {
	ID       int64
	FullPath string
}

// Key returns the string form stored in the cdoID field of indexed documents.
func (i Identity) Key() string {
	return "L" + strconv.FormatInt(i.ID, 10)
}

// IsZero reports whether the identity is unset.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// Identity returns the descriptor's identity.
func (d Descriptor) Identity() Identity {
	return Identity{ID: d.ID, FullPath: d.Path}
}

// WithID returns a copy of d carrying id.
func (d Descriptor) WithID(id int64) Descriptor {
	d.ID = id
	return d
}

// IsPropertiesFile reports whether name has the .properties extension.
func IsPropertiesFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// ParsePath builds a descriptor from a workspace-relative path.
// The path must have at least a project and a version directory above the file.
func ParsePath(rel string) (Descriptor, error) {
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == "." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return Descriptor{}, perrors.New(perrors.ErrCodeInvalidPath,
			fmt.Sprintf("path %q is not inside the workspace", rel), nil)
	}
	if !IsPropertiesFile(clean) {
		return Descriptor{}, perrors.New(perrors.ErrCodeInvalidPath,
			fmt.Sprintf("path %q is not a %s file", rel, Extension), nil)
	}

	parts := strings.Split(clean, "/")
	if len(parts) < 3 {
		return Descriptor{}, perrors.New(perrors.ErrCodeInvalidPath,
			fmt.Sprintf("path %q must be <project>/<version>/.../<file>%s", rel, Extension), nil).
			WithSuggestion("place translation files below a project and version directory")
	}

	name := strings.TrimSuffix(parts[len(parts)-1], filepath.Ext(clean))
	base, locale := splitLocale(name)

	return Descriptor{
		Path:     clean,
		Project:  parts[0],
		Version:  parts[1],
		BaseName: base,
		Locale:   locale,
		Master:   locale == "",
	}, nil
}

// splitLocale splits "messages_de_CH" into ("messages", "de_CH").
// The locale starts at the first segment that is a 2-3 letter lowercase language code.
func splitLocale(name string) (base, locale string) {
	segs := strings.Split(name, "_")
	for i := 1; i < len(segs); i++ {
		if !isLanguage(segs[i]) || len(segs)-i > 3 {
			continue
		}
		if i+1 < len(segs) && !isRegion(segs[i+1]) {
			continue
		}
		return strings.Join(segs[:i], "_"), strings.Join(segs[i:], "_")
	}
	return name, ""
}

func isLanguage(s string) bool {
	if len(s) < 2 || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLower(r) || r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

func isRegion(s string) bool {
	if len(s) == 2 {
		return unicode.IsUpper(rune(s[0])) && unicode.IsUpper(rune(s[1]))
	}
	if len(s) == 3 {
		_, err := strconv.Atoi(s)
		return err == nil
	}
	return false
}
