// Package validation checks the file parameters of the serving layer before
// anything touches the filesystem.
//
// A file parameter names a record store file relative to the data
// directory, e.g. "2018/2018-01.parquet". Backslashes are accepted and
// normalised to forward slashes.
package validation

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/mohammed1916/marine-anomaly/internal/errors"
)

// FileExt is the extension of record store files.
const FileExt = ".parquet"

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for one path segment.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// DefaultNameRules returns the rules for directory and file names of the
// record store.
func DefaultNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates one path segment according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return invalid(name, fmt.Sprintf("minimum %d characters required", rules.MinLength))
	}
	if len(name) > rules.MaxLength {
		return invalid(name, fmt.Sprintf("maximum %d characters allowed", rules.MaxLength))
	}

	if name == "." || name == ".." {
		return invalid(name, "cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return invalid(name, "cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return invalid(name, fmt.Sprintf("control character at position %d", i))
		}
		if r == '/' || r == '\\' {
			return invalid(name, fmt.Sprintf("path separator at position %d", i))
		}
		if !isAllowedNameChar(r, rules) {
			return invalid(name, fmt.Sprintf("invalid character '%c' at position %d", r, i))
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

func invalid(name, reason string) error {
	return fmt.Errorf("%q: %s: %w", name, reason, errors.ErrInvalidPath)
}

// =============================================================================
// File Parameter Validation
// =============================================================================

// ValidateFile validates a file parameter and returns it in canonical
// slash-separated form.
func ValidateFile(name string) (string, error) {
	if name == "" {
		return "", errors.NewMissingField("file")
	}

	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") {
		return "", invalid(name, "must be relative")
	}
	if len(name) >= 2 && name[1] == ':' {
		return "", invalid(name, "must not name a drive")
	}
	if !strings.HasSuffix(name, FileExt) {
		return "", invalid(name, "not a "+FileExt+" file")
	}

	rules := DefaultNameRules()
	for _, seg := range strings.Split(name, "/") {
		if seg == "" {
			continue
		}
		if err := ValidateName(seg, rules); err != nil {
			return "", fmt.Errorf("file %q: %w", name, err)
		}
	}

	clean := path.Clean(name)
	if clean == FileExt || strings.HasPrefix(clean, "../") {
		return "", invalid(name, "escapes the data directory")
	}
	return clean, nil
}

// ResolveFile validates name and joins it to root.
func ResolveFile(root, name string) (string, error) {
	clean, err := ValidateFile(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// ValidateFiles validates every entry of names.
func ValidateFiles(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, errors.NewMissingField("files")
	}
	out := make([]string, len(names))
	for i, n := range names {
		clean, err := ValidateFile(n)
		if err != nil {
			return nil, err
		}
		out[i] = clean
	}
	return out, nil
}
