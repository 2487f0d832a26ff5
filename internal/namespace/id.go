// Package namespace validates and resolves simulation namespace identifiers.
package namespace

import (
	"fmt"
	"path/filepath"
	"regexp"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// Validate reports whether id is a well-formed namespace identifier.
// It never touches the filesystem — callers must not build a path from an
// id that failed this check.
func Validate(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("invalid namespace %q: must match ^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$", id)
	}
	return nil
}

// StorePath returns the on-disk path for a namespace's store file under
// dataDir. It re-validates id so a caller can never reach the filesystem
// with an unchecked identifier by skipping Validate.
func StorePath(dataDir, id string) (string, error) {
	if err := Validate(id); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, id+".db"), nil
}
