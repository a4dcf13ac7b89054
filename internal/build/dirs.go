package build

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultBuildDir is used when Spec.BuildDir is empty.
const DefaultBuildDir = "build"

// ResolveBuildDir joins buildDir onto repoDir. The build dir is emptied on
// every run, so it must be a strict subdirectory of the checkout.
func ResolveBuildDir(repoDir, buildDir string) (string, error) {
	if buildDir == "" {
		buildDir = DefaultBuildDir
	}
	if filepath.IsAbs(buildDir) {
		return "", fmt.Errorf("build dir %q must be relative to the checkout", buildDir)
	}
	resolved := filepath.Join(repoDir, buildDir)
	if !within(repoDir, resolved) || filepath.Clean(repoDir) == resolved {
		return "", fmt.Errorf("build dir %q must be a subdirectory of the checkout", buildDir)
	}
	return resolved, nil
}

// Overlapping reports whether a and b are the same directory or one
// contains the other.
func Overlapping(a, b string) bool {
	return within(a, b) || within(b, a)
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
