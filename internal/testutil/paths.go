package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// FindProjectRoot walks up from the caller's source file to the directory
// holding go.mod.
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(1)
	if !ok {
		return "", fmt.Errorf("failed to get caller information")
	}
	return findUp(filepath.Dir(filename), "go.mod")
}

// findUp returns the first directory at or above dir that contains name.
func findUp(dir, name string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%s not found in any parent directory", name)
		}
		dir = parent
	}
}
