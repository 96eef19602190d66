package copier

import (
	"fmt"
	"path/filepath"

	"github.com/schaermu/tranquil/internal/pathutil"
)

// DestinationPath maps sourcePath below sourceRoot to the same relative
// location below destinationRoot. The root is stripped as a literal prefix of
// whole path components, once, at the start of the path.
func DestinationPath(sourceRoot, destinationRoot, sourcePath string) (string, error) {
	sourceRoot = filepath.Clean(sourceRoot)
	sourcePath = filepath.Clean(sourcePath)

	if !pathutil.IsWithin(sourceRoot, sourcePath) || sourcePath == sourceRoot {
		return "", fmt.Errorf("%s is not below source root %s", sourcePath, sourceRoot)
	}

	rest := sourcePath[len(sourceRoot):]
	return filepath.Join(destinationRoot, rest), nil
}
