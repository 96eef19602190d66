// Package entry defines the file-system entries discovered under a tree root
// and the rules used to order and compare them across two trees.
package entry

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// Entry is a single file or directory discovered under a root.
type Entry struct {
	Name         string      // last path component, display only
	BasePath     string      // canonical absolute root the entry was found under
	FullPath     string      // canonical absolute path of the entry
	RelativePath string      // FullPath with BasePath stripped
	IsDir        bool        // directories are never compared by timestamp
	ModTime      time.Time   // modification time as exposed by the filesystem
	Size         int64       // byte length, zero for directories
	Mode         fs.FileMode // permission bits used when recreating the item
}

// New builds an Entry for fullPath discovered under basePath from a live stat.
// basePath must be a strict prefix of fullPath.
func New(basePath, fullPath string, info fs.FileInfo) (Entry, error) {
	rel, err := relative(basePath, fullPath)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		Name:         info.Name(),
		BasePath:     basePath,
		FullPath:     fullPath,
		RelativePath: rel,
		IsDir:        info.IsDir(),
		ModTime:      info.ModTime(),
		Mode:         info.Mode().Perm(),
	}
	if !e.IsDir {
		e.Size = info.Size()
	}
	return e, nil
}

func relative(basePath, fullPath string) (string, error) {
	if !strings.HasPrefix(fullPath, basePath) || len(fullPath) == len(basePath) {
		return "", fmt.Errorf("path %q is not below root %q", fullPath, basePath)
	}

	rest := fullPath[len(basePath):]
	if strings.HasSuffix(basePath, string(filepath.Separator)) {
		return rest, nil
	}
	if rest[0] != filepath.Separator {
		return "", fmt.Errorf("path %q is not below root %q", fullPath, basePath)
	}
	return rest[1:], nil
}

// String returns the relative path, which identifies the entry across trees.
func (e Entry) String() string {
	return e.RelativePath
}

// Sequence is the ordered list of entries for one tree.
type Sequence []Entry

// TotalSize sums the size of every file in the sequence.
func (s Sequence) TotalSize() int64 {
	var total int64
	for _, e := range s {
		total += e.Size
	}
	return total
}
