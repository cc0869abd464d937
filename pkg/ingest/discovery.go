package ingest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/llamafarm/pkg/types"
)

// discover walks sourcePath (a single file or a directory) and returns
// the ordered list of files to process plus any entries skipped by the
// filter itself (§4.3 Discovery). A single-file sourcePath bypasses the
// filter entirely.
func discover(sourcePath string, filter types.DirectoryFilter) ([]string, []types.SkippedFile) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, []types.SkippedFile{{Path: sourcePath, Reason: "source_path not found: " + err.Error()}}
	}
	if !info.IsDir() {
		return []string{sourcePath}, nil
	}

	var files []string
	var skipped []types.SkippedFile

	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			skipped = append(skipped, types.SkippedFile{Path: path, Reason: err.Error()})
			return nil
		}
		if path == sourcePath {
			return nil
		}
		if d.IsDir() {
			if !filter.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 && !filter.FollowSymlink {
			skipped = append(skipped, types.SkippedFile{Path: path, Reason: "symlink not followed"})
			return nil
		}
		if !matchesFilter(path, filter) {
			return nil
		}
		if filter.MaxFiles > 0 && len(files) >= filter.MaxFiles {
			return filepath.SkipAll
		}
		files = append(files, path)
		return nil
	}

	_ = filepath.WalkDir(sourcePath, walkFn)
	sort.Strings(files)
	return files, skipped
}

func matchesFilter(path string, filter types.DirectoryFilter) bool {
	base := filepath.Base(path)

	if len(filter.ExcludeGlobs) > 0 {
		for _, pattern := range filter.ExcludeGlobs {
			if ok, _ := filepath.Match(pattern, base); ok {
				return false
			}
		}
	}
	if len(filter.IncludeGlobs) == 0 {
		return true
	}
	for _, pattern := range filter.IncludeGlobs {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// readFile reads a source file's raw bytes for parsing.
func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
