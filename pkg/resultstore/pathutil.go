package resultstore

import (
	"path/filepath"
	"regexp"
	"strings"
)

var driveLetterRe = regexp.MustCompile(`^[A-Za-z]:[/\\]`)

// NormalizeURL converts a filesystem path to the URL form the Result
// Store's configuration accepts (spec.md §4.1). Backslashes are
// normalized to forward slashes; a Windows drive letter is rendered
// as file:///<letter>:/... (three slashes, preserving the colon).
func NormalizeURL(path string) string {
	p := strings.ReplaceAll(path, `\`, `/`)
	if driveLetterRe.MatchString(path) {
		return "file:///" + p
	}
	if strings.HasPrefix(p, "/") {
		return "file://" + p
	}
	return p
}

// taskFilePath returns the on-disk path for a task_id within dir.
func taskFilePath(dir, taskID string) string {
	return filepath.Join(dir, taskID+".json")
}
