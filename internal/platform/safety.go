package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// IsDevRun reports whether the binary runs from `go run` or `go test`.
func IsDevRun() bool {
	exe, err := os.Executable()
	if err != nil {
		return false
	}
	if strings.HasPrefix(strings.ToLower(exe), strings.ToLower(os.TempDir())) {
		return true
	}
	return strings.HasSuffix(exe, ".test") || strings.HasSuffix(exe, ".test.exe")
}

// ResolveStatePath keeps dev runs from overwriting a real chain state file: with
// forceTemp the file is re-rooted under the system temp directory, unless it already
// lives there.
func ResolveStatePath(userPath string, forceTemp bool) string {
	if userPath == "" || !forceTemp {
		return userPath
	}

	clean := filepath.Clean(userPath)
	if rel, err := filepath.Rel(os.TempDir(), clean); err == nil && !strings.HasPrefix(rel, "..") {
		return clean
	}
	return filepath.Join(os.TempDir(), "registrar-dev", filepath.Base(clean))
}
