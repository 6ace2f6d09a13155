package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/propindex/pkg/version"
)

// MarkerFile is the name of the file in the data directory recording that
// preflight checks passed.
const MarkerFile = ".preflight-passed"

// NeedsCheck reports whether the checks must run for dataDir: the marker is
// missing or was written by another propindex version.
func NeedsCheck(dataDir string) bool {
	content, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return true
	}
	_, ver, ok := strings.Cut(strings.TrimSpace(string(content)), " ")
	return !ok || ver != version.Version
}

// MarkPassed records that the checks passed with this version.
func MarkPassed(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}

	content := time.Now().UTC().Format(time.RFC3339) + " " + version.Version + "\n"
	return os.WriteFile(filepath.Join(dataDir, MarkerFile), []byte(content), 0o644)
}

// ClearMarker removes the marker so the next run checks again.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}
