package preflight

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
}

func TestCheckResult_JSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{Name: "disk_space", Status: StatusWarn, Message: "low"})

	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"disk_space","status":"warn","message":"low","required":false}`, string(data))
}

func TestChecker_HasCriticalFailures(t *testing.T) {
	checker := New()

	tests := []struct {
		name     string
		results  []CheckResult
		expected bool
	}{
		{name: "no results", results: nil, expected: false},
		{
			name:     "warning only",
			results:  []CheckResult{{Status: StatusPass, Required: true}, {Status: StatusWarn}},
			expected: false,
		},
		{
			name:     "optional failure",
			results:  []CheckResult{{Status: StatusFail, Required: false}},
			expected: false,
		},
		{
			name:     "required failure",
			results:  []CheckResult{{Status: StatusPass, Required: true}, {Status: StatusFail, Required: true}},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, checker.HasCriticalFailures(tt.results))
		})
	}
}

func TestChecker_CheckWritePermissions_CreatesDataDir(t *testing.T) {
	// Given: a data directory that does not exist yet
	dataDir := filepath.Join(t.TempDir(), ".propindex")

	// When: checking write permissions
	result := New().CheckWritePermissions(dataDir)

	// Then: it passes and leaves only the directory behind
	assert.Equal(t, StatusPass, result.Status)
	assert.True(t, result.Required)
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChecker_CheckWritePermissions_ReadOnly(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("Skipping read-only test when running as root")
	}

	readOnlyDir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0o555))
	defer func() { _ = os.Chmod(readOnlyDir, 0o755) }()

	result := New().CheckWritePermissions(readOnlyDir)

	assert.Equal(t, StatusFail, result.Status)
	assert.Contains(t, result.Message, "permission denied")
}

func TestChecker_CheckConfig_Invalid(t *testing.T) {
	// Given: a workspace with an invalid config
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".propindex.yaml"), []byte("index:\n  max_attempts: -2\n"), 0o644))

	// When: checking it
	result := New().CheckConfig(root)

	// Then: the check fails critically
	assert.True(t, result.IsCritical())
	assert.Contains(t, result.Message, "max_attempts")
}

func TestChecker_CheckDiskSpace(t *testing.T) {
	result := New().CheckDiskSpace(t.TempDir())

	assert.Equal(t, "disk_space", result.Name)
	assert.Contains(t, result.Message, "free")
}

func TestChecker_RunAll_ReturnsAllChecks(t *testing.T) {
	// Given: a fresh workspace
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	root := t.TempDir()

	// When: running all checks
	results := New().RunAll(context.Background(), root, filepath.Join(root, ".propindex"))

	// Then: every check ran
	names := make(map[string]bool)
	for _, r := range results {
		names[r.Name] = true
	}
	for _, name := range []string{"config", "disk_space", "write_permissions", "file_descriptors"} {
		assert.True(t, names[name], "%s check missing", name)
	}
}

func TestChecker_PrintResults(t *testing.T) {
	// Given: some check results
	results := []CheckResult{
		{Name: "disk_space", Status: StatusPass, Message: "50 GiB free"},
		{Name: "file_descriptors", Status: StatusWarn, Message: "256 (minimum: 1024)", Details: "Run 'ulimit -n 10240'"},
		{Name: "config", Status: StatusFail, Message: "invalid", Required: true},
	}
	buf := &bytes.Buffer{}

	// When: printing them verbosely
	New(WithOutput(buf), WithVerbose(true)).PrintResults(results)

	// Then: every status, the details and the summary are shown
	out := buf.String()
	assert.Contains(t, out, "[PASS] disk_space")
	assert.Contains(t, out, "[WARN] file_descriptors")
	assert.Contains(t, out, "[FAIL] config")
	assert.Contains(t, out, "ulimit")
	assert.Contains(t, out, "Status: FAILED")
}

func TestChecker_SummaryStatus(t *testing.T) {
	checker := New()

	assert.Equal(t, "ready", checker.SummaryStatus([]CheckResult{{Status: StatusPass}}))
	assert.Equal(t, "ready_with_warnings", checker.SummaryStatus([]CheckResult{{Status: StatusPass}, {Status: StatusWarn}}))
	assert.Equal(t, "ready_with_warnings", checker.SummaryStatus([]CheckResult{{Status: StatusFail}}))
	assert.Equal(t, "failed", checker.SummaryStatus([]CheckResult{{Status: StatusFail, Required: true}}))
}
