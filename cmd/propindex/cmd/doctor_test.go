package cmd

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/Aman-CERP/propindex/internal/errors"
	"github.com/Aman-CERP/propindex/internal/preflight"
)

func TestDoctorCmd_HealthyWorkspace(t *testing.T) {
	// Given: a fresh workspace
	isolate(t)
	root := t.TempDir()

	// When: running doctor
	out, err := execute(t, context.Background(), "doctor", root)

	// Then: every required check passes and the result is remembered
	require.NoError(t, err, out)
	assert.Contains(t, out, "[PASS] config")
	assert.Contains(t, out, "[PASS] write_permissions")
	assert.False(t, preflight.NeedsCheck(filepath.Join(root, ".propindex")))
}

func TestDoctorCmd_JSON(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	out, err := execute(t, context.Background(), "doctor", "--json", root)

	require.NoError(t, err, out)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Contains(t, []string{"ready", "ready_with_warnings"}, report.Status)
	assert.Len(t, report.Checks, 4)
}

func TestDoctorCmd_InvalidConfigFails(t *testing.T) {
	// Given: a workspace whose config does not validate
	isolate(t)
	root := t.TempDir()
	writeFile(t, root, ".propindex.yaml", "index:\n  workers: -1\n")

	// When: running doctor
	out, err := execute(t, context.Background(), "doctor", root)

	// Then: the config check fails the command
	assert.Contains(t, out, "[FAIL] config")
	assert.Equal(t, perrors.ErrCodeIndexWrite, perrors.GetCode(err))
}
