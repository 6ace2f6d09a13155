package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackupFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".propindex.yaml")

	t.Run("no config exists", func(t *testing.T) {
		backupPath, err := BackupFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath != "" {
			t.Errorf("expected empty backup path for non-existent config, got %s", backupPath)
		}
	})

	t.Run("backup existing config", func(t *testing.T) {
		testContent := "version: 1\nindex:\n  queue_capacity: 10\n"
		if err := os.WriteFile(configPath, []byte(testContent), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		backupPath, err := BackupFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if backupPath == "" {
			t.Fatal("expected non-empty backup path")
		}

		backupContent, err := os.ReadFile(backupPath)
		if err != nil {
			t.Fatalf("failed to read backup: %v", err)
		}
		if string(backupContent) != testContent {
			t.Errorf("backup content mismatch:\ngot: %s\nwant: %s", backupContent, testContent)
		}
		if !strings.HasPrefix(filepath.Base(backupPath), ".propindex.yaml.bak.") {
			t.Errorf("unexpected backup name: %s", backupPath)
		}
	})
}

func TestListBackups_KeepsNewestMaxBackups(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ".propindex.yaml")
	if err := os.WriteFile(configPath, []byte("version: 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	var created []string
	for i := 0; i < MaxBackups+2; i++ {
		p, err := BackupFile(configPath)
		if err != nil {
			t.Fatalf("backup %d failed: %v", i, err)
		}
		created = append(created, p)
		time.Sleep(5 * time.Millisecond)
	}

	backups, err := ListBackups(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != MaxBackups {
		t.Fatalf("expected %d backups, got %d", MaxBackups, len(backups))
	}
	if backups[0] != created[len(created)-1] {
		t.Errorf("expected newest backup first, got %s", backups[0])
	}
}

func TestListBackups_MissingDirectory(t *testing.T) {
	backups, err := ListBackups(filepath.Join(t.TempDir(), "missing", "config.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no backups, got %v", backups)
	}
}

func TestWriteYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".propindex.yaml")

	cfg := NewConfig()
	cfg.Index.QueueCapacity = 12
	if err := cfg.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML failed: %v", err)
	}

	var loaded Config
	if err := loaded.readYAML(path); err != nil {
		t.Fatalf("failed to read back: %v", err)
	}
	if loaded.Index.QueueCapacity != 12 {
		t.Errorf("expected queue_capacity 12, got %d", loaded.Index.QueueCapacity)
	}
	if loaded.Index.IdleTimeout != "20s" {
		t.Errorf("expected idle_timeout 20s, got %s", loaded.Index.IdleTimeout)
	}
}
