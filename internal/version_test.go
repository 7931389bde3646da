package internal

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetVersion(t *testing.T) {
	tempDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	defer os.Chdir(originalDir)

	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}

	tagFile := filepath.Join(tempDir, "tag.txt")
	if err := os.WriteFile(tagFile, []byte("v1.2.3"), 0644); err != nil {
		t.Fatalf("Failed to create tag.txt: %v", err)
	}

	version, err := GetVersion()
	if err != nil {
		t.Errorf("GetVersion() failed: %v", err)
	}
	if version != "v1.2.3" {
		t.Errorf("Expected version 'v1.2.3', got '%s'", version)
	}
}

func TestGetVersionEmptyFile(t *testing.T) {
	tempDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	defer os.Chdir(originalDir)

	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}

	tagFile := filepath.Join(tempDir, "tag.txt")
	if err := os.WriteFile(tagFile, []byte(""), 0644); err != nil {
		t.Fatalf("Failed to create tag.txt: %v", err)
	}

	version, err := GetVersion()
	if err == nil {
		t.Error("Expected error for empty tag.txt, got nil")
	}
	if version != "" {
		t.Errorf("Expected empty version, got '%s'", version)
	}
}

func TestGetVersionNotFound(t *testing.T) {
	tempDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	defer os.Chdir(originalDir)

	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}

	version, err := GetVersion()
	if err != nil {
		t.Errorf("GetVersion() failed: %v", err)
	}
	if version != "unknown" {
		t.Errorf("Expected version 'unknown', got '%s'", version)
	}
}

func TestGetVersionInfo(t *testing.T) {
	tempDir := t.TempDir()
	originalDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get current directory: %v", err)
	}
	defer os.Chdir(originalDir)

	if err := os.Chdir(tempDir); err != nil {
		t.Fatalf("Failed to change directory: %v", err)
	}

	tagFile := filepath.Join(tempDir, "tag.txt")
	if err := os.WriteFile(tagFile, []byte("2.0.0"), 0644); err != nil {
		t.Fatalf("Failed to create tag.txt: %v", err)
	}

	versionInfo := GetVersionInfo()
	expected := "fectun v2.0.0"
	if versionInfo != expected {
		t.Errorf("Expected '%s', got '%s'", expected, versionInfo)
	}
}
