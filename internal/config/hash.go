package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name inside the config directory.
const ChecksumFile = ".checksums"

// LockReport captures checksum generation details for a config directory.
type LockReport struct {
	ConfigDir    string
	ChecksumPath string
	Written      bool
	Hashes       map[string]string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// Lock hashes the config file and, when present, the .env beside it, and
// writes the .checksums manifest. When dryRun is true nothing is written.
func Lock(configPath string, dryRun bool) (*LockReport, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(absPath)

	report := &LockReport{
		ConfigDir:    dir,
		ChecksumPath: filepath.Join(dir, ChecksumFile),
		Hashes:       make(map[string]string),
	}

	files := []string{filepath.Base(absPath)}
	if _, err := os.Stat(filepath.Join(dir, DotEnvName)); err == nil {
		files = append(files, DotEnvName)
	}

	for _, name := range files {
		hash, err := ComputeBlake3Hash(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", name, err)
		}
		report.Hashes[name] = hash
	}

	if dryRun {
		return report, nil
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      report.Hashes,
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}

	// Restrictive permissions: the manifest pins the secrets file.
	if err := os.WriteFile(report.ChecksumPath, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	report.Written = true

	return report, nil
}

// LoadChecksums reads the .checksums file from a config directory.
// A missing manifest returns an error matching os.ErrNotExist.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	checksumPath := filepath.Join(configDir, ChecksumFile)

	data, err := os.ReadFile(checksumPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checksums file not found (run 'slackgw config lock'): %w", os.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}

	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}

	return &manifest, nil
}
