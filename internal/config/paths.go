package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// getConfigFilePath returns the location of the optional yaml config
// file: CLINICORE_CONFIG_FILE when set, otherwise config.yaml next to the
// executable.
func getConfigFilePath() string {
	if path := os.Getenv("CLINICORE_CONFIG_FILE"); path != "" {
		return path
	}
	return filepath.Join(executableDir(), "config.yaml")
}

// executableDir resolves the directory of the running binary. Falls back to
// the working directory when the executable path cannot be determined
// (notably under `go test`).
func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Dir(exe)
}

// resolvePaths turns relative configured paths into absolute ones anchored
// at the executable directory and ensures the data and logs directories
// exist.
func (c *Config) resolvePaths() error {
	base := executableDir()

	if !filepath.IsAbs(c.Paths.DataDir) {
		c.Paths.DataDir = filepath.Join(base, c.Paths.DataDir)
	}
	if !filepath.IsAbs(c.Paths.LogsDir) {
		c.Paths.LogsDir = filepath.Join(base, c.Paths.LogsDir)
	}
	if !filepath.IsAbs(c.Paths.LicenseFile) {
		c.Paths.LicenseFile = filepath.Join(c.Paths.DataDir, c.Paths.LicenseFile)
	}
	if !filepath.IsAbs(c.Paths.RegistryFile) {
		c.Paths.RegistryFile = filepath.Join(c.Paths.DataDir, c.Paths.RegistryFile)
	}
	if !filepath.IsAbs(c.Logging.FilePath) {
		c.Logging.FilePath = filepath.Join(base, c.Logging.FilePath)
	}

	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// FileExists reports whether path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
