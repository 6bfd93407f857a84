// conf/utils.go various util functions for configuration package
package conf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
)

const osWindows = "windows"

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file only that directory is
// returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case osWindows:
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "qcline"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "qcline"),
			"/etc/qcline",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// DefaultConfigFile is where `config init` writes when no path is given.
func DefaultConfigFile() (string, error) {
	paths, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	// Prefer the per-user directory over the working directory
	if len(paths) > 1 {
		return filepath.Join(paths[1], "config.yaml"), nil
	}
	return filepath.Join(paths[0], "config.yaml"), nil
}

// moveFile copies src to dst and removes src. Used when rename fails across
// filesystems.
func moveFile(src, dst string) error {
	srcFile, err := os.Open(src) //nolint:gosec // G304: temp file created by us
	if err != nil {
		return fmt.Errorf("error opening source file: %w", err)
	}
	defer func() {
		if err := srcFile.Close(); err != nil {
			GetLogger().Warn("failed to close source file", logger.Error(err))
		}
	}()

	dstFile, err := os.Create(dst) //nolint:gosec // G304: caller supplied config path
	if err != nil {
		return fmt.Errorf("error creating destination file: %w", err)
	}

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		_ = dstFile.Close()
		return fmt.Errorf("error copying file contents: %w", err)
	}
	if err := dstFile.Close(); err != nil {
		return fmt.Errorf("error closing destination file: %w", err)
	}

	return os.Remove(src)
}
