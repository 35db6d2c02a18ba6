package config

import (
	"os"
	"path/filepath"
)

// ResolveConfigPath applies the connector's config-discovery precedence:
// an explicit path (a CLI flag) always wins; otherwise CELLORG_CONFIG_PATH, then
// CELLORG_HOME/config/connector.yaml, then the CWD-relative
// "config/connector.yaml" convention, then a binary-relative fallback for
// portable single-binary deployments. Returns "" if nothing is found.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if path := os.Getenv("CELLORG_CONFIG_PATH"); path != "" && fileExists(path) {
		return path
	}

	if home := os.Getenv("CELLORG_HOME"); home != "" {
		path := filepath.Join(home, "config", "connector.yaml")
		if fileExists(path) {
			return path
		}
	}

	if path := filepath.Join("config", "connector.yaml"); fileExists(path) {
		return path
	}

	binaryDir := filepath.Dir(os.Args[0])
	if path := filepath.Join(binaryDir, "config", "connector.yaml"); fileExists(path) {
		return path
	}

	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
