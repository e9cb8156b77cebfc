package config

import (
	"os"
	"path/filepath"
	"strings"
)

const envConfigDir = "REQFLOW_CONFIG_DIR"

// Dir is REQFLOW_CONFIG_DIR when set, else reqflow under the user config
// directory, else .reqflow in the working directory.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv(envConfigDir)); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, "reqflow")
	}
	return ".reqflow"
}

// HistoryPath is the default history location for backend.
func HistoryPath(backend string) string {
	if strings.EqualFold(strings.TrimSpace(backend), "sqlite") {
		return filepath.Join(Dir(), "history.db")
	}
	return filepath.Join(Dir(), "history.json")
}
