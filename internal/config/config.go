// Package config loads the memscan configuration file, creating a
// commented default on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	configDir  = ".memscan"
	configFile = "config.yml"
)

// Config holds every option settable through the config file.
type Config struct {
	// ChunkSize is the per-read buffer size for initial scans, in
	// bytes.
	ChunkSize int `yaml:"chunk-size" json:"chunkSize" jsonschema:"title=Chunk size,description=Bytes read per chunk during an initial scan"`
	// Workers bounds the scan worker pool. Zero means one per CPU,
	// capped at eight.
	Workers int `yaml:"workers" json:"workers" jsonschema:"title=Workers,description=Concurrent region scan workers (0 = auto)"`
	// ScanAllRegions includes shared modules and mapped files instead
	// of only the target application's own memory.
	ScanAllRegions bool `yaml:"scan-all-regions" json:"scanAllRegions" jsonschema:"title=Scan all regions,description=Scan shared modules and mapped files too"`
	// VerifyWrites re-reads every edit to detect an immediate revert
	// by the target.
	VerifyWrites bool `yaml:"verify-writes" json:"verifyWrites" jsonschema:"title=Verify writes,description=Read back after each memory edit"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log-level" json:"logLevel" jsonschema:"title=Log level,description=debug | info | warn | error"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ChunkSize:    256 << 10,
		VerifyWrites: true,
		LogLevel:     "info",
	}
}

// Load reads the config file, writing a default one first if none
// exists. A broken file is reported, not silently replaced.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return Default(), err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if werr := writeDefault(path); werr != nil {
			return Default(), werr
		}
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}

	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return Default(), fmt.Errorf("parse %s: %w", path, err)
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = Default().ChunkSize
	}
	return c, nil
}

// Path returns the config file location under the user's home
// directory.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configDir, configFile), nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	c := Default()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	header := []byte("# Configuration file for memscan.\n# Values shown are the defaults.\n\n")
	return os.WriteFile(path, append(header, data...), 0o600)
}
