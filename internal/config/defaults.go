package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/ekisa-team/ttsd/internal/envvar"
	"github.com/ekisa-team/ttsd/internal/xfs"
)

const (
	// DefaultHTTPPort is the HTTP port used when neither env nor config set one.
	DefaultHTTPPort = 5002

	// DefaultGRPCPort is the gRPC port used when neither env nor config set one.
	DefaultGRPCPort = 50051

	// DefaultArchiveBucket is the object store bucket used when archiving is enabled.
	DefaultArchiveBucket = "ttsd-audio"

	// ConfigFilename is the config file looked up in DefaultConfigPath.
	ConfigFilename = "config.yaml"
)

// DefaultConfigPath returns the default path for TTSD config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "ttsd", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "ttsd")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "ttsd")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "ttsd")
		}
		return filepath.Join(home, ".config", "ttsd")
	}
}

// DefaultConfigFile returns the config file path, honoring TTSD_CONFIG_PATH.
func DefaultConfigFile() string {
	if p := os.Getenv(envvar.TTSDConfigPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	return filepath.Join(DefaultConfigPath(), ConfigFilename)
}

// DefaultModelsPath returns the default path for TTSD models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "ttsd", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "ttsd", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "ttsd", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "ttsd", "models")
		}
		return filepath.Join(home, ".cache", "ttsd", "models")
	}
}

// HTTPPort resolves the HTTP port: env var, then config, then default.
func (c *Config) HTTPPort() int {
	if p, ok := portFromEnv(envvar.TTSDServerHTTPPort); ok {
		return p
	}
	if c != nil && c.Server.HTTPPort > 0 {
		return c.Server.HTTPPort
	}
	return DefaultHTTPPort
}

// GRPCPort resolves the gRPC port: env var, then config, then default.
func (c *Config) GRPCPort() int {
	if p, ok := portFromEnv(envvar.TTSDServerGRPCPort); ok {
		return p
	}
	if c != nil && c.Server.GRPCPort > 0 {
		return c.Server.GRPCPort
	}
	return DefaultGRPCPort
}

// ModelsDir resolves the models directory: env var, then config, then default.
func (c *Config) ModelsDir() string {
	if p := os.Getenv(envvar.TTSDModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if c != nil && c.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(c.Storage.ModelsDir)
	}
	return DefaultModelsPath()
}

// ArchiveBucket returns the configured bucket or the default.
func (c *Config) ArchiveBucket() string {
	if c != nil && c.Archive.Bucket != "" {
		return c.Archive.Bucket
	}
	return DefaultArchiveBucket
}

func portFromEnv(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	p, err := strconv.Atoi(v)
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return p, true
}
