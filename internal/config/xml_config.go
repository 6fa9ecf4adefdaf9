// Package config provides XML-based configuration management with environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DefaultAnalysisBaseURL is used when neither the config file nor the
// environment names the analysis service.
const DefaultAnalysisBaseURL = "http://localhost:5004"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"EssayForm"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Remote analysis service
	Analysis AnalysisConfig `xml:"Analysis"`

	// Upload storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Form session configuration
	Session SessionConfig `xml:"Session"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port              int    `xml:"Port"`
	BindAddress       string `xml:"BindAddress"`
	EnableCORS        bool   `xml:"EnableCORS"`
	AllowOrigins      string `xml:"AllowOrigins"`
	ReadTimeout       int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout      int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout       int    `xml:"IdleTimeoutSeconds"`
	BodyLimit         string `xml:"BodyLimit"`
	EnableCompression bool   `xml:"EnableCompression"`
	CompressionLevel  int    `xml:"CompressionLevel"`
}

// AnalysisConfig describes the essay analysis API the form submits to
type AnalysisConfig struct {
	BaseURL        string `xml:"BaseURL"`
	TimeoutSeconds int    `xml:"TimeoutSeconds"`
}

// StorageConfig contains upload storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory"`
	MaxUploadBytes   int64  `xml:"MaxUploadBytes"`
}

// SessionConfig controls how long idle forms are kept
type SessionConfig struct {
	MaxSessions            int    `xml:"MaxSessions"`
	TimeoutMinutes         int    `xml:"TimeoutMinutes"`
	CleanupIntervalMinutes int    `xml:"CleanupIntervalMinutes"`
	CookieName             string `xml:"CookieName"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel             string `xml:"LogLevel"`
	Locale               string `xml:"Locale"`
	EnableRequestLogging bool   `xml:"EnableRequestLogging"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:              3000,
			BindAddress:       "0.0.0.0",
			EnableCORS:        false,
			AllowOrigins:      "*",
			ReadTimeout:       30,
			WriteTimeout:      30,
			IdleTimeout:       120,
			BodyLimit:         "25M",
			EnableCompression: true,
			CompressionLevel:  5,
		},
		Analysis: AnalysisConfig{
			BaseURL:        DefaultAnalysisBaseURL,
			TimeoutSeconds: 120,
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			MaxUploadBytes:   20 << 20,
		},
		Session: SessionConfig{
			MaxSessions:            500,
			TimeoutMinutes:         30,
			CleanupIntervalMinutes: 5,
			CookieName:             "essay_form_session",
		},
		Advanced: AdvancedConfig{
			LogLevel:             "info",
			Locale:               "pt-BR",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		config.applyEnvironmentOverrides()
		config.resolvePaths(filepath.Dir(configPath))
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := xml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides
	config.applyEnvironmentOverrides()

	// Resolve relative paths
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- Essay Form Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects settings the server cannot run with
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Analysis.BaseURL, "http://") && !strings.HasPrefix(c.Analysis.BaseURL, "https://") {
		return fmt.Errorf("invalid analysis base URL: %q", c.Analysis.BaseURL)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload size: %d", c.Storage.MaxUploadBytes)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	// PORT override
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	// API_BASE_URL override; REACT_APP_API_URL is still honoured for old deployments
	if url := os.Getenv("API_BASE_URL"); url != "" {
		c.Analysis.BaseURL = url
	} else if url := os.Getenv("REACT_APP_API_URL"); url != "" {
		c.Analysis.BaseURL = url
	}
	if c.Analysis.BaseURL == "" {
		c.Analysis.BaseURL = DefaultAnalysisBaseURL
	}
	c.Analysis.BaseURL = strings.TrimRight(c.Analysis.BaseURL, "/")

	// DATA_DIR override
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.UploadsDirectory) {
		c.Storage.UploadsDirectory = filepath.Join(configDir, c.Storage.UploadsDirectory)
	}
}

// GetUploadDir returns the absolute uploads directory path
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// AnalysisTimeout returns the per-request timeout for the analysis service.
// Zero disables the timeout.
func (c *AppConfig) AnalysisTimeout() time.Duration {
	return time.Duration(c.Analysis.TimeoutSeconds) * time.Second
}

// SessionTimeout returns how long an idle form is kept.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle forms are swept.
func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
